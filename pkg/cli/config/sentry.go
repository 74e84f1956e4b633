package config

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ghrelease/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Sentry holds error reporting configuration
type Sentry struct {
	DSN string `masq:"secret"`
	Env string
}

// Flags returns CLI flags for Sentry configuration
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("GHRELEASE_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment",
			Destination: &c.Env,
			Sources:     cli.EnvVars("GHRELEASE_SENTRY_ENV"),
		},
	}
}

// Configure initializes the Sentry client. It reports false when no DSN is set.
func (c *Sentry) Configure() (bool, error) {
	if c.DSN == "" {
		return false, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Env,
		Release:     "ghrelease@" + types.Version,
	}); err != nil {
		return false, goerr.Wrap(err, "failed to initialize sentry")
	}
	return true, nil
}

// Capture sends err to Sentry and waits for delivery
func (c *Sentry) Capture(err error) {
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
}
