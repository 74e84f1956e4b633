package config

import (
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	"github.com/m-mizutani/ghrelease/pkg/infra/endpoint"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// DefaultEndpoint names the profile built from command line flags
const DefaultEndpoint = "default"

// GitHub holds endpoint configuration
type GitHub struct {
	ConfigFile     string
	Endpoint       string
	URL            string
	Token          string `masq:"secret"`
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
}

// Flags returns CLI flags for endpoint configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "TOML file of [[endpoint]] profiles",
			Destination: &c.ConfigFile,
			Sources:     cli.EnvVars("GHRELEASE_CONFIG"),
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "Endpoint profile to use",
			Value:       DefaultEndpoint,
			Destination: &c.Endpoint,
			Sources:     cli.EnvVars("GHRELEASE_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:        "github-url",
			Usage:       "GitHub URL of the default endpoint (empty for github.com)",
			Destination: &c.URL,
			Sources:     cli.EnvVars("GHRELEASE_GITHUB_URL"),
		},
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "Token of the default endpoint",
			Destination: &c.Token,
			Sources:     cli.EnvVars("GHRELEASE_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID of the default endpoint",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("GHRELEASE_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-installation-id",
			Usage:       "GitHub App installation ID of the default endpoint",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("GHRELEASE_GITHUB_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-private-key",
			Usage:       "GitHub App private key (PEM) of the default endpoint",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("GHRELEASE_GITHUB_PRIVATE_KEY"),
		},
	}
}

// Registry builds the endpoint registry. Flags define the "default" profile.
// With a config file, flag values that are set override the file's "default"
// profile field by field.
func (c *GitHub) Registry() (*endpoint.Registry, error) {
	profile := endpoint.Profile{
		Name:  DefaultEndpoint,
		URL:   c.URL,
		Token: c.Token,
	}
	if c.AppID != 0 || c.InstallationID != 0 || c.PrivateKey != "" {
		profile.App = &endpoint.App{
			AppID:          c.AppID,
			InstallationID: c.InstallationID,
			PrivateKey:     c.PrivateKey,
		}
	}

	if c.ConfigFile == "" {
		if c.Endpoint != DefaultEndpoint {
			return nil, goerr.New("endpoint requires --config", goerr.V("endpoint", c.Endpoint))
		}
		return endpoint.New(profile), nil
	}

	registry, err := endpoint.Load(c.ConfigFile, profile)
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// Selected returns the endpoint chosen with --endpoint
func (c *GitHub) Selected() model.Endpoint {
	return model.Endpoint(c.Endpoint)
}
