package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/ghrelease/pkg/cli/config"
	"github.com/m-mizutani/ghrelease/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, w io.Writer) error {
	var (
		loggerCfg config.Logger
		githubCfg config.GitHub
		sentryCfg config.Sentry
		logger    *slog.Logger
		reporting bool
	)

	flags := append(loggerCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    "ghrelease",
		Usage:   "Manage GitHub releases from CI pipelines",
		Version: types.Version,
		Flags:   flags,
		Writer:  w,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			reporting, err = sentryCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdCreate(&githubCfg),
			cmdEdit(&githubCfg),
			cmdDiscard(&githubCfg),
			cmdUpload(&githubCfg),
			cmdDeleteAsset(&githubCfg),
			cmdTags(&githubCfg),
			cmdBranch(&githubCfg),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		if reporting {
			sentryCfg.Capture(err)
		}
		return err
	}

	return nil
}
