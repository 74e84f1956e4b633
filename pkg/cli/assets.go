package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/ghrelease/pkg/cli/config"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	githubinfra "github.com/m-mizutani/ghrelease/pkg/infra/github"
	"github.com/m-mizutani/ghrelease/pkg/utils/async"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdUpload(githubCfg *config.GitHub) *cli.Command {
	var (
		uploadURL string
		assets    []string
		parallel  int
	)

	return &cli.Command{
		Name:  "upload",
		Usage: "Upload files to a release upload_url",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "upload-url",
				Usage:       "upload_url of the release, URI template suffix allowed",
				Required:    true,
				Destination: &uploadURL,
				Sources:     cli.EnvVars("GHRELEASE_UPLOAD_URL"),
			},
			&cli.StringSliceFlag{
				Name:        "asset",
				Aliases:     []string{"a"},
				Usage:       "Local file to upload (repeatable)",
				Required:    true,
				Destination: &assets,
			},
			&cli.IntFlag{
				Name:        "parallel",
				Usage:       "Number of concurrent uploads",
				Value:       4,
				Destination: &parallel,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := newReleaseClient(githubCfg)
			if err != nil {
				return err
			}
			w := c.Root().Writer
			var mutex sync.Mutex

			return async.Each(ctx, assets, parallel, func(ctx context.Context, path string) error {
				resp, err := client.UploadReleaseAsset(ctx, githubCfg.Selected(), path, uploadURL)
				if err != nil {
					return err
				}
				if err := requireStatus(resp, http.StatusCreated, "upload asset"); err != nil {
					return goerr.Wrap(err, "upload rejected", goerr.V("path", path))
				}

				mutex.Lock()
				defer mutex.Unlock()

				asset, err := githubinfra.DecodeAsset(resp)
				if err != nil {
					ctxlog.From(ctx).Warn("Failed to decode uploaded asset", "error", err)
					fmt.Fprintf(w, "%s %s\n", color.CyanString("uploaded"), filepath.Base(path))
					return nil
				}
				fmt.Fprintf(w, "%s %s (id %d, %d bytes)\n", color.CyanString("uploaded"), asset.GetName(), asset.GetID(), asset.GetSize())
				return nil
			})
		},
	}
}

func cmdDeleteAsset(githubCfg *config.GitHub) *cli.Command {
	var repo, assetID string

	return &cli.Command{
		Name:  "delete-asset",
		Usage: "Delete a release asset by ID",
		Flags: []cli.Flag{
			repoFlag(&repo),
			&cli.StringFlag{
				Name:        "asset-id",
				Usage:       "ID of the asset to delete",
				Required:    true,
				Destination: &assetID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := newReleaseClient(githubCfg)
			if err != nil {
				return err
			}

			resp, err := client.DeleteReleaseAsset(ctx, githubCfg.Selected(), repo, assetID)
			if err != nil {
				return err
			}
			if err := requireStatus(resp, http.StatusNoContent, "delete asset"); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(c.Root().Writer, "Deleted asset %s\n", assetID)
			return nil
		},
	}
}

func cmdTags(githubCfg *config.GitHub) *cli.Command {
	var repo string

	return &cli.Command{
		Name:  "tags",
		Usage: "List tags of a repository (first page)",
		Flags: []cli.Flag{repoFlag(&repo)},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := newReleaseClient(githubCfg)
			if err != nil {
				return err
			}

			resp, err := client.GetTags(ctx, githubCfg.Selected(), repo)
			if err != nil {
				return err
			}
			if err := requireStatus(resp, http.StatusOK, "get tags"); err != nil {
				return err
			}

			tags, err := githubinfra.DecodeTags(resp)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\n", tag.GetName(), tag.GetCommit().GetSHA())
			}
			return nil
		},
	}
}

func cmdBranch(githubCfg *config.GitHub) *cli.Command {
	var repo, name string

	return &cli.Command{
		Name:  "branch",
		Usage: "Show the head commit of a branch",
		Flags: []cli.Flag{
			repoFlag(&repo),
			&cli.StringFlag{
				Name:        "name",
				Usage:       "Branch name",
				Required:    true,
				Destination: &name,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := newReleaseClient(githubCfg)
			if err != nil {
				return err
			}

			resp, err := client.GetBranch(ctx, githubCfg.Selected(), repo, name)
			if err != nil {
				return err
			}
			if err := requireStatus(resp, http.StatusOK, "get branch"); err != nil {
				return err
			}

			branch, err := githubinfra.DecodeBranch(resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%s\t%s\n", branch.GetName(), branch.GetCommit().GetSHA())
			return nil
		},
	}
}

func requireStatus(resp *model.Response, want int, op string) error {
	if resp.StatusCode == want {
		return nil
	}
	return goerr.New(op+" failed",
		goerr.V("status_code", resp.StatusCode),
		goerr.V("expected", want),
		goerr.V("body", string(resp.Raw)),
	)
}
