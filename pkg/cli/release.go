package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/ghrelease/pkg/cli/config"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	githubinfra "github.com/m-mizutani/ghrelease/pkg/infra/github"
	"github.com/m-mizutani/ghrelease/pkg/infra/transport"
	"github.com/m-mizutani/ghrelease/pkg/usecase"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// releaseFlags holds the flags shared by create and edit
type releaseFlags struct {
	Repo          string
	Tag           string
	Target        string
	Title         string
	Notes         string
	NotesFile     string
	Draft         bool
	Prerelease    bool
	Assets        []string
	ReplaceAssets bool
	Parallel      int
	slack         config.Slack
}

func (f *releaseFlags) flags(withTarget bool) []cli.Flag {
	flags := []cli.Flag{
		repoFlag(&f.Repo),
		tagFlag(&f.Tag),
		&cli.StringFlag{
			Name:        "title",
			Usage:       "Release title (defaults to the tag)",
			Destination: &f.Title,
			Sources:     cli.EnvVars("GHRELEASE_TITLE"),
		},
		&cli.StringFlag{
			Name:        "notes",
			Usage:       "Release notes",
			Destination: &f.Notes,
			Sources:     cli.EnvVars("GHRELEASE_NOTES"),
		},
		&cli.StringFlag{
			Name:        "notes-file",
			Usage:       "Read release notes from a file",
			Destination: &f.NotesFile,
			Sources:     cli.EnvVars("GHRELEASE_NOTES_FILE"),
		},
		&cli.BoolFlag{
			Name:        "draft",
			Usage:       "Mark the release as a draft",
			Destination: &f.Draft,
			Sources:     cli.EnvVars("GHRELEASE_DRAFT"),
		},
		&cli.BoolFlag{
			Name:        "prerelease",
			Usage:       "Mark the release as a prerelease",
			Destination: &f.Prerelease,
			Sources:     cli.EnvVars("GHRELEASE_PRERELEASE"),
		},
		&cli.StringSliceFlag{
			Name:        "asset",
			Aliases:     []string{"a"},
			Usage:       "Local file to upload (repeatable)",
			Destination: &f.Assets,
		},
		&cli.BoolFlag{
			Name:        "replace-assets",
			Usage:       "Delete existing assets with the same name before uploading",
			Destination: &f.ReplaceAssets,
			Sources:     cli.EnvVars("GHRELEASE_REPLACE_ASSETS"),
		},
		&cli.IntFlag{
			Name:        "parallel",
			Usage:       "Number of concurrent asset uploads",
			Value:       4,
			Destination: &f.Parallel,
			Sources:     cli.EnvVars("GHRELEASE_PARALLEL"),
		},
	}
	if withTarget {
		flags = append(flags, &cli.StringFlag{
			Name:        "target",
			Usage:       "Branch or commit SHA the tag is created from",
			Destination: &f.Target,
			Sources:     cli.EnvVars("GHRELEASE_TARGET"),
		})
	}
	return append(flags, f.slack.Flags()...)
}

func (f *releaseFlags) input(action model.ReleaseAction, endpoint model.Endpoint) (*model.PublishInput, error) {
	notes := f.Notes
	if f.NotesFile != "" {
		data, err := os.ReadFile(f.NotesFile)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read notes file", goerr.V("path", f.NotesFile))
		}
		notes = string(data)
	}

	title := f.Title
	if title == "" {
		title = f.Tag
	}

	return &model.PublishInput{
		Action:   action,
		Endpoint: endpoint,
		Repo:     f.Repo,
		Release: model.ReleaseInput{
			Target:     f.Target,
			Tag:        f.Tag,
			Title:      title,
			Note:       notes,
			Draft:      f.Draft,
			Prerelease: f.Prerelease,
		},
		Assets:        f.Assets,
		ReplaceAssets: f.ReplaceAssets,
	}, nil
}

func cmdCreate(githubCfg *config.GitHub) *cli.Command {
	var f releaseFlags
	return &cli.Command{
		Name:  "create",
		Usage: "Create a release and upload assets",
		Flags: f.flags(true),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runPublish(ctx, c, githubCfg, &f, model.ActionCreate)
		},
	}
}

func cmdEdit(githubCfg *config.GitHub) *cli.Command {
	var f releaseFlags
	return &cli.Command{
		Name:  "edit",
		Usage: "Edit the release of a tag and upload assets",
		Flags: f.flags(false),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runPublish(ctx, c, githubCfg, &f, model.ActionEdit)
		},
	}
}

func cmdDiscard(githubCfg *config.GitHub) *cli.Command {
	var f releaseFlags
	return &cli.Command{
		Name:  "discard",
		Usage: "Delete the release of a tag",
		Flags: append([]cli.Flag{repoFlag(&f.Repo), tagFlag(&f.Tag)}, f.slack.Flags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runPublish(ctx, c, githubCfg, &f, model.ActionDiscard)
		},
	}
}

func runPublish(ctx context.Context, c *cli.Command, githubCfg *config.GitHub, f *releaseFlags, action model.ReleaseAction) error {
	client, err := newReleaseClient(githubCfg)
	if err != nil {
		return err
	}

	input, err := f.input(action, githubCfg.Selected())
	if err != nil {
		return err
	}

	opts := []usecase.Option{usecase.WithParallelism(f.Parallel)}
	if n := f.slack.Notifier(); n != nil {
		opts = append(opts, usecase.WithNotifier(n))
	}

	result, err := usecase.NewPublish(client, opts...).Publish(ctx, input)
	if err != nil {
		return err
	}

	printResult(c.Root().Writer, input, result)
	return nil
}

func printResult(w io.Writer, input *model.PublishInput, result *model.PublishResult) {
	ok := color.New(color.FgGreen, color.Bold)

	switch input.Action {
	case model.ActionDiscard:
		ok.Fprintf(w, "Discarded release %s of %s\n", input.Release.Tag, input.Repo)
		return
	case model.ActionCreate:
		ok.Fprintf(w, "Created release %s (id %d)\n", input.Release.Tag, result.ReleaseID)
	case model.ActionEdit:
		ok.Fprintf(w, "Updated release %s (id %d)\n", input.Release.Tag, result.ReleaseID)
	}

	if result.HTMLURL != "" {
		fmt.Fprintf(w, "  %s\n", result.HTMLURL)
	}
	for _, name := range result.DeletedAssets {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("replaced"), name)
	}
	for _, name := range result.UploadedAssets {
		fmt.Fprintf(w, "  %s %s\n", color.CyanString("uploaded"), name)
	}
}

func newReleaseClient(githubCfg *config.GitHub) (*githubinfra.Client, error) {
	registry, err := githubCfg.Registry()
	if err != nil {
		return nil, err
	}
	return githubinfra.NewClient(registry, registry, transport.New()), nil
}

func repoFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "repo",
		Aliases:     []string{"r"},
		Usage:       "Repository in owner/name form",
		Required:    true,
		Destination: dst,
		Sources:     cli.EnvVars("GHRELEASE_REPO", "GITHUB_REPOSITORY"),
	}
}

func tagFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "tag",
		Aliases:     []string{"t"},
		Usage:       "Tag name of the release",
		Required:    true,
		Destination: dst,
		Sources:     cli.EnvVars("GHRELEASE_TAG"),
	}
}
