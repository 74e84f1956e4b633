package usecase

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	gh "github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/ghrelease/pkg/domain/interfaces"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	githubinfra "github.com/m-mizutani/ghrelease/pkg/infra/github"
	"github.com/m-mizutani/ghrelease/pkg/utils/async"
	"github.com/m-mizutani/goerr/v2"
)

// ErrUnexpectedStatus is returned when the API answers with a status the
// publish flow does not accept
var ErrUnexpectedStatus = goerr.New("unexpected status code")

// ErrDuplicateAsset is returned when two asset paths share a file name
var ErrDuplicateAsset = goerr.New("duplicate asset name")

const defaultParallelism = 4

type publishUseCase struct {
	client      interfaces.ReleaseClient
	notifier    interfaces.Notifier
	parallelism int
}

// Option is a functional option for the publish use case
type Option func(*publishUseCase)

// WithNotifier sends a summary to n after every successful run
func WithNotifier(n interfaces.Notifier) Option {
	return func(uc *publishUseCase) {
		uc.notifier = n
	}
}

// WithParallelism sets how many assets are uploaded at once
func WithParallelism(n int) Option {
	return func(uc *publishUseCase) {
		if n > 0 {
			uc.parallelism = n
		}
	}
}

// NewPublish creates a new instance of PublishUseCase
func NewPublish(client interfaces.ReleaseClient, opts ...Option) interfaces.PublishUseCase {
	uc := &publishUseCase{
		client:      client,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Publish runs the requested release action and uploads its assets
func (uc *publishUseCase) Publish(ctx context.Context, input *model.PublishInput) (*model.PublishResult, error) {
	logger := ctxlog.From(ctx)

	logger.Info("Publishing release",
		"action", input.Action,
		"endpoint", input.Endpoint,
		"repo", input.Repo,
		"tag", input.Release.Tag,
		"assets", len(input.Assets),
	)

	var (
		result *model.PublishResult
		err    error
	)
	switch input.Action {
	case model.ActionCreate:
		result, err = uc.create(ctx, input)
	case model.ActionEdit:
		result, err = uc.edit(ctx, input)
	case model.ActionDiscard:
		result, err = uc.discard(ctx, input)
	default:
		return nil, goerr.New("unsupported release action", goerr.V("action", input.Action))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Published release",
		"action", input.Action,
		"repo", input.Repo,
		"tag", input.Release.Tag,
		"release_id", result.ReleaseID,
		"uploaded", len(result.UploadedAssets),
		"deleted", len(result.DeletedAssets),
	)

	uc.notify(ctx, input, result)
	return result, nil
}

func (uc *publishUseCase) create(ctx context.Context, input *model.PublishInput) (*model.PublishResult, error) {
	uc.inspectTarget(ctx, input)

	resp, err := uc.client.CreateRelease(ctx, input.Endpoint, input.Repo, input.Release)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create release", goerr.V("repo", input.Repo), goerr.V("tag", input.Release.Tag))
	}
	if err := expectStatus(resp, http.StatusCreated, "create release"); err != nil {
		return nil, err
	}

	release, err := githubinfra.DecodeRelease(resp)
	if err != nil {
		return nil, err
	}

	return uc.uploadAssets(ctx, input, release)
}

func (uc *publishUseCase) edit(ctx context.Context, input *model.PublishInput) (*model.PublishResult, error) {
	resp, err := uc.client.EditRelease(ctx, input.Endpoint, input.Repo, input.Release)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to edit release", goerr.V("repo", input.Repo), goerr.V("tag", input.Release.Tag))
	}
	if err := expectStatus(resp, http.StatusOK, "edit release"); err != nil {
		return nil, err
	}

	release, err := githubinfra.DecodeRelease(resp)
	if err != nil {
		return nil, err
	}

	return uc.uploadAssets(ctx, input, release)
}

func (uc *publishUseCase) discard(ctx context.Context, input *model.PublishInput) (*model.PublishResult, error) {
	resp, err := uc.client.DiscardRelease(ctx, input.Endpoint, input.Repo, input.Release.Tag)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to discard release", goerr.V("repo", input.Repo), goerr.V("tag", input.Release.Tag))
	}
	if err := expectStatus(resp, http.StatusNoContent, "discard release"); err != nil {
		return nil, err
	}

	return &model.PublishResult{}, nil
}

// inspectTarget logs how GitHub will interpret the target. Lookup failures
// are not fatal: the create request decides.
func (uc *publishUseCase) inspectTarget(ctx context.Context, input *model.PublishInput) {
	logger := ctxlog.From(ctx)

	if resp, err := uc.client.GetTags(ctx, input.Endpoint, input.Repo); err != nil {
		logger.Warn("Failed to list tags", "error", err, "repo", input.Repo)
	} else if resp.StatusCode == http.StatusOK {
		tags, err := githubinfra.DecodeTags(resp)
		if err != nil {
			logger.Warn("Failed to decode tags", "error", err)
		}
		for _, tag := range tags {
			if tag.GetName() == input.Release.Tag {
				logger.Info("Tag already exists, target is ignored",
					"tag", input.Release.Tag,
					"commit_sha", tag.GetCommit().GetSHA(),
				)
				return
			}
		}
	}

	if input.Release.Target == "" {
		return
	}

	resp, err := uc.client.GetBranch(ctx, input.Endpoint, input.Repo, input.Release.Target)
	if err != nil {
		logger.Warn("Failed to get branch", "error", err, "branch", input.Release.Target)
		return
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("Target is not a branch, using it as a commit", "target", input.Release.Target, "status_code", resp.StatusCode)
		return
	}

	branch, err := githubinfra.DecodeBranch(resp)
	if err != nil {
		logger.Warn("Failed to decode branch", "error", err)
		return
	}
	logger.Info("Tag will be created from branch head",
		"branch", branch.GetName(),
		"commit_sha", branch.GetCommit().GetSHA(),
	)
}

func (uc *publishUseCase) uploadAssets(ctx context.Context, input *model.PublishInput, release *gh.RepositoryRelease) (*model.PublishResult, error) {
	result := &model.PublishResult{
		ReleaseID: release.GetID(),
		HTMLURL:   release.GetHTMLURL(),
	}
	if len(input.Assets) == 0 {
		return result, nil
	}

	seen := make(map[string]string, len(input.Assets))
	for _, path := range input.Assets {
		name := filepath.Base(path)
		if prev, ok := seen[name]; ok {
			return nil, goerr.Wrap(ErrDuplicateAsset, "assets must have distinct file names",
				goerr.V("name", name),
				goerr.V("paths", []string{prev, path}),
			)
		}
		seen[name] = path
	}

	uploadURL := release.GetUploadURL()
	if uploadURL == "" {
		return nil, goerr.New("release has no upload_url", goerr.V("release_id", release.GetID()))
	}

	existing := make(map[string]int64, len(release.Assets))
	for _, asset := range release.Assets {
		existing[asset.GetName()] = asset.GetID()
	}

	var mutex sync.Mutex
	err := async.Each(ctx, input.Assets, uc.parallelism, func(ctx context.Context, path string) error {
		name := filepath.Base(path)

		if id, ok := existing[name]; ok && input.ReplaceAssets {
			if err := uc.deleteAsset(ctx, input, id); err != nil {
				return err
			}
			mutex.Lock()
			result.DeletedAssets = append(result.DeletedAssets, name)
			mutex.Unlock()
		}

		resp, err := uc.client.UploadReleaseAsset(ctx, input.Endpoint, path, uploadURL)
		if err != nil {
			return goerr.Wrap(err, "failed to upload asset", goerr.V("path", path))
		}
		if err := expectStatus(resp, http.StatusCreated, "upload asset "+name); err != nil {
			return err
		}

		ctxlog.From(ctx).Info("Uploaded asset", "name", name, "release_id", release.GetID())
		mutex.Lock()
		result.UploadedAssets = append(result.UploadedAssets, name)
		mutex.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (uc *publishUseCase) deleteAsset(ctx context.Context, input *model.PublishInput, id int64) error {
	resp, err := uc.client.DeleteReleaseAsset(ctx, input.Endpoint, input.Repo, strconv.FormatInt(id, 10))
	if err != nil {
		return goerr.Wrap(err, "failed to delete asset", goerr.V("asset_id", id))
	}
	return expectStatus(resp, http.StatusNoContent, "delete asset")
}

func (uc *publishUseCase) notify(ctx context.Context, input *model.PublishInput, result *model.PublishResult) {
	if uc.notifier == nil {
		return
	}

	verb := map[model.ReleaseAction]string{
		model.ActionCreate:  "created",
		model.ActionEdit:    "updated",
		model.ActionDiscard: "discarded",
	}[input.Action]

	msg := fmt.Sprintf("%s: %s release %s", input.Repo, verb, input.Release.Tag)
	if result.HTMLURL != "" {
		msg += " " + result.HTMLURL
	}
	if n := len(result.UploadedAssets); n > 0 {
		msg += fmt.Sprintf(" (%d assets)", n)
	}

	if err := uc.notifier.Notify(ctx, msg); err != nil {
		ctxlog.From(ctx).Warn("Failed to send notification", "error", err)
	}
}

func expectStatus(resp *model.Response, want int, op string) error {
	if resp.StatusCode == want {
		return nil
	}
	return goerr.Wrap(ErrUnexpectedStatus, op,
		goerr.V("status_code", resp.StatusCode),
		goerr.V("expected", want),
		goerr.V("body", string(resp.Raw)),
	)
}
