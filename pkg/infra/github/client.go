package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/ghrelease/pkg/domain/interfaces"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	"github.com/m-mizutani/ghrelease/pkg/infra/localfs"
	"github.com/m-mizutani/goerr/v2"
)

// ErrReleaseLookup is returned by EditRelease and DiscardRelease when the
// release attached to a tag could not be resolved. No mutating request has
// been sent when it is returned.
var ErrReleaseLookup = goerr.New("release lookup failed")

const (
	idKey = "id"

	createReleaseURLFormat      = "%s/repos/%s/releases"
	editOrDiscardURLFormat      = "%s/repos/%s/releases/%s"
	deleteReleaseAssetURLFormat = "%s/repos/%s/releases/assets/%s"
	uploadReleaseAssetURLFormat = "%s?name=%s"
	getReleaseByTagURLFormat    = "%s/repos/%s/releases/tags/%s"
	getBranchURLFormat          = "%s/repos/%s/branches/%s"
	getTagsURLFormat            = "%s/repos/%s/tags"
)

// Client builds release API requests and hands them to a Transport
type Client struct {
	tokens    interfaces.TokenResolver
	bases     interfaces.APIBaseResolver
	transport interfaces.Transport
	fs        interfaces.FileSystem
	mime      interfaces.MIMEResolver
	newID     func() string
}

var _ interfaces.ReleaseClient = (*Client)(nil)

// Option is a functional option for Client
type Option func(*Client)

// WithFileSystem replaces the local file access used by UploadReleaseAsset
func WithFileSystem(fs interfaces.FileSystem) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

// WithMIMEResolver replaces the content type lookup used by UploadReleaseAsset
func WithMIMEResolver(m interfaces.MIMEResolver) Option {
	return func(c *Client) {
		c.mime = m
	}
}

// WithRequestID replaces the generator of request IDs
func WithRequestID(f func() string) Option {
	return func(c *Client) {
		c.newID = f
	}
}

// NewClient creates a release client. Local files are read from the OS file
// system unless WithFileSystem is given.
func NewClient(tokens interfaces.TokenResolver, bases interfaces.APIBaseResolver, transport interfaces.Transport, opts ...Option) *Client {
	c := &Client{
		tokens:    tokens,
		bases:     bases,
		transport: transport,
		fs:        localfs.New(),
		mime:      localfs.NewMIME(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRelease creates a release for in.Tag from in.Target
func (c *Client) CreateRelease(ctx context.Context, endpoint model.Endpoint, repo string, in model.ReleaseInput) (*model.Response, error) {
	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(createReleaseBody{
		TagName:         in.Tag,
		TargetCommitish: in.Target,
		Name:            in.Title,
		Body:            in.Note,
		Draft:           in.Draft,
		Prerelease:      in.Prerelease,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode create release body")
	}

	req := c.newRequest(http.MethodPost, fmt.Sprintf(createReleaseURLFormat, base, repo), token)
	req.Headers["Content-Type"] = "application/json"
	req.JSON = body

	return c.send(ctx, "Create release request", req)
}

// EditRelease looks up the release attached to in.Tag and patches it
func (c *Client) EditRelease(ctx context.Context, endpoint model.Endpoint, repo string, in model.ReleaseInput) (*model.Response, error) {
	id, err := c.lookupReleaseID(ctx, endpoint, repo, in.Tag)
	if err != nil {
		return nil, err
	}

	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(editReleaseBody{
		TagName:    in.Tag,
		Name:       in.Title,
		Body:       in.Note,
		Draft:      in.Draft,
		Prerelease: in.Prerelease,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode edit release body")
	}

	req := c.newRequest(http.MethodPatch, fmt.Sprintf(editOrDiscardURLFormat, base, repo, id), token)
	req.Headers["Content-Type"] = "application/json"
	req.JSON = body

	return c.send(ctx, "Edit release request", req)
}

// DiscardRelease looks up the release attached to tag and deletes it
func (c *Client) DiscardRelease(ctx context.Context, endpoint model.Endpoint, repo, tag string) (*model.Response, error) {
	id, err := c.lookupReleaseID(ctx, endpoint, repo, tag)
	if err != nil {
		return nil, err
	}

	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodDelete, fmt.Sprintf(editOrDiscardURLFormat, base, repo, id), token)
	return c.send(ctx, "Discard release request", req)
}

// DeleteReleaseAsset deletes a release asset by ID
func (c *Client) DeleteReleaseAsset(ctx context.Context, endpoint model.Endpoint, repo, assetID string) (*model.Response, error) {
	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodDelete, fmt.Sprintf(deleteReleaseAssetURLFormat, base, repo, assetID), token)
	return c.send(ctx, "Delete release asset request", req)
}

// UploadReleaseAsset streams the file at filePath to uploadURL. uploadURL is
// the release's upload_url; its URI template suffix ("{?name,label}") is
// dropped and replaced by the file's base name.
func (c *Client) UploadReleaseAsset(ctx context.Context, endpoint model.Endpoint, filePath, uploadURL string) (*model.Response, error) {
	token, err := c.tokens.Token(ctx, endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve token", goerr.V("endpoint", endpoint))
	}

	fileName := filepath.Base(filePath)

	size, err := c.fs.Size(filePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat asset file", goerr.V("path", filePath))
	}

	f, err := c.fs.Open(filePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open asset file", goerr.V("path", filePath))
	}
	defer f.Close()

	req := c.newRequest(http.MethodPost, fmt.Sprintf(uploadReleaseAssetURLFormat, stripURITemplate(uploadURL), fileName), token)
	req.Headers["Content-Type"] = c.mime.TypeOf(fileName)
	req.Headers["Content-Length"] = strconv.FormatInt(size, 10)
	req.Stream = f

	return c.send(ctx, "Upload release asset request", req)
}

// GetBranch fetches a branch of repo
func (c *Client) GetBranch(ctx context.Context, endpoint model.Endpoint, repo, branch string) (*model.Response, error) {
	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodGet, fmt.Sprintf(getBranchURLFormat, base, repo, branch), token)
	return c.send(ctx, "Get branch request", req)
}

// GetTags fetches the tags of repo. Only the first page is returned.
func (c *Client) GetTags(ctx context.Context, endpoint model.Endpoint, repo string) (*model.Response, error) {
	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodGet, fmt.Sprintf(getTagsURLFormat, base, repo), token)
	return c.send(ctx, "Get tags request", req)
}

func (c *Client) getReleaseByTag(ctx context.Context, endpoint model.Endpoint, repo, tag string) (*model.Response, error) {
	base, token, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodGet, fmt.Sprintf(getReleaseByTagURLFormat, base, repo, tag), token)
	return c.send(ctx, "Get release by tag request", req)
}

// lookupReleaseID resolves tag to a release ID with a fresh request on every call
func (c *Client) lookupReleaseID(ctx context.Context, endpoint model.Endpoint, repo, tag string) (string, error) {
	resp, err := c.getReleaseByTag(ctx, endpoint, repo, tag)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		ctxlog.From(ctx).Debug("Get release by tag response", slog.Any("response", resp))
		return "", goerr.Wrap(ErrReleaseLookup, "no release found for tag",
			goerr.V("repo", repo),
			goerr.V("tag", tag),
			goerr.V("status_code", resp.StatusCode),
		)
	}

	id, ok := releaseID(resp.Body)
	if !ok {
		return "", goerr.Wrap(ErrReleaseLookup, "release lookup response has no id",
			goerr.V("repo", repo),
			goerr.V("tag", tag),
		)
	}

	return id, nil
}

func (c *Client) resolve(ctx context.Context, endpoint model.Endpoint) (string, string, error) {
	base, err := c.bases.APIBase(ctx, endpoint)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to resolve API base", goerr.V("endpoint", endpoint))
	}

	token, err := c.tokens.Token(ctx, endpoint)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to resolve token", goerr.V("endpoint", endpoint))
	}

	return base, token, nil
}

func (c *Client) newRequest(method, url, token string) *model.Request {
	return &model.Request{
		ID:     c.newID(),
		Method: method,
		URL:    url,
		Headers: map[string]string{
			"Authorization": "token " + token,
		},
	}
}

// send logs the descriptor and returns the transport result untouched
func (c *Client) send(ctx context.Context, msg string, req *model.Request) (*model.Response, error) {
	ctxlog.From(ctx).Debug(msg, slog.Any("request", req))
	return c.transport.Send(ctx, req)
}

// stripURITemplate cuts an RFC 6570 template suffix such as "{?name,label}"
func stripURITemplate(url string) string {
	base, _, _ := strings.Cut(url, "{")
	return base
}

// releaseID extracts the "id" field of a parsed release body as a URL segment
func releaseID(body any) (string, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return "", false
	}

	switch v := obj[idKey].(type) {
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case string:
		return v, v != ""
	default:
		return "", false
	}
}

type createReleaseBody struct {
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish"`
	Name            string `json:"name"`
	Body            string `json:"body"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

type editReleaseBody struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}
