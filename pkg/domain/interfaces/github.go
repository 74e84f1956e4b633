package interfaces

import (
	"context"
	"io"

	"github.com/m-mizutani/ghrelease/pkg/domain/model"
)

// TokenResolver converts an endpoint into the token sent in the Authorization header
type TokenResolver interface {
	Token(ctx context.Context, endpoint model.Endpoint) (string, error)
}

// APIBaseResolver converts an endpoint into its REST API base URL
type APIBaseResolver interface {
	APIBase(ctx context.Context, endpoint model.Endpoint) (string, error)
}

// Transport performs the network call for a request descriptor
type Transport interface {
	Send(ctx context.Context, req *model.Request) (*model.Response, error)
}

// FileSystem gives access to local asset files
type FileSystem interface {
	Open(path string) (io.ReadCloser, error)
	Size(path string) (int64, error)
}

// MIMEResolver returns the content type for a file name
type MIMEResolver interface {
	TypeOf(fileName string) string
}

// ReleaseClient defines the release operations of the GitHub REST API
type ReleaseClient interface {
	// CreateRelease creates a release for the tag, creating the tag from target if needed
	CreateRelease(ctx context.Context, endpoint model.Endpoint, repo string, in model.ReleaseInput) (*model.Response, error)

	// EditRelease updates the release currently attached to in.Tag
	EditRelease(ctx context.Context, endpoint model.Endpoint, repo string, in model.ReleaseInput) (*model.Response, error)

	// DiscardRelease deletes the release currently attached to tag
	DiscardRelease(ctx context.Context, endpoint model.Endpoint, repo, tag string) (*model.Response, error)

	// DeleteReleaseAsset deletes one asset by its ID
	DeleteReleaseAsset(ctx context.Context, endpoint model.Endpoint, repo, assetID string) (*model.Response, error)

	// UploadReleaseAsset uploads a local file to a release's upload_url
	UploadReleaseAsset(ctx context.Context, endpoint model.Endpoint, filePath, uploadURL string) (*model.Response, error)

	// GetBranch fetches a branch
	GetBranch(ctx context.Context, endpoint model.Endpoint, repo, branch string) (*model.Response, error)

	// GetTags fetches the first page of tags
	GetTags(ctx context.Context, endpoint model.Endpoint, repo string) (*model.Response, error)
}

// Notifier announces a finished publish run
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
