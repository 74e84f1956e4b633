package model

// Endpoint is the name of a configured connection profile. It resolves to an
// API base URL and a token through the endpoint registry.
type Endpoint string

// ReleaseInput holds the user-facing attributes of a release.
type ReleaseInput struct {
	Target     string // Branch or commit the tag is created from (create only)
	Tag        string // Tag name, also the lookup key for edit/discard
	Title      string // Release name
	Note       string // Release body
	Draft      bool
	Prerelease bool
}

// ReleaseAction selects what Publish does with a release
type ReleaseAction string

const (
	ActionCreate  ReleaseAction = "create"
	ActionEdit    ReleaseAction = "edit"
	ActionDiscard ReleaseAction = "discard"
)

// PublishInput is the full set of parameters for one publish run
type PublishInput struct {
	Action        ReleaseAction
	Endpoint      Endpoint
	Repo          string // "owner/name"
	Release       ReleaseInput
	Assets        []string // Local file paths to upload
	ReplaceAssets bool     // Delete same-named assets before uploading
}

// PublishResult summarizes what a publish run did
type PublishResult struct {
	ReleaseID      int64
	HTMLURL        string
	UploadedAssets []string
	DeletedAssets  []string
}
