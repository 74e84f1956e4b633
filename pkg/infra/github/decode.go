package github

import (
	"encoding/json"

	gh "github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// DecodeRelease decodes a release object from a create, edit or lookup response
func DecodeRelease(resp *model.Response) (*gh.RepositoryRelease, error) {
	var release gh.RepositoryRelease
	if err := decode(resp, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// DecodeTags decodes the tag list returned by GetTags
func DecodeTags(resp *model.Response) ([]*gh.RepositoryTag, error) {
	var tags []*gh.RepositoryTag
	if err := decode(resp, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// DecodeBranch decodes the branch returned by GetBranch
func DecodeBranch(resp *model.Response) (*gh.Branch, error) {
	var branch gh.Branch
	if err := decode(resp, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

// DecodeAsset decodes the asset returned by UploadReleaseAsset
func DecodeAsset(resp *model.Response) (*gh.ReleaseAsset, error) {
	var asset gh.ReleaseAsset
	if err := decode(resp, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func decode(resp *model.Response, v any) error {
	if resp == nil || len(resp.Raw) == 0 {
		return goerr.New("empty response body")
	}
	if err := json.Unmarshal(resp.Raw, v); err != nil {
		return goerr.Wrap(err, "failed to decode response body", goerr.V("status_code", resp.StatusCode))
	}
	return nil
}
