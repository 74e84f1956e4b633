package github_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	githubinfra "github.com/m-mizutani/ghrelease/pkg/infra/github"
	"github.com/m-mizutani/ghrelease/pkg/infra/localfs"
	"github.com/m-mizutani/ghrelease/pkg/infra/transport"
)

const (
	testBase  = "https://api.example.com"
	testToken = "s3cr3t-token"
)

// staticResolver resolves every endpoint to the same base URL and token
type staticResolver struct {
	base  string
	token string
	err   error
	calls []model.Endpoint
}

func (r *staticResolver) Token(ctx context.Context, endpoint model.Endpoint) (string, error) {
	r.calls = append(r.calls, endpoint)
	return r.token, r.err
}

func (r *staticResolver) APIBase(ctx context.Context, endpoint model.Endpoint) (string, error) {
	return r.base, r.err
}

// sentRequest is a copy of a request taken at Send time
type sentRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	JSON    []byte
	Stream  []byte
}

// MockTransport records requests and replies with queued responses
type MockTransport struct {
	responses []*model.Response
	err       error
	sent      []sentRequest
}

func (m *MockTransport) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	s := sentRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		JSON:    req.JSON,
	}
	if req.Stream != nil {
		data, err := io.ReadAll(req.Stream)
		if err != nil {
			return nil, err
		}
		s.Stream = data
	}
	m.sent = append(m.sent, s)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &model.Response{StatusCode: http.StatusOK, Headers: http.Header{}}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// memFS serves files from memory
type memFS map[string][]byte

func (f memFS) Open(path string) (io.ReadCloser, error) {
	data, ok := f[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f memFS) Size(path string) (int64, error) {
	data, ok := f[path]
	if !ok {
		return 0, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return int64(len(data)), nil
}

func jsonResponse(status int, body any) *model.Response {
	raw, _ := json.Marshal(body)
	return &model.Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
		Raw:        raw,
	}
}

func newTestClient(tr *MockTransport, opts ...githubinfra.Option) *githubinfra.Client {
	resolver := &staticResolver{base: testBase, token: testToken}
	return githubinfra.NewClient(resolver, resolver, tr, opts...)
}

func TestClient_CreateRelease(t *testing.T) {
	tr := &MockTransport{responses: []*model.Response{jsonResponse(http.StatusCreated, map[string]any{"id": json.Number("1")})}}
	client := newTestClient(tr)

	resp, err := client.CreateRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{
		Target:     "main",
		Tag:        "v1.0",
		Title:      "Version 1.0",
		Note:       "first release",
		Draft:      true,
		Prerelease: false,
	})
	gt.NoError(t, err)
	gt.Value(t, resp.StatusCode).Equal(http.StatusCreated)

	gt.Equal(t, len(tr.sent), 1)
	sent := tr.sent[0]
	gt.Value(t, sent.Method).Equal(http.MethodPost)
	gt.Value(t, sent.URL).Equal(testBase + "/repos/octo/demo/releases")
	gt.Value(t, sent.Headers["Content-Type"]).Equal("application/json")

	var body map[string]any
	gt.NoError(t, json.Unmarshal(sent.JSON, &body))
	gt.Equal(t, len(body), 6)
	gt.Value(t, body["tag_name"]).Equal(any("v1.0"))
	gt.Value(t, body["target_commitish"]).Equal(any("main"))
	gt.Value(t, body["name"]).Equal(any("Version 1.0"))
	gt.Value(t, body["body"]).Equal(any("first release"))
	gt.Value(t, body["draft"]).Equal(any(true))
	gt.Value(t, body["prerelease"]).Equal(any(false))
}

func TestClient_DiscardRelease(t *testing.T) {
	t.Run("looks up the tag and deletes by id", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{
			jsonResponse(http.StatusOK, map[string]any{"id": json.Number("42")}),
			{StatusCode: http.StatusNoContent, Headers: http.Header{}},
		}}
		client := newTestClient(tr)

		resp, err := client.DiscardRelease(context.Background(), "github", "octo/demo", "v1.0")
		gt.NoError(t, err)
		gt.Value(t, resp.StatusCode).Equal(http.StatusNoContent)

		gt.Equal(t, len(tr.sent), 2)
		gt.Value(t, tr.sent[0].Method).Equal(http.MethodGet)
		gt.Value(t, tr.sent[0].URL).Equal(testBase + "/repos/octo/demo/releases/tags/v1.0")
		gt.Value(t, tr.sent[1].Method).Equal(http.MethodDelete)
		gt.Value(t, tr.sent[1].URL).Equal(testBase + "/repos/octo/demo/releases/42")
		gt.Equal(t, len(tr.sent[1].JSON), 0)
	})

	t.Run("does not delete when lookup fails", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{
			jsonResponse(http.StatusNotFound, map[string]any{"message": "Not Found"}),
		}}
		client := newTestClient(tr)

		resp, err := client.DiscardRelease(context.Background(), "github", "octo/demo", "v9.9")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, githubinfra.ErrReleaseLookup))
		gt.Value(t, resp).Nil()
		gt.Equal(t, len(tr.sent), 1)
	})
}

func TestClient_EditRelease(t *testing.T) {
	t.Run("patches the release id from the lookup", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{
			jsonResponse(http.StatusOK, map[string]any{"id": json.Number("42"), "tag_name": "v1.0"}),
			jsonResponse(http.StatusOK, map[string]any{"id": json.Number("42")}),
		}}
		client := newTestClient(tr)

		_, err := client.EditRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{
			Target:     "ignored",
			Tag:        "v1.0",
			Title:      "Version 1.0",
			Note:       "updated",
			Prerelease: true,
		})
		gt.NoError(t, err)

		gt.Equal(t, len(tr.sent), 2)
		gt.Value(t, tr.sent[0].URL).Equal(testBase + "/repos/octo/demo/releases/tags/v1.0")
		gt.Value(t, tr.sent[1].Method).Equal(http.MethodPatch)
		gt.Value(t, tr.sent[1].URL).Equal(testBase + "/repos/octo/demo/releases/42")

		var body map[string]any
		gt.NoError(t, json.Unmarshal(tr.sent[1].JSON, &body))
		gt.Equal(t, len(body), 5)
		_, hasTarget := body["target_commitish"]
		gt.False(t, hasTarget)
		gt.Value(t, body["tag_name"]).Equal(any("v1.0"))
		gt.Value(t, body["body"]).Equal(any("updated"))
		gt.Value(t, body["prerelease"]).Equal(any(true))
	})

	t.Run("lookup with non-200 status", func(t *testing.T) {
		for _, status := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusCreated, http.StatusInternalServerError} {
			tr := &MockTransport{responses: []*model.Response{jsonResponse(status, map[string]any{"id": json.Number("42")})}}
			client := newTestClient(tr)

			_, err := client.EditRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{Tag: "v1.0"})
			gt.True(t, errors.Is(err, githubinfra.ErrReleaseLookup))
			gt.Equal(t, len(tr.sent), 1)
		}
	})

	t.Run("lookup response without id", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{jsonResponse(http.StatusOK, map[string]any{"tag_name": "v1.0"})}}
		client := newTestClient(tr)

		_, err := client.EditRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{Tag: "v1.0"})
		gt.True(t, errors.Is(err, githubinfra.ErrReleaseLookup))
		gt.Equal(t, len(tr.sent), 1)
	})

	t.Run("each call performs its own lookup", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{
			jsonResponse(http.StatusOK, map[string]any{"id": json.Number("1")}),
			jsonResponse(http.StatusOK, nil),
			jsonResponse(http.StatusOK, map[string]any{"id": json.Number("2")}),
			jsonResponse(http.StatusOK, nil),
		}}
		client := newTestClient(tr)

		for range 2 {
			_, err := client.EditRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{Tag: "v1.0"})
			gt.NoError(t, err)
		}

		gt.Equal(t, len(tr.sent), 4)
		gt.Value(t, tr.sent[1].URL).Equal(testBase + "/repos/octo/demo/releases/1")
		gt.Value(t, tr.sent[2].URL).Equal(testBase + "/repos/octo/demo/releases/tags/v1.0")
		gt.Value(t, tr.sent[3].URL).Equal(testBase + "/repos/octo/demo/releases/2")
	})
}

func TestClient_UploadReleaseAsset(t *testing.T) {
	content := []byte("PK\x03\x04 fake zip")
	files := memFS{"/tmp/out/artifact.zip": content}

	t.Run("strips the URI template and streams the file", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{jsonResponse(http.StatusCreated, map[string]any{"id": json.Number("7")})}}
		client := newTestClient(tr, githubinfra.WithFileSystem(files))

		resp, err := client.UploadReleaseAsset(context.Background(), "github", "/tmp/out/artifact.zip", "https://upl.example/assets{?name,label}")
		gt.NoError(t, err)
		gt.Value(t, resp.StatusCode).Equal(http.StatusCreated)

		gt.Equal(t, len(tr.sent), 1)
		sent := tr.sent[0]
		gt.Value(t, sent.Method).Equal(http.MethodPost)
		gt.Value(t, sent.URL).Equal("https://upl.example/assets?name=artifact.zip")
		gt.Value(t, sent.Headers["Content-Type"]).Equal(localfs.NewMIME().TypeOf("artifact.zip"))
		gt.Value(t, sent.Headers["Content-Type"]).Equal("application/zip")
		gt.Value(t, sent.Headers["Content-Length"]).Equal(strconv.Itoa(len(content)))
		gt.Value(t, sent.Headers["Authorization"]).Equal("token " + testToken)
		gt.Value(t, sent.Stream).Equal(content)
	})

	t.Run("upload URL without template", func(t *testing.T) {
		tr := &MockTransport{}
		client := newTestClient(tr, githubinfra.WithFileSystem(files))

		_, err := client.UploadReleaseAsset(context.Background(), "github", "/tmp/out/artifact.zip", "https://upl.example/assets")
		gt.NoError(t, err)
		gt.Value(t, tr.sent[0].URL).Equal("https://upl.example/assets?name=artifact.zip")
	})

	t.Run("missing file", func(t *testing.T) {
		tr := &MockTransport{}
		client := newTestClient(tr, githubinfra.WithFileSystem(files))

		_, err := client.UploadReleaseAsset(context.Background(), "github", "/tmp/out/missing.zip", "https://upl.example/assets{?name,label}")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, fs.ErrNotExist))
		gt.Equal(t, len(tr.sent), 0)
	})
}

func TestClient_SimpleRequests(t *testing.T) {
	tests := []struct {
		name   string
		call   func(c *githubinfra.Client) (*model.Response, error)
		method string
		url    string
	}{
		{
			name: "DeleteReleaseAsset",
			call: func(c *githubinfra.Client) (*model.Response, error) {
				return c.DeleteReleaseAsset(context.Background(), "github", "octo/demo", "1234")
			},
			method: http.MethodDelete,
			url:    testBase + "/repos/octo/demo/releases/assets/1234",
		},
		{
			name: "GetBranch",
			call: func(c *githubinfra.Client) (*model.Response, error) {
				return c.GetBranch(context.Background(), "github", "octo/demo", "main")
			},
			method: http.MethodGet,
			url:    testBase + "/repos/octo/demo/branches/main",
		},
		{
			name: "GetTags",
			call: func(c *githubinfra.Client) (*model.Response, error) {
				return c.GetTags(context.Background(), "github", "octo/demo")
			},
			method: http.MethodGet,
			url:    testBase + "/repos/octo/demo/tags",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &MockTransport{}
			client := newTestClient(tr)

			for range 2 {
				_, err := tt.call(client)
				gt.NoError(t, err)
			}

			gt.Equal(t, len(tr.sent), 2)
			for _, sent := range tr.sent {
				gt.Value(t, sent.Method).Equal(tt.method)
				gt.Value(t, sent.URL).Equal(tt.url)
				gt.Value(t, sent.Headers["Authorization"]).Equal("token " + testToken)
				gt.Equal(t, len(sent.JSON), 0)
			}
		})
	}
}

func TestClient_Errors(t *testing.T) {
	t.Run("transport error is returned unchanged", func(t *testing.T) {
		errNetwork := errors.New("connection refused")
		tr := &MockTransport{err: errNetwork}
		client := newTestClient(tr)

		_, err := client.GetTags(context.Background(), "github", "octo/demo")
		gt.Value(t, err).Equal(errNetwork)
	})

	t.Run("non-2xx is returned as a response", func(t *testing.T) {
		tr := &MockTransport{responses: []*model.Response{jsonResponse(http.StatusUnprocessableEntity, map[string]any{"message": "Validation Failed"})}}
		client := newTestClient(tr)

		resp, err := client.CreateRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{Tag: "v1.0"})
		gt.NoError(t, err)
		gt.Value(t, resp.StatusCode).Equal(http.StatusUnprocessableEntity)
	})

	t.Run("token resolution failure sends nothing", func(t *testing.T) {
		tr := &MockTransport{}
		resolver := &staticResolver{base: testBase, err: errors.New("no credential")}
		client := githubinfra.NewClient(resolver, resolver, tr)

		_, err := client.DiscardRelease(context.Background(), "github", "octo/demo", "v1.0")
		gt.Error(t, err)
		gt.Equal(t, len(tr.sent), 0)
	})
}

func TestClient_DebugLogRedactsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.With(context.Background(), logger)

	tr := &MockTransport{}
	client := newTestClient(tr, githubinfra.WithRequestID(func() string { return "req-1" }))

	_, err := client.GetBranch(ctx, "github", "octo/demo", "main")
	gt.NoError(t, err)

	out := buf.String()
	gt.String(t, out).Contains("Get branch request")
	gt.String(t, out).Contains("request.id=req-1")
	gt.String(t, out).Contains(testBase + "/repos/octo/demo/branches/main")
	gt.String(t, out).Contains("token [REDACTED]")
	gt.String(t, out).NotContains(testToken)
}

func TestClient_UploadLogsOneDescriptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.With(context.Background(), logger)

	tr := &MockTransport{}
	files := memFS{"/tmp/out/artifact.zip": []byte("zip")}
	client := newTestClient(tr, githubinfra.WithFileSystem(files))

	_, err := client.UploadReleaseAsset(ctx, "github", "/tmp/out/artifact.zip", "https://upl.example/assets{?name,label}")
	gt.NoError(t, err)

	out := buf.String()
	gt.Equal(t, strings.Count(out, "\n"), 1)
	gt.String(t, out).Contains("Upload release asset request")
	gt.String(t, out).Contains("https://upl.example/assets?name=artifact.zip")
	gt.String(t, out).Contains("<stream 3 bytes>")
}

func TestClient_WithHTTPTransport(t *testing.T) {
	var deleted string
	router := chi.NewRouter()
	router.Get("/repos/{owner}/{repo}/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"id": 9007199254740993, "tag_name": "` + chi.URLParam(r, "tag") + `"}`))
	})
	router.Delete("/repos/{owner}/{repo}/releases/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = chi.URLParam(r, "id")
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	resolver := &staticResolver{base: server.URL, token: testToken}
	client := githubinfra.NewClient(resolver, resolver, transport.New())

	resp, err := client.DiscardRelease(context.Background(), "github", "octo/demo", "v1.0")
	gt.NoError(t, err)
	gt.Value(t, resp.StatusCode).Equal(http.StatusNoContent)
	gt.Value(t, deleted).Equal("9007199254740993")
}

func TestClient_LookupBehindFailingGateway(t *testing.T) {
	var mutated bool
	router := chi.NewRouter()
	router.Get("/repos/{owner}/{repo}/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	router.Patch("/repos/{owner}/{repo}/releases/{id}", func(w http.ResponseWriter, r *http.Request) {
		mutated = true
	})
	router.Delete("/repos/{owner}/{repo}/releases/{id}", func(w http.ResponseWriter, r *http.Request) {
		mutated = true
	})
	server := httptest.NewServer(router)
	defer server.Close()

	resolver := &staticResolver{base: server.URL, token: testToken}
	client := githubinfra.NewClient(resolver, resolver, transport.New())

	resp, err := client.DiscardRelease(context.Background(), "github", "octo/demo", "v1.0")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, githubinfra.ErrReleaseLookup))
	gt.Value(t, resp).Nil()

	resp, err = client.EditRelease(context.Background(), "github", "octo/demo", model.ReleaseInput{Tag: "v1.0"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, githubinfra.ErrReleaseLookup))
	gt.Value(t, resp).Nil()

	gt.False(t, mutated)
}
