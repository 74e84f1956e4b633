package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/ghrelease/pkg/domain/interfaces"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	"github.com/m-mizutani/ghrelease/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Transport sends request descriptors over net/http
type Transport struct {
	httpClient *http.Client
	userAgent  string
}

var _ interfaces.Transport = (*Transport)(nil)

// Option is a functional option for Transport
type Option func(*Transport)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		t.httpClient = client
	}
}

// WithUserAgent sets the User-Agent sent when a request has none
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		t.userAgent = ua
	}
}

// New creates a Transport. Uploads can be large, so the default client has
// no overall timeout; cancel through the context instead.
func New(opts ...Option) *Transport {
	t := &Transport{
		httpClient: &http.Client{},
		userAgent:  "ghrelease/" + types.Version,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send performs the request and reads the full response. Status codes are not
// interpreted, and a body that fails to parse as JSON leaves Body nil.
func (t *Transport) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	httpReq, err := t.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request",
			goerr.V("method", req.Method),
			goerr.V("url", req.URL),
			goerr.V("request_id", req.ID),
		)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body",
			goerr.V("url", req.URL),
			goerr.V("request_id", req.ID),
		)
	}

	resp := &model.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Raw:        raw,
	}

	if len(raw) > 0 && isJSON(httpResp.Header.Get("Content-Type")) {
		body, err := decodeJSON(raw)
		if err != nil {
			// gateways may send HTML under a JSON content type
			ctxlog.From(ctx).Debug("Response body is not valid JSON",
				slog.String("request_id", req.ID),
				slog.Int("status_code", httpResp.StatusCode),
				slog.Any("error", err),
			)
		} else {
			resp.Body = body
		}
	}

	ctxlog.From(ctx).Debug("Received response",
		slog.String("request_id", req.ID),
		slog.Any("response", resp),
		slog.Duration("elapsed", time.Since(start)),
	)

	return resp, nil
}

func (t *Transport) build(ctx context.Context, req *model.Request) (*http.Request, error) {
	var body io.Reader
	switch {
	case req.Stream != nil:
		body = req.Stream
	case req.JSON != nil:
		body = bytes.NewReader(req.JSON)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request",
			goerr.V("method", req.Method),
			goerr.V("url", req.URL),
		)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" && t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	// net/http ignores a Content-Length header; streams need the field set
	if req.Stream != nil {
		if cl := req.Headers["Content-Length"]; cl != "" {
			n, err := strconv.ParseInt(cl, 10, 64)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid Content-Length", goerr.V("value", cl))
			}
			httpReq.ContentLength = n
		}
	}

	return httpReq, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
