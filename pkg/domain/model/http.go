package model

import (
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// RedactedValue replaces credentials in logged descriptors
const RedactedValue = "[REDACTED]"

// Request describes a single API call. Exactly one of JSON or Stream is set
// when the call has a body.
type Request struct {
	ID      string // Correlates log lines of one call
	Method  string
	URL     string
	Headers map[string]string
	JSON    []byte
	Stream  io.Reader
}

// LogValue renders the whole descriptor. The Authorization credential is
// replaced with RedactedValue and stream bodies are not read.
func (r *Request) LogValue() slog.Value {
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		v := r.Headers[k]
		if strings.EqualFold(k, "Authorization") {
			v = redactCredential(v)
		}
		headers = append(headers, slog.String(k, v))
	}

	attrs := []slog.Attr{
		slog.String("id", r.ID),
		slog.String("method", r.Method),
		slog.String("url", r.URL),
		{Key: "headers", Value: slog.GroupValue(headers...)},
	}
	switch {
	case r.JSON != nil:
		attrs = append(attrs, slog.String("body", string(r.JSON)))
	case r.Stream != nil:
		attrs = append(attrs, slog.String("body", "<stream "+r.Headers["Content-Length"]+" bytes>"))
	}

	return slog.GroupValue(attrs...)
}

// Response is what a Transport returns for a completed call
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       any    // Parsed JSON, numbers as json.Number. Nil for non-JSON bodies
	Raw        []byte // Undecoded body
}

// LogValue omits the raw body to keep debug lines short
func (r *Response) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("status_code", r.StatusCode),
		slog.String("content_type", r.Headers.Get("Content-Type")),
		slog.String("size", strconv.Itoa(len(r.Raw))),
	)
}

// redactCredential keeps the auth scheme so logs still show how the call
// authenticated.
func redactCredential(v string) string {
	if scheme, _, ok := strings.Cut(v, " "); ok {
		return scheme + " " + RedactedValue
	}
	return RedactedValue
}
