package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tidehook/authsess/pkg/idx"
)

// Transport is an http.RoundTripper that logs each outbound request and tags
// it with a ULID X-Request-ID when the caller did not set one. Wrap an SDK
// client's transport with it to correlate client and provider logs.
type Transport struct {
	// Base is the underlying round tripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Logger overrides the logger. Defaults to the request context's logger.
	Logger *slog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	reqID := req.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.New().String()
		// Per net/http contract RoundTrip must not mutate the request.
		req = req.Clone(req.Context())
		req.Header.Set("X-Request-ID", reqID)
	}

	logger := t.Logger
	if logger == nil {
		logger = FromContext(req.Context())
	}
	logger = logger.With(
		"req_id", reqID,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
