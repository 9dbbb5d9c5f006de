package authsess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidehook/authsess/pkg/idx"
	"github.com/tidehook/authsess/pkg/slogx"
)

// Client is the low-level HTTP surface for one identity provider. It owns the
// base URL, transport configuration, and response plumbing; all session logic
// lives on Session.
type Client struct {
	cfg Config
}

// NewClient validates cfg and returns a client. Configuration errors fail
// here, loudly, never at call time.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// BaseURL returns the provider base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

func (c *Client) url(path string) string {
	return c.cfg.BaseURL + path
}

// isAuthPath reports whether path is an authentication endpoint. Such paths
// never receive bearer injection, so an expired credential cannot cause a
// renew feedback loop.
func (c *Client) isAuthPath(path string) bool {
	if path == c.cfg.RenewPath {
		return true
	}
	switch path {
	case "/auth/login", "/auth/register", "/auth/select-tenant", "/auth/logout":
		return true
	}
	// OAuth callback paths are /auth/{provider}/callback. Tenant switching
	// lives under /auth/ too but is an authenticated operation and must NOT
	// match here, or it would lose the bearer and the 401 retry.
	return strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/callback")
}

// csrfToken reads the CSRF token from the readable cookie in cookie mode.
func (c *Client) csrfToken() string {
	if c.cfg.Mode != ModeCookie || c.cfg.HTTPClient.Jar == nil {
		return ""
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.cfg.HTTPClient.Jar.Cookies(base) {
		if cookie.Name == c.cfg.CSRFCookie {
			return cookie.Value
		}
	}
	return ""
}

// response is a decoded HTTP exchange. Body is fully read and the connection
// released before send returns.
type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

func (r *response) decode(target any) error {
	if target == nil || len(r.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs one HTTP round trip. The body is serialized to JSON only when
// non-nil. A transport failure (no response at all) returns a KindNetwork
// APIError; HTTP status handling is the caller's concern.
func (c *Client) send(
	ctx context.Context,
	method, path string,
	body any,
	headers map[string]string,
) (*response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// One request ID per round trip, stamped on both the wire and the
	// context logger so transport-level log lines correlate with it.
	reqID := idx.New().String()
	ctx = slogx.WithRequestID(ctx, reqID)

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Request-ID", reqID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	return &response{status: resp.StatusCode, body: data}, nil
}
