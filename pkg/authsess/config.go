package authsess

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tidehook/authsess/pkg/slogx"

	"golang.org/x/time/rate"
)

// TransportMode selects how the renewal credential travels. Fixed at
// configuration time, never negotiated at runtime.
type TransportMode string

const (
	// ModeBody stores the renewal credential client-side and transmits it in
	// the renewal request body.
	ModeBody TransportMode = "body"

	// ModeCookie relies on an http-only cookie held by the provider; the
	// client sends a CSRF header read from a readable companion cookie.
	ModeCookie TransportMode = "cookie"
)

// Default endpoint paths and tuning. Paths are configuration; these are the
// provider's defaults.
const (
	DefaultRenewPath       = "/auth/renew"
	DefaultLoginRedirect   = "/login"
	DefaultUnauthorizedTo  = "/unauthorized"
	DefaultCSRFCookie      = "csrf_token"
	DefaultCSRFHeader      = "X-CSRF-Token"
	DefaultTenantHeader    = "X-Tenant-ID"
	DefaultRefreshMargin   = 60 * time.Second
	DefaultOAuthTimeout    = 2 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
)

// Config configures a Client. Zero values are filled with the defaults above;
// invalid combinations fail at construction, not at call time.
type Config struct {
	// BaseURL of the identity provider. Required.
	BaseURL string

	// Platform is the platform code sent with login and registration.
	Platform string

	// Mode is the renewal-credential transport. Defaults to ModeBody.
	Mode TransportMode

	// Providers lists the enabled OAuth providers ("google", "github", ...).
	// A login surface that offers OAuth with this empty is a configuration
	// error surfaced by BeginOAuth.
	Providers []string

	// RenewPath overrides the renewal endpoint path.
	RenewPath string

	// CSRFCookie / CSRFHeader configure cookie-mode CSRF forwarding.
	CSRFCookie string
	CSRFHeader string

	// TenantHeader carries the current tenant id on authenticated requests.
	TenantHeader string

	// LoginRedirect / UnauthorizedRedirect are the guard redirect targets.
	LoginRedirect        string
	UnauthorizedRedirect string

	// RefreshMargin is subtracted from the credential lifetime when arming
	// the proactive renewal timer.
	RefreshMargin time.Duration

	// OAuthTimeout bounds how long AwaitOAuthMessage waits for an external
	// completion message.
	OAuthTimeout time.Duration

	// HTTPClient overrides the HTTP client. Cookie mode requires a client
	// with a cookie jar.
	HTTPClient *http.Client

	// Logger overrides the logger used for gateway diagnostics.
	Logger *slog.Logger

	// LoginLimiter throttles calls to authentication endpoints. Defaults to
	// 5 per minute with a burst of 5, mirroring provider-side brute-force
	// limits so the client fails fast instead of burning attempts.
	LoginLimiter *rate.Limiter
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeBody
	}
	if c.RenewPath == "" {
		c.RenewPath = DefaultRenewPath
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = DefaultCSRFCookie
	}
	if c.CSRFHeader == "" {
		c.CSRFHeader = DefaultCSRFHeader
	}
	if c.TenantHeader == "" {
		c.TenantHeader = DefaultTenantHeader
	}
	if c.LoginRedirect == "" {
		c.LoginRedirect = DefaultLoginRedirect
	}
	if c.UnauthorizedRedirect == "" {
		c.UnauthorizedRedirect = DefaultUnauthorizedTo
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	if c.OAuthTimeout == 0 {
		c.OAuthTimeout = DefaultOAuthTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout:   DefaultRequestTimeout,
			Transport: &slogx.Transport{Logger: c.Logger},
		}
	}
	if c.LoginLimiter == nil {
		c.LoginLimiter = rate.NewLimiter(rate.Every(12*time.Second), 5)
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return configError("BaseURL is required")
	}
	if c.Mode != ModeBody && c.Mode != ModeCookie {
		return configError("unknown transport mode %q", c.Mode)
	}
	if slices.Contains(c.Providers, "") {
		return configError("provider names must not be empty")
	}
	if c.Mode == ModeCookie && c.HTTPClient.Jar == nil {
		return configError("cookie mode requires an HTTP client with a cookie jar")
	}
	return nil
}

// hasProvider reports whether name is a configured OAuth provider.
func (c *Config) hasProvider(name string) bool {
	for _, p := range c.Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
