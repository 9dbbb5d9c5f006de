// Package idptest is an in-process identity provider used by the session
// manager's tests. It speaks the same wire protocol a production deployment
// would: password and OAuth-callback login, tenant selection and switching,
// rotating renewal credentials, and JWT access credentials.
//
// The server is deliberately strict where the client must be correct
// (credential rotation, selection token single use, CSRF in cookie mode) and
// scriptable where tests need control (forced expiry, renewal rejection,
// call counters).
package idptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/tidehook/authsess/pkg/authsess"
	"github.com/tidehook/authsess/pkg/cryptox"

	"github.com/pquerna/otp/totp"
)

const (
	defaultAccessTTL = time.Hour

	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"

	accessCookieName  = "access_token"
	renewalCookieName = "refresh_token"
)

// Account is a provisioned test identity with its credentials and tenant
// memberships.
type Account struct {
	Email       string
	Password    string
	DisplayName string

	// TOTPSecret, when set, makes login require a valid one-time code.
	TOTPSecret string

	Identity    authsess.Identity
	Memberships []authsess.Membership
}

type refreshGrant struct {
	email    string
	tenantID string
}

// Server is a scriptable identity provider bound to an httptest listener.
type Server struct {
	httpServer *httptest.Server
	signingKey []byte

	mu              sync.Mutex
	accounts        map[string]*Account
	refreshGrants   map[string]refreshGrant
	selectionGrants map[string]string
	issuedJTIs      map[string]bool
	providers       map[string]string
	accessTTL       time.Duration
	rejectRenewals  bool
	cookieMode      bool

	loginCalls    int
	renewCalls    int
	resourceCalls int
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime reported (and enforced) for access
// credentials.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.accessTTL = ttl }
}

// WithCookieMode switches the server to cookie credential transport: tokens
// travel as cookies and state-changing calls require the CSRF header.
func WithCookieMode() Option {
	return func(s *Server) { s.cookieMode = true }
}

// New starts an identity provider on a loopback listener. Close it when the
// test finishes.
func New(opts ...Option) *Server {
	s := &Server{
		signingKey:      []byte(cryptox.MustGenerateToken(cryptox.TokenSize256)),
		accounts:        make(map[string]*Account),
		refreshGrants:   make(map[string]refreshGrant),
		selectionGrants: make(map[string]string),
		issuedJTIs:      make(map[string]bool),
		providers:       make(map[string]string),
		accessTTL:       defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/renew", s.handleRenew)
	mux.HandleFunc("POST /auth/select-tenant", s.handleSelectTenant)
	mux.HandleFunc("POST /auth/switch-tenant", s.handleSwitchTenant)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/{provider}/callback", s.handleOAuthCallback)
	mux.HandleFunc("GET /auth/memberships", s.handleMemberships)
	mux.HandleFunc("GET /api/profile", s.handleProfile)
	mux.HandleFunc("GET /api/admin/settings", s.handleAdminSettings)

	s.httpServer = httptest.NewServer(mux)
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the listener down.
func (s *Server) Close() { s.httpServer.Close() }

// AddAccount provisions acc for login. Memberships keep the order given;
// selection prompts preserve it.
func (s *Server) AddAccount(acc Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(acc.Email)] = &acc
}

// RegisterProvider wires an OAuth provider name to the account any callback
// for it signs in.
func (s *Server) RegisterProvider(name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = strings.ToLower(email)
}

// RevokeAccessCredentials invalidates every outstanding access credential
// while leaving renewal credentials valid. The next authenticated request
// gets a 401 and must renew.
func (s *Server) RevokeAccessCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedJTIs = make(map[string]bool)
}

// SetRejectRenewals makes the renewal endpoint answer 401 until reset.
func (s *Server) SetRejectRenewals(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRenewals = reject
}

// LoginCalls returns how many login attempts the server has seen.
func (s *Server) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// RenewCalls returns how many renewal attempts the server has seen.
func (s *Server) RenewCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renewCalls
}

// ResourceCalls returns how many protected-resource requests succeeded.
func (s *Server) ResourceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceCalls
}

// TOTPNow computes the current one-time code for secret, for tests driving a
// TOTP-enrolled account.
func TOTPNow(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}

// NewTOTPSecret generates an enrollment secret.
func NewTOTPSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "idptest", AccountName: "test"})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}
