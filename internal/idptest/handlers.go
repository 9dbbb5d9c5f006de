package idptest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidehook/authsess/pkg/authsess"
	"github.com/tidehook/authsess/pkg/cryptox"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantSlug string `json:"tenant_slug"`
	OTPCode    string `json:"otp_code"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type renewRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type selectTenantRequest struct {
	SelectionToken string `json:"selection_token"`
	TenantID       string `json:"tenant_id"`
}

type switchTenantRequest struct {
	TenantID string `json:"tenant_id"`
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.loginCalls++
	s.mu.Unlock()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || acc.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "")
		return
	}
	if acc.TOTPSecret != "" && !totp.Validate(req.OTPCode, acc.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "one-time code required")
		return
	}

	s.resolveMemberships(w, acc, req.TenantSlug)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	email := strings.ToLower(req.Email)
	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}
	acc := &Account{
		Email:       email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Identity: authsess.Identity{
			ID:        "idn_" + cryptox.MustGenerateToken(cryptox.TokenSize128),
			Email:     email,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		},
	}
	s.accounts[email] = acc
	s.mu.Unlock()

	s.resolveMemberships(w, acc, "")
}

// resolveMemberships applies the tenant resolution rules shared by login,
// registration and the OAuth callback: inactive and suspended memberships
// never participate, a pinned slug must match, exactly one candidate signs
// in directly, several candidates defer to a selection token.
func (s *Server) resolveMemberships(w http.ResponseWriter, acc *Account, tenantSlug string) {
	active := make([]authsess.Membership, 0, len(acc.Memberships))
	for _, m := range acc.Memberships {
		if m.Status == authsess.MembershipActive {
			active = append(active, m)
		}
	}

	if tenantSlug != "" {
		for _, m := range active {
			if strings.EqualFold(m.TenantName, tenantSlug) || strings.EqualFold(m.TenantID, tenantSlug) {
				s.issueSession(w, acc, &m)
				return
			}
		}
		writeError(w, http.StatusForbidden, "membership_inactive", "no active membership in this organisation")
		return
	}

	switch len(active) {
	case 0:
		if len(acc.Memberships) > 0 {
			writeError(w, http.StatusForbidden, "membership_inactive", "all memberships are inactive")
			return
		}
		s.issueSession(w, acc, nil)
	case 1:
		s.issueSession(w, acc, &active[0])
	default:
		token := "sel_" + cryptox.MustGenerateToken(cryptox.TokenSize128)
		s.mu.Lock()
		s.selectionGrants[token] = strings.ToLower(acc.Email)
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, authsess.AuthResponse{
			Identity:       &acc.Identity,
			Memberships:    active,
			SelectionToken: token,
		})
	}
}

func (s *Server) handleSelectTenant(w http.ResponseWriter, r *http.Request) {
	var req selectTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	s.mu.Lock()
	email, ok := s.selectionGrants[req.SelectionToken]
	if ok {
		delete(s.selectionGrants, req.SelectionToken)
	}
	acc := s.accounts[email]
	s.mu.Unlock()

	if !ok || acc == nil {
		writeError(w, http.StatusUnauthorized, "selection_expired", "")
		return
	}
	for _, m := range acc.Memberships {
		if m.TenantID == req.TenantID && m.Status == authsess.MembershipActive {
			s.issueSession(w, acc, &m)
			return
		}
	}
	writeError(w, http.StatusForbidden, "membership_inactive", "no active membership in this organisation")
}

func (s *Server) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req switchTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	for _, m := range acc.Memberships {
		if m.TenantID == req.TenantID && m.Status == authsess.MembershipActive {
			s.issueSession(w, acc, &m)
			return
		}
	}
	writeError(w, http.StatusForbidden, "membership_inactive", "no active membership in this organisation")
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.renewCalls++
	reject := s.rejectRenewals
	s.mu.Unlock()

	if reject {
		writeError(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}
	if s.cookieMode && !s.csrfValid(r) {
		writeError(w, http.StatusForbidden, "csrf_mismatch", "")
		return
	}

	token := s.renewalCredential(r)
	s.mu.Lock()
	grant, ok := s.refreshGrants[token]
	if ok {
		// Rotation: a renewal credential is spent the moment it is used.
		delete(s.refreshGrants, token)
	}
	acc := s.accounts[grant.email]
	s.mu.Unlock()

	if !ok || acc == nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}

	var membership *authsess.Membership
	for _, m := range acc.Memberships {
		if m.TenantID == grant.tenantID && m.Status == authsess.MembershipActive {
			membership = &m
			break
		}
	}

	access, _ := s.mintAccess(acc, membership)
	renewal := s.mintRenewal(acc, membership)

	resp := authsess.RenewResponse{
		AccessToken:  access,
		RefreshToken: renewal,
		ExpiresIn:    int(s.accessTTL / time.Second),
		Identity:     &acc.Identity,
		Membership:   membership,
	}
	if s.cookieMode {
		s.setSessionCookies(w, access, renewal)
		resp.AccessToken = ""
		resp.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Code == "" || req.State == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code or state")
		return
	}

	s.mu.Lock()
	email, ok := s.providers[provider]
	acc := s.accounts[email]
	s.mu.Unlock()
	if !ok || acc == nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "unknown provider")
		return
	}
	s.resolveMemberships(w, acc, "")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.refreshGrants, req.RefreshToken)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMemberships(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	memberships := acc.Memberships
	if memberships == nil {
		memberships = []authsess.Membership{}
	}
	writeJSON(w, http.StatusOK, memberships)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.resourceCalls++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, acc.Identity)
}

func (s *Server) handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	_, claims, ok := s.authenticateClaims(w, r)
	if !ok {
		return
	}
	if !strings.EqualFold(claims.Role, "admin") && !strings.EqualFold(claims.Role, "owner") {
		writeError(w, http.StatusForbidden, "insufficient_role", "")
		return
	}
	s.mu.Lock()
	s.resourceCalls++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"theme": "dark"})
}

// ============================================================================
// Credential minting and verification
// ============================================================================

type accessClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (s *Server) mintAccess(acc *Account, membership *authsess.Membership) (token, jti string) {
	jti = cryptox.MustGenerateToken(cryptox.TokenSize128)
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.Identity.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Email: acc.Email,
	}
	if membership != nil {
		claims.TenantID = membership.TenantID
		claims.Role = membership.Role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic("idptest: failed to sign access token: " + err.Error())
	}

	s.mu.Lock()
	s.issuedJTIs[jti] = true
	s.mu.Unlock()
	return signed, jti
}

func (s *Server) mintRenewal(acc *Account, membership *authsess.Membership) string {
	token := "ren_" + cryptox.MustGenerateToken(cryptox.TokenSize256)
	grant := refreshGrant{email: strings.ToLower(acc.Email)}
	if membership != nil {
		grant.tenantID = membership.TenantID
	}
	s.mu.Lock()
	s.refreshGrants[token] = grant
	s.mu.Unlock()
	return token
}

func (s *Server) issueSession(w http.ResponseWriter, acc *Account, membership *authsess.Membership) {
	access, _ := s.mintAccess(acc, membership)
	renewal := s.mintRenewal(acc, membership)

	resp := authsess.AuthResponse{
		AccessToken:  access,
		RefreshToken: renewal,
		ExpiresIn:    int(s.accessTTL / time.Second),
		Identity:     &acc.Identity,
		Membership:   membership,
	}
	if s.cookieMode {
		s.setSessionCookies(w, access, renewal)
		resp.AccessToken = ""
		resp.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*Account, bool) {
	acc, _, ok := s.authenticateClaims(w, r)
	return acc, ok
}

func (s *Server) authenticateClaims(w http.ResponseWriter, r *http.Request) (*Account, *accessClaims, bool) {
	token := s.accessCredential(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return nil, nil, false
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		writeError(w, http.StatusUnauthorized, "invalid_token", "")
		return nil, nil, false
	}

	s.mu.Lock()
	revoked := !s.issuedJTIs[claims.ID]
	acc := s.accounts[strings.ToLower(claims.Email)]
	s.mu.Unlock()
	if revoked || acc == nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "")
		return nil, nil, false
	}
	return acc, &claims, true
}

func (s *Server) accessCredential(r *http.Request) string {
	if s.cookieMode {
		if c, err := r.Cookie(accessCookieName); err == nil {
			return c.Value
		}
		return ""
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) renewalCredential(r *http.Request) string {
	if s.cookieMode {
		if c, err := r.Cookie(renewalCookieName); err == nil {
			return c.Value
		}
		return ""
	}
	var req renewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req.RefreshToken
}

func (s *Server) setSessionCookies(w http.ResponseWriter, access, renewal string) {
	http.SetCookie(w, &http.Cookie{Name: accessCookieName, Value: access, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: renewalCookieName, Value: renewal, Path: "/auth", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: cryptox.MustGenerateToken(cryptox.TokenSize128), Path: "/"})
}

func (s *Server) csrfValid(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}
	return r.Header.Get(csrfHeaderName) == cookie.Value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
