package authsess

import (
	"context"
	"errors"
)

// LoginOption customises a password login attempt.
type LoginOption func(*loginPayload)

// WithTenantSlug pins the login to a known tenant, bypassing tenant selection
// when the account belongs to several.
func WithTenantSlug(slug string) LoginOption {
	return func(p *loginPayload) { p.TenantSlug = slug }
}

// WithTOTP attaches a one-time code for accounts with TOTP enrolled.
func WithTOTP(code string) LoginOption {
	return func(p *loginPayload) { p.OTPCode = code }
}

// LoginWithPassword authenticates with email and password.
//
// On success the session commits the new credential pair and identity
// together and fires EventSignedIn. When the account belongs to multiple
// tenants and no slug was pinned, nothing is committed: the flow moves to
// tenant selection, EventSelectionRequired fires, and the caller resolves it
// via SelectTenant. On failure the flow carries a classified error and the
// session state is untouched.
func (s *Session) LoginWithPassword(ctx context.Context, email, password string, opts ...LoginOption) error {
	payload := loginPayload{
		Email:    email,
		Password: password,
		Platform: s.client.cfg.Platform,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	gen := s.gen()
	s.setFlow(FlowSubmitting, nil)

	auth, apiErr := s.authPost(ctx, "/auth/login", payload, opLogin)
	if apiErr != nil {
		s.setFlow(FlowError, apiErr)
		return apiErr
	}
	return s.applyAuthOutcome(ctx, gen, auth, EventSignedIn)
}

// Register creates an account and signs it in within the same exchange.
func (s *Session) Register(ctx context.Context, email, password, displayName string) error {
	payload := registerPayload{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
		Platform:    s.client.cfg.Platform,
	}

	gen := s.gen()
	s.setFlow(FlowSubmitting, nil)

	auth, apiErr := s.authPost(ctx, "/auth/register", payload, opLogin)
	if apiErr != nil {
		s.setFlow(FlowError, apiErr)
		return apiErr
	}
	return s.applyAuthOutcome(ctx, gen, auth, EventSignedIn)
}

// authPost performs one throttled call against an authentication endpoint and
// classifies any failure. The limiter mirrors provider-side brute force
// limits so repeated submissions queue locally instead of burning attempts.
func (s *Session) authPost(ctx context.Context, path string, payload any, op operation) (*AuthResponse, *APIError) {
	if err := s.client.cfg.LoginLimiter.Wait(ctx); err != nil {
		return nil, networkError(err)
	}

	var headers map[string]string
	if s.client.cfg.Mode == ModeCookie {
		if token := s.client.csrfToken(); token != "" {
			headers = map[string]string{s.client.cfg.CSRFHeader: token}
		}
	}

	resp, err := s.client.send(ctx, "POST", path, payload, headers)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, networkError(err)
	}
	if !resp.ok() {
		return nil, classify(op, resp.status, resp.body)
	}

	var auth AuthResponse
	if err := resp.decode(&auth); err != nil {
		return nil, &APIError{
			Kind:    KindServerError,
			Status:  resp.status,
			Message: "provider returned an unreadable response",
		}
	}
	return &auth, nil
}

// applyAuthOutcome routes a successful authentication response. Ambiguous
// multi-tenant logins park in tenant selection without touching committed
// state; everything else commits.
func (s *Session) applyAuthOutcome(ctx context.Context, gen uint64, auth *AuthResponse, successEvent EventType) error {
	if auth.SelectionToken != "" && len(auth.Memberships) > 1 {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return ErrSessionReplaced
		}
		s.flow = FlowTenantSelection
		s.flowErr = nil
		s.prompt = &SelectionPrompt{
			SelectionToken: auth.SelectionToken,
			Memberships:    auth.Memberships,
		}
		s.mu.Unlock()

		s.events.emit(Event{
			Type:           EventSelectionRequired,
			SelectionToken: auth.SelectionToken,
			Memberships:    auth.Memberships,
		})
		return nil
	}
	return s.commitAuth(ctx, gen, auth, successEvent)
}
