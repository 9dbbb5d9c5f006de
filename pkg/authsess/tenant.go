package authsess

import (
	"context"
	"errors"
)

// Memberships lists every membership the authenticated identity holds,
// including ones that are not currently active. Requires authentication but
// not a selected tenant.
func (s *Session) Memberships(ctx context.Context) ([]Membership, error) {
	var memberships []Membership
	if err := s.Do(ctx, "GET", "/auth/memberships", nil, &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}

// SelectTenant resolves a pending tenant-selection prompt by exchanging the
// short-lived selection token for a full credential pair scoped to tenantID.
//
// On failure the flow stays in tenant selection with a fresh error, so the
// caller can retry with another candidate; the selection token remains
// usable until the provider expires it.
func (s *Session) SelectTenant(ctx context.Context, selectionToken, tenantID string) error {
	gen := s.gen()
	s.setFlow(FlowSubmitting, nil)

	payload := selectTenantPayload{
		SelectionToken: selectionToken,
		TenantID:       tenantID,
	}
	auth, apiErr := s.authPost(ctx, "/auth/select-tenant", payload, opSelect)
	if apiErr != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.flow = FlowTenantSelection
			s.flowErr = apiErr
		}
		s.mu.Unlock()
		return apiErr
	}
	return s.applyAuthOutcome(ctx, gen, auth, EventTenantSelected)
}

// SwitchTenant re-scopes an active session to another tenant the identity
// belongs to. It requires a fully established session; there is nothing to
// switch from otherwise.
//
// The switch replaces the credential pair and membership together and fires
// EventTenantSwitched. Observers must treat tenant-scoped data they cached
// under the previous tenant as stale.
func (s *Session) SwitchTenant(ctx context.Context, tenantID string) error {
	if s.State() != StateAuthenticatedWithTenant {
		return &APIError{
			Kind:    KindSwitchFailed,
			Message: "no active tenant session to switch from",
		}
	}

	gen := s.gen()
	s.setFlow(FlowSubmitting, nil)

	var auth AuthResponse
	err := s.do(ctx, opSwitch, "POST", "/auth/switch-tenant", switchTenantPayload{TenantID: tenantID}, &auth)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = networkError(err)
		}
		s.mu.Lock()
		if s.generation == gen {
			s.flow = FlowError
			s.flowErr = apiErr
		}
		s.mu.Unlock()
		return apiErr
	}
	return s.commitAuth(ctx, gen, &auth, EventTenantSwitched)
}
