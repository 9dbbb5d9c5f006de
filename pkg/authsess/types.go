package authsess

import "time"

// ============================================================================
// Session Data Model
// ============================================================================

// Identity is a stable account record owned by the identity provider. The
// client holds an immutable snapshot, replaced wholesale on every successful
// authentication or renewal, never partially mutated.
type Identity struct {
	// ID is the unique identifier for the account
	ID string `json:"id"`

	// Email is the account's login email
	Email string `json:"email"`

	// Verified reports whether the email has been confirmed
	Verified bool `json:"verified"`

	// ProviderID is the linked external OAuth provider id, if any
	ProviderID string `json:"provider_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipInactive  MembershipStatus = "inactive"
	MembershipSuspended MembershipStatus = "suspended"
)

// Membership relates one Identity to one tenant. An identity may hold zero,
// one, or many memberships; at most one is current within a client session.
type Membership struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`
	TenantID   string `json:"tenant_id"`

	// TenantName is a display name, present when the provider includes it
	TenantName string `json:"tenant_name,omitempty"`

	// Role is a free-form role string, e.g. "owner", "admin", "staff"
	Role string `json:"role"`

	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// State is the tri-valued session aggregate.
type State string

const (
	// StateAnonymous means no identity is known.
	StateAnonymous State = "anonymous"

	// StateAuthenticatedNoTenant means the identity is known but no current
	// membership has been chosen (zero or ambiguous memberships).
	StateAuthenticatedNoTenant State = "authenticated-no-tenant"

	// StateAuthenticatedWithTenant means identity and current membership are
	// both known.
	StateAuthenticatedWithTenant State = "authenticated-with-tenant"
)

// FlowState tracks the authentication flow the session is currently in. It is
// what a login surface renders from.
type FlowState string

const (
	FlowIdle            FlowState = "idle"
	FlowSubmitting      FlowState = "submitting"
	FlowError           FlowState = "error"
	FlowTenantSelection FlowState = "tenant-selection-required"
)

// SelectionPrompt is surfaced when a login succeeded but more than one
// membership exists. The token authorizes exactly one SelectTenant call and is
// never persisted.
type SelectionPrompt struct {
	SelectionToken string
	Memberships    []Membership
}

// ============================================================================
// Wire Types
// ============================================================================

// AuthResponse is the provider payload for login, OAuth callback, tenant
// selection and tenant switch.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the access credential lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	Identity   *Identity   `json:"identity,omitempty"`
	Membership *Membership `json:"membership,omitempty"`

	// Memberships is present when the identity belongs to several tenants and
	// the provider wants the client to choose
	Memberships []Membership `json:"memberships,omitempty"`

	// SelectionToken accompanies Memberships and authorizes one select-tenant
	// call
	SelectionToken string `json:"selection_token,omitempty"`
}

// RenewResponse is the provider payload for the renewal endpoint. Identity and
// Membership are included by providers that support snapshot reconciliation;
// when present they override any locally cached snapshot.
type RenewResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`

	Identity   *Identity   `json:"identity,omitempty"`
	Membership *Membership `json:"membership,omitempty"`
}

type loginPayload struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Platform   string `json:"platform"`
	TenantSlug string `json:"tenant_slug,omitempty"`
	OTPCode    string `json:"otp_code,omitempty"`
}

type registerPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Platform    string `json:"platform"`
	TenantSlug  string `json:"tenant_slug,omitempty"`
}

type renewPayload struct {
	RefreshToken string `json:"refresh_token"`
}

type selectTenantPayload struct {
	SelectionToken string `json:"selection_token"`
	TenantID       string `json:"tenant_id"`
}

type switchTenantPayload struct {
	TenantID string `json:"tenant_id"`
}

type oauthCallbackPayload struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type logoutPayload struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}
