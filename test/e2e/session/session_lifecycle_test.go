package session_test

import (
	"testing"
	"time"

	"github.com/tidehook/authsess/internal/idptest"
	"github.com/tidehook/authsess/pkg/authsess"

	"github.com/stretchr/testify/require"
)

// TestSignInSelectAndWork walks the complete multi-tenant flow:
// 1. Login with an ambiguous account
// 2. Resolve the tenant-selection prompt
// 3. Call a protected resource through the gateway
// 4. Switch tenants and observe the role change
// 5. Logout
func TestSignInSelectAndWork(t *testing.T) {
	idp := startProvider(t)
	session := openSession(t, idp, credentialFile(t))
	events, cancel := session.Subscribe()
	defer cancel()

	// Login parks on tenant selection; nothing committed yet.
	require.NoError(t, session.LoginWithPassword(t.Context(), userEmail, userPassword))
	require.Equal(t, authsess.StateAnonymous, session.State())

	prompt := session.Prompt()
	require.NotNil(t, prompt)
	require.Len(t, prompt.Memberships, 2)

	// Choose a tenant; the session commits in one step.
	require.NoError(t, session.SelectTenant(t.Context(), prompt.SelectionToken, "tenant-north"))
	require.Equal(t, authsess.StateAuthenticatedWithTenant, session.State())
	require.Equal(t, "admin", session.Membership().Role)
	waitEvent(t, events, authsess.EventTenantSelected)

	// Work through the gateway.
	var profile authsess.Identity
	require.NoError(t, session.Do(t.Context(), "GET", "/api/profile", nil, &profile))
	require.Equal(t, "idn_dana", profile.ID)

	// Switch to the other tenant; the role follows the membership.
	require.NoError(t, session.SwitchTenant(t.Context(), "tenant-south"))
	require.Equal(t, "staff", session.Membership().Role)
	waitEvent(t, events, authsess.EventTenantSwitched)

	// The admin surface is gone under the new tenant.
	d := session.RequireRole(t.Context(), "/admin", "admin")
	require.False(t, d.Allow)

	session.Logout(t.Context())
	require.Equal(t, authsess.StateAnonymous, session.State())
	waitEvent(t, events, authsess.EventSignedOut)
}

// TestRestartRestoresSession verifies the persisted, encrypted renewal
// credential carries a session across an application restart.
func TestRestartRestoresSession(t *testing.T) {
	idp := startProvider(t)
	path := credentialFile(t)

	first := openSession(t, idp, path)
	require.NoError(t, first.LoginWithPassword(t.Context(), userEmail, userPassword,
		authsess.WithTenantSlug("north")))
	require.Equal(t, authsess.StateAuthenticatedWithTenant, first.State())

	// "Restart": a brand-new session over the same encrypted file.
	second := openSession(t, idp, path)
	require.Equal(t, authsess.StateAnonymous, second.State())

	require.True(t, second.Restore(t.Context()))
	require.Equal(t, authsess.StateAuthenticatedWithTenant, second.State())
	require.Equal(t, "idn_dana", second.Identity().ID)
	require.Equal(t, "tenant-north", second.Membership().TenantID)

	// The restored session works end to end.
	var profile authsess.Identity
	require.NoError(t, second.Do(t.Context(), "GET", "/api/profile", nil, &profile))
}

// TestExpiredCredentialRecovers verifies the reactive path: a revoked access
// credential bounces one request, renews once, and replays invisibly.
func TestExpiredCredentialRecovers(t *testing.T) {
	idp := startProvider(t)
	session := openSession(t, idp, credentialFile(t))

	require.NoError(t, session.LoginWithPassword(t.Context(), userEmail, userPassword,
		authsess.WithTenantSlug("north")))

	idp.RevokeAccessCredentials()
	renewsBefore := idp.RenewCalls()

	var profile authsess.Identity
	require.NoError(t, session.Do(t.Context(), "GET", "/api/profile", nil, &profile))
	require.Equal(t, renewsBefore+1, idp.RenewCalls())
	require.Equal(t, authsess.StateAuthenticatedWithTenant, session.State())
}

// TestRenewalRejectionTearsDown verifies a revoked renewal credential ends
// the session rather than looping.
func TestRenewalRejectionTearsDown(t *testing.T) {
	idp := startProvider(t)
	path := credentialFile(t)
	session := openSession(t, idp, path)
	events, cancel := session.Subscribe()
	defer cancel()

	require.NoError(t, session.LoginWithPassword(t.Context(), userEmail, userPassword,
		authsess.WithTenantSlug("north")))
	waitEvent(t, events, authsess.EventSignedIn)

	idp.RevokeAccessCredentials()
	idp.SetRejectRenewals(true)

	err := session.Do(t.Context(), "GET", "/api/profile", nil, nil)
	require.Error(t, err)
	require.Equal(t, authsess.StateAnonymous, session.State())
	waitEvent(t, events, authsess.EventSignedOut)

	// The stored credential died with the session; a restart stays logged
	// out instead of retrying a dead credential.
	idp.SetRejectRenewals(false)
	again := openSession(t, idp, path)
	require.False(t, again.Restore(t.Context()))
}

// TestProactiveRenewalAcrossExpiry verifies long-running sessions stay signed
// in without any request traffic.
func TestProactiveRenewalAcrossExpiry(t *testing.T) {
	idp := startProvider(t, idptest.WithAccessTTL(2*time.Second))
	session := openSession(t, idp, credentialFile(t), func(cfg *authsess.Config) {
		cfg.RefreshMargin = 1900 * time.Millisecond
	})

	require.NoError(t, session.LoginWithPassword(t.Context(), userEmail, userPassword,
		authsess.WithTenantSlug("north")))
	before := session.AccessCredential()

	require.Eventually(t, func() bool {
		return session.AccessCredential() != before
	}, 3*time.Second, 20*time.Millisecond)

	// Still fully usable after the silent renewal.
	var profile authsess.Identity
	require.NoError(t, session.Do(t.Context(), "GET", "/api/profile", nil, &profile))
}

// TestRegisterThenWork covers first-run onboarding: register, land signed in,
// call the API.
func TestRegisterThenWork(t *testing.T) {
	idp := startProvider(t)
	session := openSession(t, idp, credentialFile(t))

	err := session.Register(t.Context(), "eve@example.com", "Fresh1Passw0rd!", "Eve")
	require.NoError(t, err)

	// No memberships yet: authenticated but tenant-less.
	require.Equal(t, authsess.StateAuthenticatedNoTenant, session.State())
	require.NotEmpty(t, session.AccessCredential())

	d := session.RequireAuth(t.Context(), "/onboarding")
	require.True(t, d.Allow)
	d = session.RequireTenant(t.Context(), "/dashboard")
	require.False(t, d.Allow)
}
