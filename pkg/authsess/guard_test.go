package authsess_test

import (
	"testing"

	"github.com/tidehook/authsess/pkg/authsess"

	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	t.Run("anonymous redirects to login with the requested path", func(t *testing.T) {
		idp := newIdentityProvider(t)
		session := newTestSession(t, idp)

		d := session.RequireAuth(t.Context(), "/reports/weekly")
		require.False(t, d.Allow)
		require.Equal(t, "/login?return_to=%2Freports%2Fweekly", d.RedirectTo)
	})

	t.Run("authenticated passes", func(t *testing.T) {
		idp := newIdentityProvider(t)
		session := newTestSession(t, idp)
		require.NoError(t, session.LoginWithPassword(t.Context(), "alice@example.com", alicePassword))

		d := session.RequireAuth(t.Context(), "/reports/weekly")
		require.True(t, d.Allow)
	})

	t.Run("persisted credential restores instead of redirecting", func(t *testing.T) {
		idp := newIdentityProvider(t)
		store := sharedStore(t)

		first := newStoredSession(t, idp, store)
		require.NoError(t, first.LoginWithPassword(t.Context(), "alice@example.com", alicePassword))

		second := newStoredSession(t, idp, store)
		d := second.RequireAuth(t.Context(), "/reports/weekly")
		require.True(t, d.Allow)
		require.Equal(t, authsess.StateAuthenticatedWithTenant, second.State())
	})

	t.Run("rejected restore still redirects", func(t *testing.T) {
		idp := newIdentityProvider(t)
		store := sharedStore(t)

		first := newStoredSession(t, idp, store)
		require.NoError(t, first.LoginWithPassword(t.Context(), "alice@example.com", alicePassword))

		idp.SetRejectRenewals(true)
		second := newStoredSession(t, idp, store)
		d := second.RequireAuth(t.Context(), "/reports/weekly")
		require.False(t, d.Allow)
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	idp := newIdentityProvider(t)
	session := newTestSession(t, idp)

	// Ambiguous login: authenticated flow paused on selection, no tenant.
	require.NoError(t, session.LoginWithPassword(t.Context(), "bob@example.com", bobPassword))

	d := session.RequireTenant(t.Context(), "/dashboard")
	require.False(t, d.Allow)

	prompt := session.Prompt()
	require.NotNil(t, prompt)
	require.NoError(t, session.SelectTenant(t.Context(), prompt.SelectionToken, "tenant-acme"))

	d = session.RequireTenant(t.Context(), "/dashboard")
	require.True(t, d.Allow)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	login := func(t *testing.T, slug string) *authsess.Session {
		t.Helper()
		idp := newIdentityProvider(t)
		session := newTestSession(t, idp)
		require.NoError(t, session.LoginWithPassword(t.Context(), "bob@example.com", bobPassword,
			authsess.WithTenantSlug(slug)))
		return session
	}

	t.Run("empty role set only requires a tenant", func(t *testing.T) {
		session := login(t, "acme")
		d := session.RequireRole(t.Context(), "/dashboard")
		require.True(t, d.Allow)
	})

	t.Run("matching role passes", func(t *testing.T) {
		session := login(t, "globex") // owner
		d := session.RequireRole(t.Context(), "/admin", "admin", "owner")
		require.True(t, d.Allow)
	})

	t.Run("role match is case-insensitive", func(t *testing.T) {
		session := login(t, "globex")
		d := session.RequireRole(t.Context(), "/admin", "OWNER")
		require.True(t, d.Allow)
	})

	t.Run("wrong role goes to unauthorized, not login", func(t *testing.T) {
		session := login(t, "acme") // staff
		d := session.RequireRole(t.Context(), "/admin", "admin", "owner")
		require.False(t, d.Allow)
		require.Equal(t, "/unauthorized", d.RedirectTo)
	})

	t.Run("anonymous goes to login, not unauthorized", func(t *testing.T) {
		idp := newIdentityProvider(t)
		session := newTestSession(t, idp)
		d := session.RequireRole(t.Context(), "/admin", "admin")
		require.False(t, d.Allow)
		require.Contains(t, d.RedirectTo, "/login")
	})
}
