package authsess_test

import (
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/tidehook/authsess/internal/idptest"
	"github.com/tidehook/authsess/pkg/authsess"
	"github.com/tidehook/authsess/pkg/credstore"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	alicePassword = "Tr1ckyPassw0rd!"
	bobPassword   = "An0therSecret!"
)

// newIdentityProvider provisions the fixture accounts every test shares:
// alice belongs to one tenant, bob to two active tenants plus a suspended
// one.
func newIdentityProvider(t *testing.T, opts ...idptest.Option) *idptest.Server {
	t.Helper()

	idp := idptest.New(opts...)
	t.Cleanup(idp.Close)

	idp.AddAccount(idptest.Account{
		Email:    "alice@example.com",
		Password: alicePassword,
		Identity: authsess.Identity{ID: "idn_alice", Email: "alice@example.com", Verified: true},
		Memberships: []authsess.Membership{
			{ID: "mem_a1", IdentityID: "idn_alice", TenantID: "tenant-acme", TenantName: "acme", Role: "admin", Status: authsess.MembershipActive},
		},
	})
	idp.AddAccount(idptest.Account{
		Email:    "bob@example.com",
		Password: bobPassword,
		Identity: authsess.Identity{ID: "idn_bob", Email: "bob@example.com", Verified: true},
		Memberships: []authsess.Membership{
			{ID: "mem_b1", IdentityID: "idn_bob", TenantID: "tenant-acme", TenantName: "acme", Role: "staff", Status: authsess.MembershipActive},
			{ID: "mem_b2", IdentityID: "idn_bob", TenantID: "tenant-globex", TenantName: "globex", Role: "owner", Status: authsess.MembershipActive},
			{ID: "mem_b3", IdentityID: "idn_bob", TenantID: "tenant-initech", TenantName: "initech", Role: "admin", Status: authsess.MembershipSuspended},
		},
	})
	return idp
}

// newTestSession wires a session against idp with an in-memory credential
// store and no login throttling.
func newTestSession(t *testing.T, idp *idptest.Server, mutate ...func(*authsess.Config)) *authsess.Session {
	t.Helper()

	cfg := authsess.Config{
		BaseURL:      idp.URL(),
		Platform:     "test",
		Providers:    []string{"google"},
		LoginLimiter: rate.NewLimiter(rate.Inf, 1),
		OAuthTimeout: 250 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := authsess.NewClient(cfg)
	require.NoError(t, err)

	return authsess.NewSession(client, credstore.New(credstore.NewMemory()))
}

// newCookieSession wires a session in cookie transport mode: credentials ride
// HttpOnly cookies in a jar and state-changing calls carry the CSRF header.
func newCookieSession(t *testing.T, idp *idptest.Server) *authsess.Session {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return newTestSession(t, idp, func(cfg *authsess.Config) {
		cfg.Mode = authsess.ModeCookie
		cfg.HTTPClient = &http.Client{Jar: jar}
	})
}

// sharedStore returns a driver that outlives any one Store, standing in for
// on-disk persistence across process restarts.
func sharedStore(t *testing.T) credstore.Driver {
	t.Helper()
	return credstore.NewMemory()
}

// newStoredSession builds a session over an existing driver, as a restarted
// process would.
func newStoredSession(t *testing.T, idp *idptest.Server, driver credstore.Driver) *authsess.Session {
	t.Helper()

	client, err := authsess.NewClient(authsess.Config{
		BaseURL:      idp.URL(),
		Platform:     "test",
		LoginLimiter: rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)

	return authsess.NewSession(client, credstore.New(driver))
}

// waitEvent blocks until an event of type want arrives, skipping others.
func waitEvent(t *testing.T, ch <-chan authsess.Event, want authsess.EventType) authsess.Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}
