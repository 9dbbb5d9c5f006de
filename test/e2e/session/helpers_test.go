package session_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tidehook/authsess/internal/idptest"
	"github.com/tidehook/authsess/pkg/authsess"
	"github.com/tidehook/authsess/pkg/credstore"
	"github.com/tidehook/authsess/pkg/cryptox"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

/*
 * End-to-end scenarios for the session manager: a real identity provider
 * process boundary (loopback HTTP), encrypted on-disk credential storage,
 * and full flows from sign-in through renewal to teardown.
 */

const (
	userEmail       = "dana@example.com"
	userPassword    = "E2ePassw0rd!"
	storePassphrase = "e2e-store-passphrase"
)

func startProvider(t *testing.T, opts ...idptest.Option) *idptest.Server {
	t.Helper()

	idp := idptest.New(opts...)
	t.Cleanup(idp.Close)

	idp.AddAccount(idptest.Account{
		Email:    userEmail,
		Password: userPassword,
		Identity: authsess.Identity{ID: "idn_dana", Email: userEmail, Verified: true},
		Memberships: []authsess.Membership{
			{ID: "mem_d1", IdentityID: "idn_dana", TenantID: "tenant-north", TenantName: "north", Role: "admin", Status: authsess.MembershipActive},
			{ID: "mem_d2", IdentityID: "idn_dana", TenantID: "tenant-south", TenantName: "south", Role: "staff", Status: authsess.MembershipActive},
		},
	})
	return idp
}

// credentialFile returns a per-test path for the encrypted credential file.
func credentialFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "credentials.enc")
}

// openSession builds a session over the encrypted file at path. Calling it
// twice with the same path simulates an application restart.
func openSession(t *testing.T, idp *idptest.Server, path string, mutate ...func(*authsess.Config)) *authsess.Session {
	t.Helper()

	box, err := cryptox.NewSealBox(storePassphrase)
	require.NoError(t, err)

	driver, err := credstore.NewFile(path, credstore.WithSealBox(box))
	require.NoError(t, err)

	cfg := authsess.Config{
		BaseURL:      idp.URL(),
		Platform:     "e2e",
		LoginLimiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := authsess.NewClient(cfg)
	require.NoError(t, err)

	return authsess.NewSession(client, credstore.New(driver))
}

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
