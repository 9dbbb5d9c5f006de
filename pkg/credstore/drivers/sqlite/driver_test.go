package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tidehook/authsess/pkg/credstore"

	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()

	d, err := New(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDriver(t)

	rec := credstore.Record{RenewalCredential: "rt-1"}
	require.NoError(t, d.Put(ctx, "tenant.acme", rec))

	got, err := d.Get(ctx, "tenant.acme")
	require.NoError(t, err)
	require.Equal(t, "rt-1", got.RenewalCredential)

	require.NoError(t, d.Delete(ctx, "tenant.acme"))
	_, err = d.Get(ctx, "tenant.acme")
	require.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestPutUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDriver(t)

	require.NoError(t, d.Put(ctx, "default", credstore.Record{RenewalCredential: "old"}))
	require.NoError(t, d.Put(ctx, "default", credstore.Record{RenewalCredential: "new"}))

	got, err := d.Get(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, "new", got.RenewalCredential)
}

func TestTenantEntriesCoexist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDriver(t)

	require.NoError(t, d.Put(ctx, "tenant.a", credstore.Record{RenewalCredential: "rt-a"}))
	require.NoError(t, d.Put(ctx, "tenant.b", credstore.Record{RenewalCredential: "rt-b"}))
	require.NoError(t, d.Delete(ctx, "tenant.a"))

	got, err := d.Get(ctx, "tenant.b")
	require.NoError(t, err)
	require.Equal(t, "rt-b", got.RenewalCredential)
}

func TestMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "creds.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "k", credstore.Record{RenewalCredential: "v"}))
	require.NoError(t, first.Close())

	// Reopening applies migrations again; data must survive.
	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", got.RenewalCredential)
}
