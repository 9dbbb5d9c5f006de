// Package credstore holds the session's credential pair: the short-lived
// access credential lives only in process memory, the renewal credential is
// persisted behind a Driver under a tenant-scoped key so multiple tenant
// sessions can coexist in one persistent store.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// DefaultKey is the persistence key used when no tenant key is given.
const DefaultKey = "default"

// lastKeyEntry tracks the most recently written tenant key so a restarted
// process can locate its renewal credential without knowing the tenant.
const lastKeyEntry = "__last"

// ErrNotFound reports a missing persisted entry.
var ErrNotFound = errors.New("credstore: not found")

// Record is the persisted value for one tenant key. Identity and Membership
// are convenience cache snapshots only; callers must reconcile them against a
// live renewal response before trusting them.
type Record struct {
	RenewalCredential string          `json:"renewal_credential"`
	Identity          json.RawMessage `json:"identity,omitempty"`
	Membership        json.RawMessage `json:"membership,omitempty"`
	SavedAt           time.Time       `json:"saved_at"`
}

// Driver persists renewal-credential records. Implementations must tolerate
// concurrent use from multiple goroutines.
type Driver interface {
	Put(ctx context.Context, key string, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store is the credential store. Only the session coordinator writes to it;
// any flow may read.
type Store struct {
	mu      sync.RWMutex
	access  string
	lastKey string
	driver  Driver
}

// New returns a store backed by driver. The last-used tenant key is recovered
// from the driver if a previous process recorded one.
func New(driver Driver) *Store {
	s := &Store{driver: driver}

	if rec, err := driver.Get(context.Background(), lastKeyEntry); err == nil {
		s.lastKey = rec.RenewalCredential
	}
	return s
}

// SetAccessCredential replaces the in-memory access credential. No I/O.
func (s *Store) SetAccessCredential(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = v
}

// AccessCredential returns the in-memory access credential, or "".
func (s *Store) AccessCredential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// SetCredentialPair updates the in-memory access credential and persists the
// renewal credential under tenantKey (DefaultKey when empty). The written key
// becomes the last-used key.
func (s *Store) SetCredentialPair(ctx context.Context, access, renewal, tenantKey string) error {
	key := keyFor(tenantKey)

	s.mu.Lock()
	s.access = access
	s.lastKey = key
	s.mu.Unlock()

	if err := s.driver.Put(ctx, key, Record{RenewalCredential: renewal, SavedAt: time.Now().UTC()}); err != nil {
		return err
	}
	return s.driver.Put(ctx, lastKeyEntry, Record{RenewalCredential: key})
}

// SaveSnapshot attaches identity/membership cache snapshots to the last-used
// entry. Missing entry is not an error; there is simply nothing to annotate.
func (s *Store) SaveSnapshot(ctx context.Context, identity, membership json.RawMessage) error {
	s.mu.RLock()
	key := s.lastKey
	s.mu.RUnlock()
	if key == "" {
		key = DefaultKey
	}

	rec, err := s.driver.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	rec.Identity = identity
	rec.Membership = membership
	return s.driver.Put(ctx, key, rec)
}

// Renewal looks up the persisted record for tenantKey. An empty tenantKey
// falls back to the last-used key, then the default key.
func (s *Store) Renewal(ctx context.Context, tenantKey string) (Record, error) {
	if tenantKey != "" {
		return s.driver.Get(ctx, keyFor(tenantKey))
	}

	s.mu.RLock()
	last := s.lastKey
	s.mu.RUnlock()

	if last != "" {
		if rec, err := s.driver.Get(ctx, last); err == nil {
			return rec, nil
		} else if !errors.Is(err, ErrNotFound) {
			return Record{}, err
		}
	}
	return s.driver.Get(ctx, DefaultKey)
}

// LastTenantKey returns the last-used persistence key, or "".
func (s *Store) LastTenantKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKey
}

// Clear wipes the in-memory access credential and removes the persisted entry
// for the given (or last-used) tenant key. The default entry is removed as
// well so a torn-down session cannot resurrect from it.
func (s *Store) Clear(ctx context.Context, tenantKey string) error {
	key := keyFor(tenantKey)

	s.mu.Lock()
	s.access = ""
	if tenantKey == "" && s.lastKey != "" {
		key = s.lastKey
	}
	s.lastKey = ""
	s.mu.Unlock()

	if err := s.driver.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if key != DefaultKey {
		if err := s.driver.Delete(ctx, DefaultKey); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if err := s.driver.Delete(ctx, lastKeyEntry); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Close releases the underlying driver.
func (s *Store) Close() error { return s.driver.Close() }

func keyFor(tenantKey string) string {
	if tenantKey == "" {
		return DefaultKey
	}
	return "tenant." + tenantKey
}
