package authsess

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tidehook/authsess/pkg/credstore"

	"golang.org/x/sync/singleflight"
)

// ErrSessionReplaced reports that an asynchronous completion arrived after the
// session it belonged to was torn down or replaced. Its effects were
// discarded.
var ErrSessionReplaced = errors.New("authsess: session replaced before response applied")

// Session is the single owner of all mutable authentication state: current
// identity, current membership, credential pair, flow state, and the renewal
// timer. Every collaborator receives the one instance; there is no package
// level session.
//
// All state transitions happen under one lock, so a concurrent reader never
// observes credentials from one authentication paired with the identity of
// another. Events are emitted only after the state they describe has been
// committed.
type Session struct {
	client *Client
	store  *credstore.Store
	events *hub
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	identity   *Identity
	membership *Membership
	flow       FlowState
	flowErr    *APIError
	prompt     *SelectionPrompt
	generation uint64

	timerMu      sync.Mutex
	refreshTimer *time.Timer

	renewGroup singleflight.Group

	oauthMu     sync.Mutex
	oauthStates map[string]oauthState
}

// NewSession returns an anonymous session bound to client and store.
func NewSession(client *Client, store *credstore.Store) *Session {
	return &Session{
		client:      client,
		store:       store,
		events:      newHub(),
		logger:      client.cfg.Logger,
		state:       StateAnonymous,
		flow:        FlowIdle,
		oauthStates: make(map[string]oauthState),
	}
}

// Subscribe registers an observer for session events. Call the returned
// cancel function when done.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// State returns the current tri-valued session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the current identity snapshot, or nil when anonymous.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Membership returns the current membership, or nil.
func (s *Session) Membership() *Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membership
}

// Flow returns the authentication flow state with its error, if any.
func (s *Session) Flow() (FlowState, *APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow, s.flowErr
}

// Prompt returns the pending tenant-selection prompt, or nil.
func (s *Session) Prompt() *SelectionPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// AccessCredential exposes the in-memory access credential for collaborators
// that attach their own transport (e.g. websockets).
func (s *Session) AccessCredential() string {
	return s.store.AccessCredential()
}

// gen returns the current session generation. Asynchronous completions
// capture it when they start and must discard their effects if it changed.
func (s *Session) gen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) setFlow(flow FlowState, apiErr *APIError) {
	s.mu.Lock()
	s.flow = flow
	s.flowErr = apiErr
	s.mu.Unlock()
}

// tenantKey returns the persistence key component for the current membership.
func (s *Session) tenantKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.membership == nil {
		return ""
	}
	return s.membership.TenantID
}

// commitAuth applies a successful authentication atomically: credential pair
// and identity/membership are replaced together under the session lock, then
// the success event fires. A generation mismatch means a teardown won the
// race; the late response is discarded entirely.
func (s *Session) commitAuth(ctx context.Context, gen uint64, auth *AuthResponse, successEvent EventType) error {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrSessionReplaced
	}

	tenantKey := ""
	if auth.Membership != nil {
		tenantKey = auth.Membership.TenantID
	}

	if err := s.store.SetCredentialPair(ctx, auth.AccessToken, auth.RefreshToken, tenantKey); err != nil {
		s.flow = FlowError
		s.flowErr = &APIError{Kind: KindUnknown, Message: "failed to persist session credentials"}
		s.mu.Unlock()
		s.logger.Error("failed to persist credential pair", "error", err)
		return err
	}

	s.identity = auth.Identity
	s.membership = auth.Membership
	s.prompt = nil
	s.flow = FlowIdle
	s.flowErr = nil

	switch {
	case s.identity == nil:
		s.state = StateAnonymous
	case s.membership == nil:
		s.state = StateAuthenticatedNoTenant
	default:
		s.state = StateAuthenticatedWithTenant
	}

	identity, membership := s.identity, s.membership
	s.mu.Unlock()

	s.saveSnapshot(ctx, identity, membership)
	s.scheduleRefresh(auth.ExpiresIn, gen)

	s.events.emit(Event{Type: successEvent, Identity: identity, Membership: membership})
	return nil
}

// saveSnapshot caches identity/membership next to the renewal credential.
// Best effort; the cache is only a hint for the next startup.
func (s *Session) saveSnapshot(ctx context.Context, identity *Identity, membership *Membership) {
	var identityJSON, membershipJSON json.RawMessage
	if identity != nil {
		identityJSON, _ = json.Marshal(identity)
	}
	if membership != nil {
		membershipJSON, _ = json.Marshal(membership)
	}
	if err := s.store.SaveSnapshot(ctx, identityJSON, membershipJSON); err != nil {
		s.logger.Warn("failed to cache session snapshot", "error", err)
	}
}

// Teardown destroys the session: generation bumps so late completions are
// discarded, the pending renewal timer dies, the credential store is cleared,
// and state returns to anonymous. Safe to call repeatedly.
func (s *Session) Teardown(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	tenantKey := ""
	if s.membership != nil {
		tenantKey = s.membership.TenantID
	}
	wasAnonymous := s.state == StateAnonymous && s.identity == nil
	s.identity = nil
	s.membership = nil
	s.prompt = nil
	s.state = StateAnonymous
	s.flow = FlowIdle
	s.flowErr = nil
	s.mu.Unlock()

	s.cancelRefresh()

	if err := s.store.Clear(ctx, tenantKey); err != nil {
		s.logger.Warn("failed to clear credential store", "error", err)
	}

	if !wasAnonymous {
		s.events.emit(Event{Type: EventSignedOut})
	}
}

// Logout notifies the provider best-effort and tears the session down locally
// regardless of what the server answers.
func (s *Session) Logout(ctx context.Context) {
	var payload any
	if s.client.cfg.Mode == ModeBody {
		if rec, err := s.store.Renewal(ctx, ""); err == nil {
			payload = logoutPayload{RefreshToken: rec.RenewalCredential}
		}
	}

	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.client.send(notifyCtx, "POST", "/auth/logout", payload, nil); err != nil {
			s.logger.Debug("logout notification failed", "error", err)
		}
	}()

	s.Teardown(ctx)
}

// Restore attempts to resume a previous session on process start. With a
// persisted renewal credential it renews silently and rebuilds state from the
// live response, falling back to the cached identity/membership snapshot for
// fields the renewal payload omits. Snapshots are hints only; a renewal
// rejection tears down to anonymous without surfacing an error.
func (s *Session) Restore(ctx context.Context) bool {
	rec, err := s.store.Renewal(ctx, "")
	if err != nil {
		return false
	}

	gen := s.gen()
	resp, renewErr := s.renewShared(ctx)
	if renewErr != nil {
		// renew already tore the session down on rejection
		return false
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	if s.identity == nil && len(rec.Identity) > 0 {
		var cached Identity
		if json.Unmarshal(rec.Identity, &cached) == nil {
			s.identity = &cached
		}
	}
	if s.membership == nil && len(rec.Membership) > 0 {
		var cached Membership
		if json.Unmarshal(rec.Membership, &cached) == nil {
			s.membership = &cached
		}
	}
	// Live response wins over the snapshot whenever it carried anything.
	if resp.Identity != nil {
		s.identity = resp.Identity
	}
	if resp.Membership != nil {
		s.membership = resp.Membership
	}

	switch {
	case s.identity == nil:
		s.state = StateAnonymous
	case s.membership == nil:
		s.state = StateAuthenticatedNoTenant
	default:
		s.state = StateAuthenticatedWithTenant
	}
	identity, membership := s.identity, s.membership
	restored := s.state != StateAnonymous
	s.mu.Unlock()

	if restored {
		s.events.emit(Event{Type: EventSignedIn, Identity: identity, Membership: membership})
	}
	return restored
}
