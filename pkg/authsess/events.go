package authsess

import (
	"sync"
	"time"

	"github.com/tidehook/authsess/pkg/idx"
)

// EventType labels a session event.
type EventType string

const (
	// EventSignedIn fires after a successful authentication has been fully
	// committed (credentials stored, state updated).
	EventSignedIn EventType = "signed_in"

	// EventSignedOut fires after teardown completes.
	EventSignedOut EventType = "signed_out"

	// EventSelectionRequired fires when login succeeded but a tenant must be
	// chosen. The event carries the selection token and candidates.
	EventSelectionRequired EventType = "selection_required"

	// EventTenantSelected fires after a tenant has been chosen.
	EventTenantSelected EventType = "tenant_selected"

	// EventTenantSwitched fires after a tenant switch. Observers should treat
	// any tenant-scoped cached data as stale.
	EventTenantSwitched EventType = "tenant_switched"

	// EventForbidden is a best-effort notification emitted when any request
	// receives a permission-denied response.
	EventForbidden EventType = "forbidden"
)

// Event is a session notification. State referenced by the event was
// committed before the event was emitted, so observers always see consistent
// session state.
type Event struct {
	ID   idx.ID
	Type EventType
	At   time.Time

	Identity   *Identity
	Membership *Membership

	// Selection fields, set for EventSelectionRequired
	SelectionToken string
	Memberships    []Membership
}

// hub is a non-blocking fan-out of session events. Emission never waits on a
// slow observer; a full subscriber channel drops the event for that
// subscriber only.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

const subscriberBuffer = 16

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

// subscribe registers an observer. The returned cancel function must be
// called to release the channel.
func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// emit delivers to every subscriber without blocking.
func (h *hub) emit(ev Event) {
	if ev.ID.IsZero() {
		ev.ID = idx.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub <- ev:
		default:
			// Observer is not keeping up. Session events are notifications,
			// not a durable log; dropping beats blocking the session.
		}
	}
}
