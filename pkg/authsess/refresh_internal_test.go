package authsess

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshDelay(t *testing.T) {
	t.Parallel()

	margin := DefaultRefreshMargin

	t.Run("hour-long credential renews a minute early", func(t *testing.T) {
		require.Equal(t, 59*time.Minute, refreshDelay(3600, margin))
	})

	t.Run("credential shorter than the margin disables the timer", func(t *testing.T) {
		require.LessOrEqual(t, refreshDelay(30, margin), time.Duration(0))
	})

	t.Run("credential exactly at the margin disables the timer", func(t *testing.T) {
		require.LessOrEqual(t, refreshDelay(60, margin), time.Duration(0))
	})

	t.Run("zero lifetime disables the timer", func(t *testing.T) {
		require.LessOrEqual(t, refreshDelay(0, margin), time.Duration(0))
	})
}

func TestRenewBudget(t *testing.T) {
	t.Parallel()

	t.Run("tracks the client timeout", func(t *testing.T) {
		require.Equal(t, 4*time.Second, renewBudget(3*time.Second))
	})

	t.Run("zero client timeout falls back to the default", func(t *testing.T) {
		// A client scoping requests per context has Timeout zero; the
		// background renewal must not be starved down to one second.
		require.Equal(t, DefaultRequestTimeout+time.Second, renewBudget(0))
	})
}

func TestIsAuthPath(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{BaseURL: "https://idp.example.com"})
	require.NoError(t, err)

	for _, path := range []string{
		"/auth/login",
		"/auth/register",
		"/auth/select-tenant",
		"/auth/logout",
		"/auth/renew",
		"/auth/google/callback",
	} {
		require.True(t, client.isAuthPath(path), path)
	}

	// Tenant switching is authenticated even though it lives under /auth/.
	require.False(t, client.isAuthPath("/auth/switch-tenant"))
	require.False(t, client.isAuthPath("/api/profile"))
}

func TestSendStampsRequestID(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.send(context.Background(), "GET", "/ping", nil, nil)
	require.NoError(t, err)
	require.True(t, resp.ok())
	require.NotEmpty(t, got, "every round trip carries a correlation id")
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	t.Run("base URL required", func(t *testing.T) {
		_, err := NewClient(Config{})
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, KindConfiguration, apiErr.Kind)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "https://idp.example.com/"})
		require.NoError(t, err)
		require.Equal(t, "https://idp.example.com", client.BaseURL())
	})

	t.Run("cookie mode requires a jar", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "https://idp.example.com", Mode: ModeCookie})
		require.Error(t, err)
	})

	t.Run("empty provider name rejected", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "https://idp.example.com", Providers: []string{"google", ""}})
		require.Error(t, err)
	})
}

func TestEventHub(t *testing.T) {
	t.Parallel()

	t.Run("fan-out to all subscribers", func(t *testing.T) {
		h := newHub()
		a, cancelA := h.subscribe()
		b, cancelB := h.subscribe()
		defer cancelA()
		defer cancelB()

		h.emit(Event{Type: EventSignedIn})

		require.Equal(t, EventSignedIn, (<-a).Type)
		require.Equal(t, EventSignedIn, (<-b).Type)
	})

	t.Run("emit never blocks on a full subscriber", func(t *testing.T) {
		h := newHub()
		_, cancel := h.subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < subscriberBuffer*2; i++ {
				h.emit(Event{Type: EventForbidden})
			}
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("emit blocked on a subscriber that was not draining")
		}
	})

	t.Run("events carry id and timestamp", func(t *testing.T) {
		h := newHub()
		ch, cancel := h.subscribe()
		defer cancel()

		h.emit(Event{Type: EventSignedOut})
		ev := <-ch
		require.False(t, ev.ID.IsZero())
		require.False(t, ev.At.IsZero())
	})
}
