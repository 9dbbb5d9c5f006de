package authsess

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/tidehook/authsess/pkg/cryptox"
)

// OAuth flow sentinel errors, distinguishable from provider rejections.
var (
	// ErrOAuthTimeout reports that the external completion never arrived
	// within the configured window.
	ErrOAuthTimeout = errors.New("authsess: oauth completion timed out")

	// ErrOriginRejected reports a completion message from an unexpected
	// origin. The message was discarded unprocessed.
	ErrOriginRejected = errors.New("authsess: oauth message from unexpected origin rejected")
)

// oauthStateTTL bounds how long a started-but-unfinished OAuth flow keeps its
// nonce registered.
const oauthStateTTL = 10 * time.Minute

// oauthState is the round-tripped state parameter. It is encoded as
// base64url(JSON) and travels to the provider and back; the nonce ties the
// callback to a flow this session actually started.
type oauthState struct {
	Nonce      string `json:"nonce"`
	Platform   string `json:"platform,omitempty"`
	TenantSlug string `json:"tenant_slug,omitempty"`
	ReturnURL  string `json:"return_url,omitempty"`

	startedAt time.Time
}

// OAuthIntent describes a started OAuth flow. The caller navigates the user
// to AuthURL (full redirect or popup, its choice) and later completes the
// flow with the code and state the provider hands back.
type OAuthIntent struct {
	Provider string
	State    string
	AuthURL  string
}

// OAuthMessage is a completion notification relayed from an external surface
// such as a popup window or a loopback listener.
type OAuthMessage struct {
	Origin   string
	Provider string
	Code     string
	State    string
}

// BeginOAuth starts an OAuth flow with the named provider. An unknown
// provider is a configuration error: the UI offered a button the deployment
// does not support.
func (s *Session) BeginOAuth(provider, returnURL string, opts ...LoginOption) (*OAuthIntent, error) {
	if !s.client.cfg.hasProvider(provider) {
		return nil, configError("oauth provider %q is not configured", provider)
	}

	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	var pinned loginPayload
	for _, opt := range opts {
		opt(&pinned)
	}

	state := oauthState{
		Nonce:      nonce,
		Platform:   s.client.cfg.Platform,
		TenantSlug: pinned.TenantSlug,
		ReturnURL:  returnURL,
		startedAt:  time.Now(),
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)

	s.oauthMu.Lock()
	for n, st := range s.oauthStates {
		if time.Since(st.startedAt) > oauthStateTTL {
			delete(s.oauthStates, n)
		}
	}
	s.oauthStates[nonce] = state
	s.oauthMu.Unlock()

	// The flow suspends on the external completion from here on; surfaces
	// polling Flow must render the in-progress state, not idle.
	s.setFlow(FlowSubmitting, nil)

	query := url.Values{"state": {encoded}}
	return &OAuthIntent{
		Provider: provider,
		State:    encoded,
		AuthURL:  s.client.url("/auth/"+provider) + "?" + query.Encode(),
	}, nil
}

// CompleteOAuth exchanges the provider callback for a session. The state must
// decode to a nonce this session registered; each nonce completes at most
// once, which closes the replay window on a leaked callback URL.
func (s *Session) CompleteOAuth(ctx context.Context, provider, code, encodedState string) error {
	if _, err := s.consumeOAuthState(encodedState); err != nil {
		apiErr := &APIError{
			Kind:    KindInvalidToken,
			Message: "oauth state could not be verified",
		}
		s.setFlow(FlowError, apiErr)
		return apiErr
	}

	gen := s.gen()
	s.setFlow(FlowSubmitting, nil)

	payload := oauthCallbackPayload{Code: code, State: encodedState}
	auth, apiErr := s.authPost(ctx, "/auth/"+provider+"/callback", payload, opLogin)
	if apiErr != nil {
		s.setFlow(FlowError, apiErr)
		return apiErr
	}
	return s.applyAuthOutcome(ctx, gen, auth, EventSignedIn)
}

func (s *Session) consumeOAuthState(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("authsess: malformed oauth state")
	}
	var state oauthState
	if err := json.Unmarshal(raw, &state); err != nil || state.Nonce == "" {
		return "", errors.New("authsess: malformed oauth state")
	}

	s.oauthMu.Lock()
	defer s.oauthMu.Unlock()
	registered, ok := s.oauthStates[state.Nonce]
	if !ok {
		return "", errors.New("authsess: unknown oauth state nonce")
	}
	delete(s.oauthStates, state.Nonce)
	if time.Since(registered.startedAt) > oauthStateTTL {
		return "", errors.New("authsess: oauth state expired")
	}
	return state.Nonce, nil
}

// AwaitOAuthMessage waits for the completion message of an externalized OAuth
// flow (popup, loopback redirect) and finishes the login. Messages whose
// origin does not match expectedOrigin are rejected without processing; a
// missing message times out after the configured window rather than leaving
// the flow pending forever.
func (s *Session) AwaitOAuthMessage(ctx context.Context, inbox <-chan OAuthMessage, expectedOrigin string) error {
	timer := time.NewTimer(s.client.cfg.OAuthTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-inbox:
		if !ok {
			s.setFlow(FlowError, &APIError{
				Kind:    KindNetwork,
				Message: "sign-in window closed without completing",
			})
			return ErrOAuthTimeout
		}
		if msg.Origin != expectedOrigin {
			s.logger.Warn("rejected oauth message from unexpected origin", "origin", msg.Origin)
			s.setFlow(FlowError, &APIError{
				Kind:    KindInvalidToken,
				Message: "sign-in completion arrived from an unexpected origin",
			})
			return ErrOriginRejected
		}
		return s.CompleteOAuth(ctx, msg.Provider, msg.Code, msg.State)
	case <-timer.C:
		s.setFlow(FlowError, &APIError{
			Kind:    KindNetwork,
			Message: "sign-in window did not complete in time",
		})
		return ErrOAuthTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
