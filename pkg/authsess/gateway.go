package authsess

import (
	"context"
	"net/http"
)

// requestHeaders builds the credential and tenant headers for a request to
// path. Authentication endpoints never receive the bearer; injecting a
// possibly-expired credential into the very calls that mint credentials would
// loop the 401 handling back into itself.
//
// The second return reports whether the request will carry a credential at
// all, which is what decides if a 401 is worth a renewal round-trip.
func (s *Session) requestHeaders(path string) (map[string]string, bool) {
	if s.client.isAuthPath(path) {
		return nil, false
	}

	headers := make(map[string]string, 2)
	carried := false

	switch s.client.cfg.Mode {
	case ModeBody:
		if token := s.store.AccessCredential(); token != "" {
			headers["Authorization"] = "Bearer " + token
			carried = true
		}
	case ModeCookie:
		// The credential rides in an HttpOnly cookie the jar attaches for
		// us. Whether one is attached is inferred from session state.
		carried = s.State() != StateAnonymous
		if token := s.client.csrfToken(); token != "" {
			headers[s.client.cfg.CSRFHeader] = token
		}
	}

	if m := s.Membership(); m != nil {
		headers[s.client.cfg.TenantHeader] = m.TenantID
	}
	return headers, carried
}

// Do performs an authenticated request against the provider and decodes the
// response into out (which may be nil).
//
// When a request that carried a credential bounces with 401, the session
// renews once and replays the request exactly once with the fresh
// credential. A second 401, or a failed renewal, surfaces the original
// failure and tears the session down so callers land in a coherent anonymous
// state rather than a half-authenticated one. Requests that carried no
// credential pass their 401 straight through.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	return s.do(ctx, opGeneric, method, path, body, out)
}

func (s *Session) do(ctx context.Context, op operation, method, path string, body, out any) error {
	headers, carried := s.requestHeaders(path)
	resp, err := s.client.send(ctx, method, path, body, headers)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && carried {
		original := classify(op, resp.status, resp.body)
		s.logger.Debug("request rejected with expired credential, renewing", "path", path)

		if renewErr := s.RenewNow(ctx); renewErr != nil {
			s.Teardown(ctx)
			return original
		}

		headers, _ = s.requestHeaders(path)
		resp, err = s.client.send(ctx, method, path, body, headers)
		if err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized {
			// Fresh credential rejected too. Not an expiry problem.
			s.Teardown(ctx)
			return original
		}
	}

	if resp.status == http.StatusForbidden {
		s.events.emit(Event{Type: EventForbidden})
		return classify(op, resp.status, resp.body)
	}
	if !resp.ok() {
		return classify(op, resp.status, resp.body)
	}
	return resp.decode(out)
}
