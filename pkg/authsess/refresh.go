package authsess

import (
	"context"
	"time"
)

// refreshDelay converts a credential lifetime into the delay before proactive
// renewal, subtracting the safety margin. A non-positive result means the
// credential is too short-lived to schedule ahead of; callers skip the timer
// and let the reactive 401 path handle expiry.
func refreshDelay(expiresInSeconds int, margin time.Duration) time.Duration {
	return time.Duration(expiresInSeconds)*time.Second - margin
}

// scheduleRefresh re-arms the proactive renewal timer for a credential that
// expires in expiresInSeconds. Any previously armed timer is cancelled first,
// so at most one timer exists per session. The callback re-checks the
// generation before doing anything, which makes a timer that fires after
// teardown a no-op.
func (s *Session) scheduleRefresh(expiresInSeconds int, gen uint64) {
	delay := refreshDelay(expiresInSeconds, s.client.cfg.RefreshMargin)

	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if delay <= 0 {
		s.logger.Debug("credential lifetime within refresh margin, relying on reactive renewal",
			"expires_in", expiresInSeconds)
		return
	}

	s.refreshTimer = time.AfterFunc(delay, func() {
		if s.gen() != gen {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), renewBudget(s.client.cfg.HTTPClient.Timeout))
		defer cancel()
		if err := s.RenewNow(ctx); err != nil {
			// Renewal on the proactive path does not retry indefinitely.
			// A rejection already tore the session down inside renewOnce;
			// a transport failure tears it down here.
			s.logger.Warn("scheduled renewal failed", "error", err)
			if s.gen() == gen {
				s.Teardown(ctx)
			}
		}
	})
}

// renewBudget bounds a background renewal attempt. It tracks the HTTP
// client's own timeout when one is set. Caller-supplied clients often carry
// none and scope requests per context instead, so a zero timeout falls back
// to the default rather than starving the renewal.
func renewBudget(clientTimeout time.Duration) time.Duration {
	if clientTimeout <= 0 {
		clientTimeout = DefaultRequestTimeout
	}
	return clientTimeout + time.Second
}

func (s *Session) cancelRefresh() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}

// RenewNow exchanges the stored renewal credential for a fresh pair. All
// concurrent callers collapse onto a single in-flight renewal; each receives
// the shared outcome. Use it when a request has already bounced with 401 or
// when the proactive timer fires.
func (s *Session) RenewNow(ctx context.Context) error {
	_, err := s.renewShared(ctx)
	return err
}

func (s *Session) renewShared(ctx context.Context) (*RenewResponse, error) {
	gen := s.gen()
	v, err, _ := s.renewGroup.Do("renew", func() (any, error) {
		return s.renewOnce(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RenewResponse), nil
}

// renewOnce performs one renewal round-trip. A provider rejection or a
// missing credential tears the session down; a pure transport failure leaves
// state untouched so the caller can decide.
func (s *Session) renewOnce(ctx context.Context, gen uint64) (*RenewResponse, error) {
	rec, err := s.store.Renewal(ctx, "")
	if err != nil {
		s.logger.Debug("no renewal credential available", "error", err)
		s.Teardown(ctx)
		return nil, &APIError{
			Kind:    KindInvalidToken,
			Message: "no renewal credential available",
		}
	}

	var (
		body    any
		headers map[string]string
	)
	switch s.client.cfg.Mode {
	case ModeBody:
		body = renewPayload{RefreshToken: rec.RenewalCredential}
	case ModeCookie:
		if token := s.client.csrfToken(); token != "" {
			headers = map[string]string{s.client.cfg.CSRFHeader: token}
		}
	}

	resp, err := s.client.send(ctx, "POST", s.client.cfg.RenewPath, body, headers)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		apiErr := classify(opRenew, resp.status, resp.body)
		s.logger.Info("renewal rejected, tearing down session",
			"status", resp.status, "kind", apiErr.Kind)
		s.Teardown(ctx)
		return nil, apiErr
	}

	var renewed RenewResponse
	if err := resp.decode(&renewed); err != nil {
		s.Teardown(ctx)
		return nil, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, ErrSessionReplaced
	}
	renewal := renewed.RefreshToken
	if renewal == "" {
		// Provider did not rotate; the previous renewal credential stays
		// valid.
		renewal = rec.RenewalCredential
	}
	// The response's membership keys the persisted pair, so a renewal done
	// before local state is rebuilt (startup restore) still lands under the
	// tenant it belongs to.
	tenantKey := ""
	switch {
	case renewed.Membership != nil:
		tenantKey = renewed.Membership.TenantID
	case s.membership != nil:
		tenantKey = s.membership.TenantID
	}
	if err := s.store.SetCredentialPair(ctx, renewed.AccessToken, renewal, tenantKey); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if renewed.Identity != nil {
		s.identity = renewed.Identity
	}
	if renewed.Membership != nil {
		s.membership = renewed.Membership
		s.state = StateAuthenticatedWithTenant
	}
	s.mu.Unlock()

	s.scheduleRefresh(renewed.ExpiresIn, gen)
	return &renewed, nil
}
