package authsess

import (
	"context"
	"net/url"
	"strings"
)

// Decision is a guard verdict. When Allow is false, RedirectTo names where
// the caller should send the user instead.
type Decision struct {
	Allow      bool
	RedirectTo string
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to string) Decision { return Decision{RedirectTo: to} }

// RequireAuth guards routes that need any authenticated identity.
//
// An anonymous session with a persisted renewal credential gets one silent
// renewal attempt before the verdict, so a user returning after an access
// credential expired is not bounced through the login page. The denial
// redirect carries the requested path so a successful login can return the
// user where they were headed.
func (s *Session) RequireAuth(ctx context.Context, requestedPath string) Decision {
	if s.State() != StateAnonymous {
		return allow()
	}

	if _, err := s.store.Renewal(ctx, ""); err == nil {
		if s.Restore(ctx) {
			return allow()
		}
	}

	target := s.client.cfg.LoginRedirect
	if requestedPath != "" {
		target += "?return_to=" + url.QueryEscape(requestedPath)
	}
	return redirect(target)
}

// RequireTenant guards routes that need an active tenant scope. An
// authenticated session still choosing a tenant is redirected to login,
// where the pending selection prompt lives.
func (s *Session) RequireTenant(ctx context.Context, requestedPath string) Decision {
	if d := s.RequireAuth(ctx, requestedPath); !d.Allow {
		return d
	}
	if s.State() != StateAuthenticatedWithTenant {
		return redirect(s.client.cfg.LoginRedirect)
	}
	return allow()
}

// RequireRole guards routes that need one of the given roles within the
// active tenant. An empty role set means no restriction beyond RequireTenant.
// Role comparison is case-insensitive; providers have been observed emitting
// both "Admin" and "admin" for the same grant.
//
// An authenticated user with the wrong role is sent to the unauthorized
// page, not the login page. Logging in again would not change the answer.
func (s *Session) RequireRole(ctx context.Context, requestedPath string, roles ...string) Decision {
	if d := s.RequireTenant(ctx, requestedPath); !d.Allow {
		return d
	}
	if len(roles) == 0 {
		return allow()
	}

	m := s.Membership()
	if m != nil {
		for _, role := range roles {
			if strings.EqualFold(m.Role, role) {
				return allow()
			}
		}
	}
	return redirect(s.client.cfg.UnauthorizedRedirect)
}
