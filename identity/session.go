// Package identity describes the sessions issued by an external identity
// provider and the cookie contract the provider uses to carry them.
package identity

import (
	"context"
	"time"
)

// SessionCookieName is the cookie carrying first-party session tokens
const SessionCookieName = "loggedInSessionId"

// Session is a time-bounded proof of authentication issued by a Provider.
type Session struct {
	Token     string    `json:"-"`          // Opaque provider token reference
	Subject   string    `json:"subject"`    // User identifier
	ExpiresAt time.Time `json:"expires_at"` // Instant the session stops being valid
}

// Remaining is the lifetime left at now. It is never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// Provider is the identity provider as seen by the back office. It is treated
// as a black box that may block on one network round trip.
type Provider interface {
	// GetSession returns the current session carried by jar, or (nil, nil)
	// when there is none. A provider may extend the session and set cookies
	// on jar while doing so.
	GetSession(ctx context.Context, jar CookieJar) (*Session, error)

	// RefreshSession extends the current session. It fails with
	// errors.ErrAuthAbsent when jar carries no valid session.
	RefreshSession(ctx context.Context, jar CookieJar) (*Session, error)
}

// SessionIssuer is implemented by providers that mint sessions themselves
// instead of delegating login to a remote authorization server.
type SessionIssuer interface {
	StartSession(ctx context.Context, jar CookieJar, subject string) (*Session, error)
}

// SessionEnder is implemented by providers that can log a session out.
type SessionEnder interface {
	EndSession(ctx context.Context, jar CookieJar) error
}
