// Package memprovider is an in-process identity provider holding sessions in
// a map. It is meant for development and tests.
package memprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
)

var (
	_ identity.Provider      = (*Provider)(nil)
	_ identity.SessionIssuer = (*Provider)(nil)
	_ identity.SessionEnder  = (*Provider)(nil)
)

// Provider is an in-memory implementation of identity.Provider
type Provider struct {
	mu       sync.RWMutex
	sessions map[string]identity.Session // token -> session

	duration   time.Duration
	cookieName string
	secure     bool
	nowTime    func() time.Time
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(p *Provider) {
		p.secure = secure
	}
}

// New creates a provider issuing sessions that last duration.
func New(duration time.Duration, opts ...Option) *Provider {
	p := &Provider{
		sessions:   make(map[string]identity.Session),
		duration:   duration,
		cookieName: identity.SessionCookieName,
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateSession issues a new session for subject.
func (p *Provider) CreateSession(subject string) (*identity.Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.Validation("subject is required")
	}

	s := identity.Session{
		Token:     uuid.NewString(),
		Subject:   subject,
		ExpiresAt: p.nowTime().Add(p.duration),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.Token] = s
	return &s, nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (p *Provider) DeleteSession(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, token)
}

// lookup returns the live session for token, evicting it when expired.
func (p *Provider) lookup(token string) (identity.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[token]
	if !ok {
		return identity.Session{}, false
	}
	if s.Expired(p.nowTime()) {
		delete(p.sessions, token)
		return identity.Session{}, false
	}
	return s, true
}

func (p *Provider) GetSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	token, ok := jar.Get(p.cookieName)
	if !ok {
		return nil, nil
	}
	s, ok := p.lookup(token)
	if !ok {
		jar.Remove(p.cookieName, p.cookieOptions(0))
		return nil, nil
	}
	return &s, nil
}

func (p *Provider) RefreshSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	token, ok := jar.Get(p.cookieName)
	if !ok {
		return nil, apperrors.ErrAuthAbsent
	}

	p.mu.Lock()
	s, ok := p.sessions[token]
	if !ok || s.Expired(p.nowTime()) {
		delete(p.sessions, token)
		p.mu.Unlock()
		return nil, fmt.Errorf("[RefreshSession] %w", apperrors.ErrAuthAbsent)
	}
	s.ExpiresAt = p.nowTime().Add(p.duration)
	p.sessions[token] = s
	p.mu.Unlock()

	jar.Set(p.cookieName, token, p.cookieOptions(p.duration))
	return &s, nil
}

// StartSession creates a session for subject and sets its cookie on jar.
func (p *Provider) StartSession(ctx context.Context, jar identity.CookieJar, subject string) (*identity.Session, error) {
	s, err := p.CreateSession(subject)
	if err != nil {
		return nil, err
	}
	jar.Set(p.cookieName, s.Token, p.cookieOptions(p.duration))
	return s, nil
}

func (p *Provider) EndSession(ctx context.Context, jar identity.CookieJar) error {
	if token, ok := jar.Get(p.cookieName); ok {
		p.DeleteSession(token)
	}
	jar.Remove(p.cookieName, p.cookieOptions(0))
	return nil
}

func (p *Provider) cookieOptions(maxAge time.Duration) identity.CookieOptions {
	return identity.CookieOptions{
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   p.secure,
	}
}
