// Package redisprovider keeps first-party sessions in Redis. Each session is
// a key whose TTL matches the session lifetime, so Redis does the expiry.
package redisprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	_ identity.Provider      = (*Provider)(nil)
	_ identity.SessionIssuer = (*Provider)(nil)
	_ identity.SessionEnder  = (*Provider)(nil)
)

type record struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Provider struct {
	redis      *redis.Client
	prefix     string
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

// New creates a provider storing sessions under "<prefix>:session:<token>".
func New(client *redis.Client, prefix string, duration time.Duration, opts ...Option) *Provider {
	p := &Provider{
		redis:      client,
		prefix:     strings.TrimSuffix(prefix, ":"),
		duration:   duration,
		cookieName: identity.SessionCookieName,
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) key(token string) string {
	return p.prefix + ":session:" + token
}

// CreateSession issues a new session for subject.
func (p *Provider) CreateSession(ctx context.Context, subject string) (*identity.Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.Validation("subject is required")
	}

	s := &identity.Session{
		Token:     uuid.NewString(),
		Subject:   subject,
		ExpiresAt: p.nowTime().Add(p.duration),
	}
	if err := p.save(ctx, s); err != nil {
		return nil, fmt.Errorf("[CreateSession] %w", err)
	}
	return s, nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (p *Provider) DeleteSession(ctx context.Context, token string) error {
	if err := p.redis.Del(ctx, p.key(token)).Err(); err != nil {
		return fmt.Errorf("[DeleteSession] %w", apperrors.Transient(err))
	}
	return nil
}

func (p *Provider) save(ctx context.Context, s *identity.Session) error {
	encoded, err := json.Marshal(record{Subject: s.Subject, ExpiresAt: s.ExpiresAt})
	if err != nil {
		return err
	}
	if err := p.redis.Set(ctx, p.key(s.Token), encoded, p.duration).Err(); err != nil {
		return apperrors.Transient(err)
	}
	return nil
}

// load returns (nil, nil) for an unknown or expired token.
func (p *Provider) load(ctx context.Context, token string) (*identity.Session, error) {
	raw, err := p.redis.Get(ctx, p.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Transient(err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s := &identity.Session{Token: token, Subject: rec.Subject, ExpiresAt: rec.ExpiresAt}
	if s.Expired(p.nowTime()) {
		return nil, nil
	}
	return s, nil
}

// GetSession slides the expiry forward once less than half of the lifetime
// remains, re-setting the cookie so the browser keeps it as long as Redis.
func (p *Provider) GetSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	token, ok := jar.Get(p.cookieName)
	if !ok {
		return nil, nil
	}

	s, err := p.load(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("[GetSession] %w", err)
	}
	if s == nil {
		jar.Remove(p.cookieName, p.cookieOptions(0))
		return nil, nil
	}

	if s.Remaining(p.nowTime()) < p.duration/2 {
		s.ExpiresAt = p.nowTime().Add(p.duration)
		if err := p.save(ctx, s); err != nil {
			// The session is still valid; only the extension failed.
			log.Warn().Err(err).Str("subject", s.Subject).Msg("failed to slide session expiry")
			return s, nil
		}
		jar.Set(p.cookieName, token, p.cookieOptions(p.duration))
	}
	return s, nil
}

func (p *Provider) RefreshSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	token, ok := jar.Get(p.cookieName)
	if !ok {
		return nil, apperrors.ErrAuthAbsent
	}

	s, err := p.load(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("[RefreshSession] %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("[RefreshSession] %w", apperrors.ErrAuthAbsent)
	}

	s.ExpiresAt = p.nowTime().Add(p.duration)
	if err := p.save(ctx, s); err != nil {
		return nil, fmt.Errorf("[RefreshSession] %w", err)
	}
	jar.Set(p.cookieName, token, p.cookieOptions(p.duration))
	return s, nil
}

// StartSession creates a session for subject and sets its cookie on jar.
func (p *Provider) StartSession(ctx context.Context, jar identity.CookieJar, subject string) (*identity.Session, error) {
	s, err := p.CreateSession(ctx, subject)
	if err != nil {
		return nil, err
	}
	jar.Set(p.cookieName, s.Token, p.cookieOptions(p.duration))
	return s, nil
}

func (p *Provider) EndSession(ctx context.Context, jar identity.CookieJar) error {
	if token, ok := jar.Get(p.cookieName); ok {
		if err := p.DeleteSession(ctx, token); err != nil {
			return err
		}
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
