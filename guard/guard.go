// Package guard decides, per request, whether a path under the protected
// prefix may be served. The decision depends only on the path and the
// session the identity provider finds in the request cookies.
package guard

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/rs/zerolog/log"
)

const DefaultProviderTimeout = 3 * time.Second

type Kind int

const (
	// Excluded paths are not protected and are allowed without a session query.
	Excluded Kind = iota
	Allow
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "excluded"
	}
}

type Decision struct {
	Kind     Kind
	Location string            // Redirect target
	Session  *identity.Session // Set when Kind is Allow
}

type Guard struct {
	provider identity.Provider
	prefix   string
	timeout  time.Duration
	matcher  *Matcher
	nowTime  func() time.Time
}

// Option defines a function type to modify the Guard instance.
type Option func(*Guard)

// WithTimeout bounds each session query.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		g.timeout = d
	}
}

// WithMatcher replaces the upstream path filter used by Middleware.
func WithMatcher(m *Matcher) Option {
	return func(g *Guard) {
		g.matcher = m
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Guard) {
		g.nowTime = nowFunc
	}
}

func New(provider identity.Provider, protectedPrefix string, opts ...Option) (*Guard, error) {
	if provider == nil {
		return nil, errors.New("[guard New] identity provider is required")
	}
	prefix := "/" + strings.Trim(protectedPrefix, "/")
	if prefix == "/" {
		return nil, errors.New("[guard New] protected prefix cannot be the site root")
	}

	g := &Guard{
		provider: provider,
		prefix:   prefix,
		timeout:  DefaultProviderTimeout,
		matcher:  DefaultMatcher(),
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Prefix returns the protected prefix root, which is also the redirect target.
func (g *Guard) Prefix() string {
	return g.prefix
}

// IsProtected reports whether p lies under the protected prefix. The prefix
// root itself is the public landing page and is not protected.
func (g *Guard) IsProtected(p string) bool {
	cleaned := path.Clean("/" + p)
	return strings.HasPrefix(cleaned, g.prefix+"/")
}

// Decide queries the provider for protected paths only. A provider error, a
// missing session or a query that outlives the timeout all redirect to the
// prefix root.
func (g *Guard) Decide(ctx context.Context, p string, jar identity.CookieJar) Decision {
	if !g.IsProtected(p) {
		return Decision{Kind: Excluded}
	}

	session, err := g.querySession(ctx, jar)
	if err != nil {
		log.Warn().Err(err).Str("path", p).Msg("session query failed, redirecting")
		return Decision{Kind: Redirect, Location: g.prefix}
	}
	if session == nil || session.Expired(g.nowTime()) {
		return Decision{Kind: Redirect, Location: g.prefix}
	}
	return Decision{Kind: Allow, Session: session}
}

type queryResult struct {
	session *identity.Session
	err     error
}

// Session asks the provider for the session carried by jar, bounded by the
// guard's timeout.
func (g *Guard) Session(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	return g.querySession(ctx, jar)
}

// Refresh extends the session carried by jar, bounded by the guard's timeout.
func (g *Guard) Refresh(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	return g.bounded(ctx, func(ctx context.Context) (*identity.Session, error) {
		return g.provider.RefreshSession(ctx, jar)
	})
}

func (g *Guard) querySession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	return g.bounded(ctx, func(ctx context.Context) (*identity.Session, error) {
		return g.provider.GetSession(ctx, jar)
	})
}

// bounded gives up at the deadline even if the provider ignores ctx.
func (g *Guard) bounded(ctx context.Context, call func(context.Context) (*identity.Session, error)) (*identity.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan queryResult, 1)
	go func() {
		s, err := call(ctx)
		done <- queryResult{session: s, err: err}
	}()

	select {
	case res := <-done:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
