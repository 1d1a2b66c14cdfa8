// Package oidcprovider delegates authentication to an OpenID Connect
// authorization server. The ID token is kept in a cookie and verified on
// every request; the refresh token cookie is used to renew it.
package oidcprovider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/jrsteele09/go-backoffice/identity/oidcprovider/flowstate"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	IDTokenCookie      = "id_token"
	RefreshTokenCookie = "refresh_token"
	// FlowCookie binds an in-progress login to the browser that started it
	FlowCookie = "auth_session_id"

	flowLifetime      = 10 * time.Minute
	refreshCookieLife = 30 * 24 * time.Hour
)

var (
	_ identity.Provider     = (*Provider)(nil)
	_ identity.SessionEnder = (*Provider)(nil)
)

// Config is what the back office needs to know about its OIDC client.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	flows        flowstate.Repo
	secure       bool
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithFlowRepo replaces the in-memory login flow store.
func WithFlowRepo(repo flowstate.Repo) Option {
	return func(p *Provider) {
		p.flows = repo
	}
}

// WithSecureCookies marks the token cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(p *Provider) {
		p.secure = secure
	}
}

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[oidcprovider New] failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewWithVerifier(oauth2Config, verifier, opts...), nil
}

// NewWithVerifier builds a provider from an explicit client configuration and
// token verifier.
func NewWithVerifier(oauth2Config *oauth2.Config, verifier *oidc.IDTokenVerifier, opts ...Option) *Provider {
	p := &Provider{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		flows:        flowstate.NewInMemoryRepo(flowLifetime),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Claims are the identity claims the back office reads from an ID token.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Nonce   string `json:"nonce"`
}

// GetSession verifies the ID token cookie. An expired token is renewed with
// the refresh token cookie when one is present.
func (p *Provider) GetSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	rawIDToken, hasID := jar.Get(IDTokenCookie)
	_, hasRefresh := jar.Get(RefreshTokenCookie)

	if !hasID {
		if !hasRefresh {
			return nil, nil
		}
		return p.refresh(ctx, jar)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) && hasRefresh {
			return p.refresh(ctx, jar)
		}
		p.clearCookies(jar)
		if errors.As(err, &expired) {
			return nil, nil
		}
		return nil, fmt.Errorf("[GetSession] ID token verification failed: %w", err)
	}
	return sessionFromToken(rawIDToken, idToken), nil
}

func (p *Provider) RefreshSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	if _, ok := jar.Get(RefreshTokenCookie); !ok {
		return nil, apperrors.ErrAuthAbsent
	}
	return p.refresh(ctx, jar)
}

func (p *Provider) refresh(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	refreshToken, _ := jar.Get(RefreshTokenCookie)

	token, err := p.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The authorization server rejected the refresh token.
			p.clearCookies(jar)
			return nil, fmt.Errorf("[refresh] %w: %v", apperrors.ErrAuthAbsent, err)
		}
		return nil, fmt.Errorf("[refresh] token refresh failed: %w", err)
	}

	session, _, err := p.storeTokens(ctx, jar, token)
	if err != nil {
		return nil, fmt.Errorf("[refresh] %w", err)
	}
	log.Debug().Str("subject", session.Subject).Time("expires_at", session.ExpiresAt).Msg("refreshed OIDC session")
	return session, nil
}

// storeTokens verifies the ID token in an authorization server response and
// writes the token cookies.
func (p *Provider) storeTokens(ctx context.Context, jar identity.CookieJar, token *oauth2.Token) (*identity.Session, *oidc.IDToken, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, errors.New("no ID token in response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("ID token verification failed: %w", err)
	}

	jar.Set(IDTokenCookie, rawIDToken, p.cookieOptions(time.Until(idToken.Expiry)))
	if token.RefreshToken != "" {
		jar.Set(RefreshTokenCookie, token.RefreshToken, p.cookieOptions(refreshCookieLife))
	}
	return sessionFromToken(rawIDToken, idToken), idToken, nil
}

// BeginLogin records a new login flow and returns the authorization URL to
// redirect the browser to. returnURL must be a local path.
func (p *Provider) BeginLogin(jar identity.CookieJar, returnURL string) (string, error) {
	state := randomString(32)
	nonce := randomString(32)
	verifier := oauth2.GenerateVerifier()

	flow := &flowstate.FlowState{
		CodeVerifier: verifier,
		Nonce:        nonce,
		ReturnURL:    localPath(returnURL),
	}
	if err := p.flows.Upsert(state, flow); err != nil {
		return "", fmt.Errorf("[BeginLogin] %w", err)
	}
	jar.Set(FlowCookie, state, p.cookieOptions(flowLifetime))

	return p.oauth2Config.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// LoginResult is the outcome of a completed authorization code flow.
type LoginResult struct {
	Session   *identity.Session
	Claims    Claims
	ReturnURL string
}

// CompleteLogin redeems the authorization code of the flow identified by
// state. The state must match the one bound to the browser by BeginLogin.
func (p *Provider) CompleteLogin(ctx context.Context, jar identity.CookieJar, state, code string) (*LoginResult, error) {
	if state == "" || code == "" {
		return nil, apperrors.Validation("missing code or state parameter")
	}
	bound, ok := jar.Get(FlowCookie)
	jar.Remove(FlowCookie, p.cookieOptions(0))
	if !ok || bound != state {
		return nil, apperrors.Validation("invalid state parameter")
	}

	flow, err := p.flows.Take(state)
	if err != nil {
		return nil, apperrors.Validation("invalid state parameter")
	}

	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("[CompleteLogin] token exchange failed: %w", err)
	}

	session, idToken, err := p.storeTokens(ctx, jar, token)
	if err != nil {
		p.clearCookies(jar)
		return nil, fmt.Errorf("[CompleteLogin] %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		p.clearCookies(jar)
		return nil, fmt.Errorf("[CompleteLogin] failed to extract claims: %w", err)
	}
	if claims.Nonce != flow.Nonce {
		p.clearCookies(jar)
		return nil, fmt.Errorf("[CompleteLogin] %w: invalid nonce", apperrors.ErrAuthAbsent)
	}

	return &LoginResult{
		Session:   session,
		Claims:    claims,
		ReturnURL: flow.ReturnURL,
	}, nil
}

// EndSession clears the token cookies. The authorization server session, if
// any, is left alone.
func (p *Provider) EndSession(ctx context.Context, jar identity.CookieJar) error {
	p.clearCookies(jar)
	return nil
}

func (p *Provider) clearCookies(jar identity.CookieJar) {
	jar.Remove(IDTokenCookie, p.cookieOptions(0))
	jar.Remove(RefreshTokenCookie, p.cookieOptions(0))
}

func (p *Provider) cookieOptions(maxAge time.Duration) identity.CookieOptions {
	return identity.CookieOptions{
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   p.secure,
	}
}

func sessionFromToken(raw string, idToken *oidc.IDToken) *identity.Session {
	return &identity.Session{
		Token:     raw,
		Subject:   idToken.Subject,
		ExpiresAt: idToken.Expiry,
	}
}

// randomString creates a random base64url string
func randomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// localPath keeps only same-site relative paths so the callback cannot be
// used as an open redirect.
func localPath(returnURL string) string {
	u, err := url.Parse(returnURL)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(returnURL, "//") {
		return ""
	}
	return u.RequestURI()
}
