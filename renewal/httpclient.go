package renewal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
)

var (
	_ Renewer    = (*HTTPClient)(nil)
	_ Authorizer = (*HTTPClient)(nil)
)

// HTTPClient talks to the back office session API on behalf of a browser
// session. Cookies the server refreshes are kept for later calls.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	subject string
}

type sessionResponse struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roleResponse struct {
	Role string `json:"role"`
}

// NewHTTPClient seeds the client with cookieHeader, a Cookie header value such
// as "loggedInSessionId=abc". subject may be empty, in which case it is
// looked up from the session on first use.
func NewHTTPClient(baseURL, cookieHeader, subject string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[NewHTTPClient] invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[NewHTTPClient] base URL must be absolute: %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("[NewHTTPClient] %w", err)
	}
	if cookieHeader != "" {
		cookies, err := http.ParseCookie(cookieHeader)
		if err != nil {
			return nil, fmt.Errorf("[NewHTTPClient] invalid cookie: %w", err)
		}
		jar.SetCookies(u, cookies)
	}

	return &HTTPClient{
		baseURL: u,
		client:  &http.Client{Jar: jar, Timeout: timeout},
		subject: subject,
	}, nil
}

// Session returns the caller's current session.
func (c *HTTPClient) Session(ctx context.Context) (*identity.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/session", &resp); err != nil {
		return nil, fmt.Errorf("[Session] %w", err)
	}
	if c.subject == "" {
		c.subject = resp.Subject
	}
	return &identity.Session{Subject: resp.Subject, ExpiresAt: resp.ExpiresAt}, nil
}

func (c *HTTPClient) Renew(ctx context.Context) (*identity.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/session/renew", &resp); err != nil {
		return nil, fmt.Errorf("[Renew] %w", err)
	}
	return &identity.Session{Subject: resp.Subject, ExpiresAt: resp.ExpiresAt}, nil
}

func (c *HTTPClient) IsAdmin(ctx context.Context) (bool, error) {
	if c.subject == "" {
		if _, err := c.Session(ctx); err != nil {
			return false, err
		}
	}
	var resp roleResponse
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(c.subject)+"/role", &resp); err != nil {
		return false, fmt.Errorf("[IsAdmin] %w", err)
	}
	return resp.Role == "ADMIN", nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return apperrors.ErrAuthAbsent
	case res.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
