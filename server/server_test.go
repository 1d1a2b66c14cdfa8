package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/jrsteele09/go-backoffice/identity/memprovider"
	"github.com/jrsteele09/go-backoffice/identity/providerfake"
	"github.com/jrsteele09/go-backoffice/internal/config"
	"github.com/jrsteele09/go-backoffice/retry"
	"github.com/jrsteele09/go-backoffice/server"
	"github.com/jrsteele09/go-backoffice/users"
	fakeuserrepo "github.com/jrsteele09/go-backoffice/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	srv      *server.Server
	repo     *fakeuserrepo.FakeUserRepo
	users    *users.Service
	provider *memprovider.Provider
}

func newFixture(t *testing.T, env map[string]string) *fixture {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.New()
	require.NoError(t, err)

	nowFunc := func() time.Time { return testNow }
	repo := fakeuserrepo.NewFakeUserRepo()
	svc, err := users.NewService(repo,
		users.WithNowTime(nowFunc),
		users.WithRetryPolicy(retry.Policy{
			Name:        "test",
			MaxAttempts: 3,
			Backoff:     retry.Fixed(time.Millisecond),
			IsRetryable: retry.IsTransient,
		}),
	)
	require.NoError(t, err)

	provider := memprovider.New(30*time.Minute, memprovider.WithNowTime(nowFunc))
	srv, err := server.New(cfg, svc, provider, server.WithNowTime(nowFunc))
	require.NoError(t, err)

	return &fixture{srv: srv, repo: repo, users: svc, provider: provider}
}

// login records the user and returns a session cookie for it.
func (f *fixture) login(t *testing.T, id string) *http.Cookie {
	t.Helper()
	_, _, err := f.users.EnsureBootstrapped(context.Background(), id, id+"@example.com", "")
	require.NoError(t, err)
	s, err := f.provider.CreateSession(id)
	require.NoError(t, err)
	return &http.Cookie{Name: identity.SessionCookieName, Value: s.Token}
}

func (f *fixture) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)
	svc, err := users.NewService(fakeuserrepo.NewFakeUserRepo())
	require.NoError(t, err)

	_, err = server.New(cfg, nil, memprovider.New(time.Minute))
	require.Error(t, err)
	_, err = server.New(cfg, svc, nil)
	require.Error(t, err)
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestGuard_ProtectedPages(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("landing page is public", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "Back office")
	})

	t.Run("no session redirects to landing page", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin/dashboard", "")
		require.Equal(t, http.StatusSeeOther, w.Code)
		require.Equal(t, "/admin", w.Header().Get("Location"))
	})

	t.Run("unknown protected page still redirects", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin/does/not/exist", "")
		require.Equal(t, http.StatusSeeOther, w.Code)
	})

	t.Run("htmx request gets HX-Redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
		req.Header.Set("HX-Request", "true")
		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, "/admin", w.Header().Get("HX-Redirect"))
	})

	t.Run("stale cookie is removed", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin/dashboard", "", &http.Cookie{Name: identity.SessionCookieName, Value: "gone"})
		require.Equal(t, http.StatusSeeOther, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, identity.SessionCookieName, cookies[0].Name)
		require.Less(t, cookies[0].MaxAge, 0)
	})
}

func TestAdminDashboard(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root")
	user := f.login(t, "bob")

	t.Run("admin sees dashboard", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin/dashboard", "", admin)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		require.Contains(t, body, "root")
		require.Contains(t, body, "ADMIN")
		require.Contains(t, body, "30 minutes remaining")
		require.Contains(t, body, "session-Active")
		require.Contains(t, body, `data-tick-ms="60000"`)
		require.Contains(t, body, `data-warning-min="15"`)
	})

	t.Run("countdown follows RENEW_TICK", func(t *testing.T) {
		f := newFixture(t, map[string]string{"RENEW_TICK": "10s"})
		w := f.do(t, http.MethodGet, "/admin/dashboard", "", f.login(t, "root"))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `data-tick-ms="10000"`)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/admin/dashboard", "", user)
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestGuard_ProviderTimeout(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "20ms")
	cfg, err := config.New()
	require.NoError(t, err)
	svc, err := users.NewService(fakeuserrepo.NewFakeUserRepo())
	require.NoError(t, err)

	provider := providerfake.NewFakeProvider()
	provider.Delay = time.Second
	provider.AddSession("tok", &identity.Session{Subject: "root", ExpiresAt: time.Now().Add(time.Hour)})
	srv, err := server.New(cfg, svc, provider)
	require.NoError(t, err)

	serve := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.AddCookie(&http.Cookie{Name: providerfake.CookieName, Value: "tok"})
		w := httptest.NewRecorder()

		start := time.Now()
		srv.ServeHTTP(w, req)
		require.Less(t, time.Since(start), 500*time.Millisecond)
		return w
	}

	t.Run("protected page redirects", func(t *testing.T) {
		w := serve(http.MethodGet, "/admin/dashboard")
		require.Equal(t, http.StatusSeeOther, w.Code)
		require.Equal(t, "/admin", w.Header().Get("Location"))
	})

	t.Run("api session is unauthorized", func(t *testing.T) {
		for _, target := range []string{"/api/session", "/api/users"} {
			w := serve(http.MethodGet, target)
			require.Equal(t, http.StatusUnauthorized, w.Code, target)
		}
	})

	t.Run("renewal is unauthorized", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/session/renew")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserRole(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "root")
	f.login(t, "bob")

	tests := []struct {
		id   string
		want users.Role
	}{
		{"root", users.RoleAdmin},
		{"bob", users.RoleUser},
		{"nobody", users.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/users/"+tt.id+"/role", "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[server.RoleResponse](t, w)
			require.Equal(t, tt.id, resp.ID)
			require.Equal(t, tt.want, resp.Role)
		})
	}

	t.Run("store failure defaults to USER", func(t *testing.T) {
		f.repo.InjectErrors(errors.New("disk on fire"))
		w := f.do(t, http.MethodGet, "/api/users/root/role", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, users.RoleUser, decode[server.RoleResponse](t, w).Role)
	})
}

func TestUpdateUserRole(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root")
	user := f.login(t, "bob")

	t.Run("requires a session", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/bob/role", `{"role":"ADMIN"}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("requires an admin", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/bob/role", `{"role":"ADMIN"}`, user)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/bob/role", `{"role":"OWNER"}`, admin)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, decode[server.ErrorResponse](t, w).Message, "role must be one of")

		w = f.do(t, http.MethodGet, "/api/users/bob/role", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, users.RoleUser, decode[server.RoleResponse](t, w).Role)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/bob/role", `{"role":`, admin)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/nobody/role", `{"role":"ADMIN"}`, admin)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("promotes user", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/users/bob/role", `{"role":"ADMIN"}`, admin)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, users.RoleAdmin, decode[users.User](t, w).Role)

		// The new role applies on the very next request.
		w = f.do(t, http.MethodGet, "/admin/dashboard", "", user)
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestBootstrapUser(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/users", `{"id":"u-1","email":"first@example.com","name":"First"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[users.User](t, w)
	require.Equal(t, users.RoleAdmin, first.Role)

	w = f.do(t, http.MethodPost, "/api/users", `{"id":"u-1","email":"first@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, users.RoleAdmin, decode[users.User](t, w).Role)

	w = f.do(t, http.MethodPost, "/api/users", `{"id":"u-2","email":"second@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, users.RoleUser, decode[users.User](t, w).Role)

	w = f.do(t, http.MethodPost, "/api/users", `{"id":"u-3"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "email is required", decode[server.ErrorResponse](t, w).Message)
}

func TestListAndDeleteUsers(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root")
	f.login(t, "bob")
	f.login(t, "carol")

	w := f.do(t, http.MethodGet, "/api/users?offset=1&limit=1", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[users.UsersListResponse](t, w)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 1)

	w = f.do(t, http.MethodGet, "/api/users?limit=-1", "", admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/users/carol", "", admin)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, "/api/users/carol", "", admin)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root")

	t.Run("session requires a cookie", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/session", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("session reports subject and role", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/session", "", admin)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		resp := decode[server.SessionResponse](t, w)
		require.Equal(t, "root", resp.Subject)
		require.Equal(t, users.RoleAdmin, resp.Role)
		require.Equal(t, int64(30*60), resp.RemainingSeconds)
		require.True(t, resp.ExpiresAt.Equal(testNow.Add(30*time.Minute)))
	})

	t.Run("renew without session", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/session/renew", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("renew rewrites the cookie", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/session/renew", "", admin)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "root", decode[server.SessionResponse](t, w).Subject)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, admin.Value, cookies[0].Value)
		require.Equal(t, 30*60, cookies[0].MaxAge)
	})
}

func TestDevLoginAndLogout(t *testing.T) {
	f := newFixture(t, map[string]string{"ENV": "DEV"})

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/dev-login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		return w
	}

	t.Run("unknown user without email", func(t *testing.T) {
		w := post(url.Values{"id": {"ghost"}})
		require.Equal(t, http.StatusSeeOther, w.Code)
		require.True(t, strings.HasPrefix(w.Header().Get("Location"), "/admin?error="))
	})

	var session *http.Cookie
	t.Run("signup signs in", func(t *testing.T) {
		w := post(url.Values{"id": {"alice"}, "email": {"alice@example.com"}})
		require.Equal(t, http.StatusSeeOther, w.Code)
		require.Equal(t, "/admin/dashboard", w.Header().Get("Location"))

		for _, c := range w.Result().Cookies() {
			if c.Name == identity.SessionCookieName {
				session = c
			}
		}
		require.NotNil(t, session)

		w = f.do(t, http.MethodGet, "/admin/dashboard", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "alice")
	})

	t.Run("logout ends the session", func(t *testing.T) {
		require.NotNil(t, session)
		w := f.do(t, http.MethodGet, "/auth/logout", "", session)
		require.Equal(t, http.StatusSeeOther, w.Code)
		require.Equal(t, "/admin", w.Header().Get("Location"))

		w = f.do(t, http.MethodGet, "/admin/dashboard", "", session)
		require.Equal(t, http.StatusSeeOther, w.Code)
	})
}

func TestDevLoginDisabledOutsideDev(t *testing.T) {
	f := newFixture(t, map[string]string{"ENV": "PROD"})

	req := httptest.NewRequest(http.MethodPost, "/auth/dev-login", strings.NewReader("id=root"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "/auth/dev-login")
}

func TestCors(t *testing.T) {
	f := newFixture(t, map[string]string{"ALLOWED_ORIGINS": "https://app.example.com"})

	preflight := func(origin, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://app.example.com", "/api/users/bob/role")
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = preflight("https://evil.example.com", "/api/users/bob/role")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/robots.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Disallow: /admin")

	w = f.do(t, http.MethodGet, "/static/css/admin.css", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `href="/admin"`)
}
