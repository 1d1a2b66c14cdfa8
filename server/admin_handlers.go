package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-backoffice/guard"
	"github.com/jrsteele09/go-backoffice/renewal"
	"github.com/jrsteele09/go-backoffice/users"
	"github.com/rs/zerolog"
)

// AdminLandingHandler renders the public entry page of the admin section. It
// is also where the guard sends requests without a session.
func (s *Server) AdminLandingHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_landing.html")
	if err != nil {
		panic("Failed to parse admin landing template: " + err.Error())
	}

	_, oidcLogin := s.provider.(loginStarter)
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"AppName":      s.config.GetAppName(),
			"Error":        r.URL.Query().Get("error"),
			"OIDCLogin":    oidcLogin,
			"DevLogin":     s.devLoginEnabled(),
			"LoginURL":     RouteAuthLogin,
			"DevLoginURL":  RouteAuthDevLogin,
			"DashboardURL": s.guard.Prefix() + RouteAdminDashboard,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	}
}

// AdminDashboardHandler renders the admin dashboard. The guard has already
// checked the session; the role is checked here.
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_dashboard.html")
	if err != nil {
		panic("Failed to parse admin dashboard template: " + err.Error())
	}
	forbidden, err := ParseTemplate("forbidden.html")
	if err != nil {
		panic("Failed to parse forbidden template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := guard.SessionFromContext(r.Context())
		if !ok {
			redirectSuccess(w, r, s.guard.Prefix())
			return
		}

		role := s.users.ResolveRole(r.Context(), session.Subject)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if role != users.RoleAdmin {
			zerolog.Ctx(r.Context()).Info().Str("subject", session.Subject).Msg("non-admin denied dashboard")
			w.WriteHeader(http.StatusForbidden)
			_ = forbidden.Execute(w, map[string]interface{}{
				"AppName":   s.config.GetAppName(),
				"Subject":   session.Subject,
				"LogoutURL": RouteAuthLogout,
			})
			return
		}

		remaining := session.Remaining(s.nowTime())
		status := renewal.Status{State: renewal.StateFor(remaining), Remaining: remaining}
		data := map[string]interface{}{
			"AppName":          s.config.GetAppName(),
			"Subject":          session.Subject,
			"Role":             string(role),
			"ExpiresAt":        session.ExpiresAt.UTC(),
			"RemainingMinutes": status.RemainingMinutes(),
			"SessionState":     status.State.String(),
			"TickMillis":       s.config.GetRenewTick().Milliseconds(),
			"WarningMinutes":   int(renewal.WarningThreshold / time.Minute),
			"CriticalMinutes":  int(renewal.CriticalThreshold / time.Minute),
			"RenewURL":         RouteAPISessionRenew,
			"LogoutURL":        RouteAuthLogout,
		}
		_ = tmpl.Execute(w, data)
	}
}
