package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-backoffice/guard"
	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/users"
	"github.com/rs/zerolog"
)

// IndexHandler renders the home page
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("index.html")
	if err != nil {
		panic("Failed to parse index template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"AppName":     s.config.GetAppName(),
			"AdminPrefix": s.guard.Prefix(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SessionResponse describes the caller's session
type SessionResponse struct {
	Subject          string     `json:"subject"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Role             users.Role `json:"role,omitempty"`
}

func (s *Server) sessionResponse(r *http.Request, session *identity.Session, withRole bool) SessionResponse {
	resp := SessionResponse{
		Subject:          session.Subject,
		ExpiresAt:        session.ExpiresAt.UTC(),
		RemainingSeconds: int64(session.Remaining(s.nowTime()).Seconds()),
	}
	if withRole {
		resp.Role = s.users.ResolveRole(r.Context(), session.Subject)
	}
	return resp
}

// SessionHandler reports the session attached by RequireAPISession.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := guard.SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, r, apperrors.ErrAuthAbsent)
			return
		}
		writeJSON(w, http.StatusOK, s.sessionResponse(r, session, true))
	}
}

// RenewSessionHandler extends the caller's session. Cookies the provider
// rotates are written before the body.
func (s *Server) RenewSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jar := identity.NewHTTPCookieJar(w, r)
		session, err := s.guard.Refresh(r.Context(), jar)
		jar.Flush()
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrAuthAbsent) {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("session renewal failed")
			}
			writeJSONError(w, r, apperrors.ErrAuthAbsent)
			return
		}

		zerolog.Ctx(r.Context()).Debug().Str("subject", session.Subject).Time("expires_at", session.ExpiresAt).Msg("session renewed")
		writeJSON(w, http.StatusOK, s.sessionResponse(r, session, false))
	}
}
