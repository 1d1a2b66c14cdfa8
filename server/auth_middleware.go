package server

import (
	"net/http"

	"github.com/jrsteele09/go-backoffice/guard"
	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/rs/zerolog"
)

// RequireAPISession is middleware for JSON routes outside the protected
// prefix. It asks the provider for the session under the same timeout as the
// guard and answers 401 itself instead of redirecting.
func (s *Server) RequireAPISession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := guard.SessionFromContext(r.Context()); ok {
			next(w, r)
			return
		}

		jar := identity.NewHTTPCookieJar(w, r)
		session, err := s.guard.Session(r.Context(), jar)
		jar.Flush()
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("session query failed")
			writeJSONError(w, r, apperrors.ErrAuthAbsent)
			return
		}
		if session == nil || session.Expired(s.nowTime()) {
			writeJSONError(w, r, apperrors.ErrAuthAbsent)
			return
		}

		next(w, r.WithContext(guard.WithSession(r.Context(), session)))
	}
}

// RequireAdmin must run after a session middleware. The role is resolved on
// every request, so a demotion takes effect immediately.
func (s *Server) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := guard.SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, r, apperrors.ErrAuthAbsent)
			return
		}
		if !s.users.IsAdmin(r.Context(), session.Subject) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		next(w, r)
	}
}
