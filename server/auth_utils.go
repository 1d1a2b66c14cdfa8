package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError maps domain errors onto status codes. Causes of internal
// errors are logged, never returned.
func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperrors.ValidationError
	switch {
	case apperrors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: ve.Msg})
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found"})
	case apperrors.Is(err, apperrors.ErrAuthAbsent):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}

// devLoginEnabled is true only in DEV with a provider that can mint sessions.
func (s *Server) devLoginEnabled() bool {
	if !s.config.IsDev() {
		return false
	}
	_, ok := s.provider.(identity.SessionIssuer)
	return ok
}

// loginStarter is implemented by providers that delegate login to a remote
// authorization server.
type loginStarter interface {
	BeginLogin(jar identity.CookieJar, returnURL string) (string, error)
}
