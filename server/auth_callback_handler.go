package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/jrsteele09/go-backoffice/identity/oidcprovider"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/rs/zerolog"
)

// LoginHandler starts the authorization code flow when the provider delegates
// login. Other providers are logged in from the landing page.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		starter, ok := s.provider.(loginStarter)
		if !ok {
			redirectSuccess(w, r, s.guard.Prefix())
			return
		}

		returnURL := r.URL.Query().Get("return_url")
		if returnURL == "" {
			returnURL = s.guard.Prefix() + RouteAdminDashboard
		}

		jar := identity.NewHTTPCookieJar(w, r)
		authURL, err := starter.BeginLogin(jar, returnURL)
		jar.Flush()
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to start login")
			redirectWithError(w, r, s.guard.Prefix(), "Login is unavailable, please try again")
			return
		}
		redirectSuccess(w, r, authURL)
	}
}

// OAuthCallbackHandler exchanges the authorization code, records the user on
// first login and sends the browser on to where the login started.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.provider.(*oidcprovider.Provider)
		if !ok {
			http.NotFound(w, r)
			return
		}
		logger := zerolog.Ctx(r.Context())

		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, s.guard.Prefix(), "Invalid callback request")
			return
		}
		if errCode := r.Form.Get("error"); errCode != "" {
			logger.Warn().Str("error", errCode).Str("description", r.Form.Get("error_description")).Msg("authorization server returned an error")
			redirectWithError(w, r, s.guard.Prefix(), "Login was cancelled or denied")
			return
		}

		jar := identity.NewHTTPCookieJar(w, r)
		result, err := p.CompleteLogin(r.Context(), jar, r.Form.Get("state"), r.Form.Get("code"))
		if err != nil {
			jar.Flush()
			logger.Warn().Err(err).Msg("login callback failed")
			redirectWithError(w, r, s.guard.Prefix(), "Login failed, please try again")
			return
		}

		email := result.Claims.Email
		if email == "" {
			email = result.Claims.Subject
		}
		if _, _, err := s.users.EnsureBootstrapped(r.Context(), result.Claims.Subject, email, result.Claims.Name); err != nil {
			// The session is valid either way; the role lookup defaults to USER.
			logger.Error().Err(err).Str("subject", result.Claims.Subject).Msg("failed to record user on login")
		}
		jar.Flush()

		target := result.ReturnURL
		if target == "" {
			target = s.guard.Prefix() + RouteAdminDashboard
		}
		redirectSuccess(w, r, target)
	}
}

// LogoutHandler ends the session when the provider supports it and returns
// to the landing page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jar := identity.NewHTTPCookieJar(w, r)
		if ender, ok := s.provider.(identity.SessionEnder); ok {
			if err := ender.EndSession(r.Context(), jar); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to end session")
			}
		}
		jar.Flush()
		redirectSuccess(w, r, s.guard.Prefix())
	}
}

// DevLoginHandler signs in as any subject without credentials. It is only
// registered in DEV with a provider that mints its own sessions.
func (s *Server) DevLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer, ok := s.provider.(identity.SessionIssuer)
		if !ok || !s.config.IsDev() {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, s.guard.Prefix(), "Invalid login request")
			return
		}

		id := strings.TrimSpace(r.PostForm.Get("id"))
		email := strings.TrimSpace(r.PostForm.Get("email"))
		if id == "" {
			redirectWithError(w, r, s.guard.Prefix(), "User id is required")
			return
		}

		if email != "" {
			if _, _, err := s.users.EnsureBootstrapped(r.Context(), id, email, r.PostForm.Get("name")); err != nil {
				redirectWithError(w, r, s.guard.Prefix(), loginErrorMessage(err))
				return
			}
		} else if _, err := s.users.GetUser(r.Context(), id); err != nil {
			redirectWithError(w, r, s.guard.Prefix(), loginErrorMessage(err))
			return
		}

		jar := identity.NewHTTPCookieJar(w, r)
		_, err := issuer.StartSession(r.Context(), jar, id)
		jar.Flush()
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to start dev session")
			redirectWithError(w, r, s.guard.Prefix(), "Login is unavailable, please try again")
			return
		}

		zerolog.Ctx(r.Context()).Info().Str("subject", id).Msg("dev login")
		redirectSuccess(w, r, s.guard.Prefix()+RouteAdminDashboard)
	}
}

func loginErrorMessage(err error) string {
	var ve *apperrors.ValidationError
	switch {
	case apperrors.As(err, &ve):
		return ve.Msg
	case apperrors.Is(err, apperrors.ErrNotFound):
		return "Unknown user, provide an email to sign up"
	default:
		return "Login is unavailable, please try again"
	}
}
