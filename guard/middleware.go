package guard

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-backoffice/identity"
)

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *identity.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext returns the session of a request the guard allowed.
func SessionFromContext(ctx context.Context) (*identity.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*identity.Session)
	return s, ok && s != nil
}

// Middleware runs the matcher and then the decision. The request body is
// never read. Cookies the provider set are written to the response whatever
// the outcome.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.matcher.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		jar := identity.NewHTTPCookieJar(w, r)
		decision := g.Decide(r.Context(), r.URL.Path, jar)
		jar.Flush()

		switch decision.Kind {
		case Redirect:
			redirect(w, r, decision.Location)
		case Allow:
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), decision.Session)))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// redirect is htmx aware: an htmx request gets HX-Redirect so the whole page
// navigates instead of swapping the login page into a fragment.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
