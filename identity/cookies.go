package identity

import (
	"net/http"
	"sync"
	"time"
)

// CookieOptions are the attributes applied when a cookie is set or removed.
type CookieOptions struct {
	Path     string
	MaxAge   time.Duration
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

// CookieJar is the cookie contract used by providers. Implementations only
// move values; they never interpret them.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(name, value string, opts CookieOptions)
	Remove(name string, opts CookieOptions)
}

var _ CookieJar = (*HTTPCookieJar)(nil)

// HTTPCookieJar adapts a request/response pair. Writes are buffered until
// Flush, which must happen before the response header is written. It is safe
// for concurrent use.
type HTTPCookieJar struct {
	w       http.ResponseWriter
	r       *http.Request
	mu      sync.Mutex
	pending []*http.Cookie
}

func NewHTTPCookieJar(w http.ResponseWriter, r *http.Request) *HTTPCookieJar {
	return &HTTPCookieJar{w: w, r: r}
}

// Get returns the latest pending value for name, falling back to the
// request cookie.
func (j *HTTPCookieJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.pending) - 1; i >= 0; i-- {
		if c := j.pending[i]; c.Name == name {
			if c.MaxAge < 0 {
				return "", false
			}
			return c.Value, true
		}
	}
	c, err := j.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (j *HTTPCookieJar) Set(name, value string, opts CookieOptions) {
	c := newCookie(name, value, opts)
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge / time.Second)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, c)
}

func (j *HTTPCookieJar) Remove(name string, opts CookieOptions) {
	c := newCookie(name, "", opts)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, c)
}

// Pending returns the cookies written since the last Flush.
func (j *HTTPCookieJar) Pending() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*http.Cookie(nil), j.pending...)
}

// Flush writes pending cookies to the response.
func (j *HTTPCookieJar) Flush() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.pending {
		http.SetCookie(j.w, c)
	}
	j.pending = nil
}

func newCookie(name, value string, opts CookieOptions) *http.Cookie {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: sameSite,
	}
}
