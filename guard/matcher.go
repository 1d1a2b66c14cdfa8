package guard

import (
	"path"
	"strings"
)

var (
	// DefaultExcludedPrefixes never reach the guard: API routes, static
	// assets and framework internals.
	DefaultExcludedPrefixes = []string{
		"/api/",
		"/static/",
		"/assets/",
		"/css/",
		"/js/",
		"/images/",
		"/_internal/",
	}

	// DefaultExcludedFiles are exact paths served as named static files.
	DefaultExcludedFiles = []string{
		"/healthz",
		"/favicon.ico",
		"/robots.txt",
		"/sitemap.xml",
	}
)

// Matcher is the upstream path filter. Everything under the site root is
// subject to the guard except the excluded prefixes and files.
type Matcher struct {
	prefixes []string
	files    map[string]struct{}
}

func NewMatcher(excludedPrefixes, excludedFiles []string) *Matcher {
	m := &Matcher{
		prefixes: make([]string, 0, len(excludedPrefixes)),
		files:    make(map[string]struct{}, len(excludedFiles)),
	}
	for _, p := range excludedPrefixes {
		m.prefixes = append(m.prefixes, "/"+strings.Trim(p, "/")+"/")
	}
	for _, f := range excludedFiles {
		m.files["/"+strings.TrimLeft(f, "/")] = struct{}{}
	}
	return m
}

func DefaultMatcher() *Matcher {
	return NewMatcher(DefaultExcludedPrefixes, DefaultExcludedFiles)
}

// Match reports whether path should be handed to the guard.
func (m *Matcher) Match(p string) bool {
	p = path.Clean("/" + p)
	if _, ok := m.files[p]; ok {
		return false
	}
	for _, prefix := range m.prefixes {
		// "/api" itself is excluded as well as everything below it
		if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			return false
		}
	}
	return true
}
