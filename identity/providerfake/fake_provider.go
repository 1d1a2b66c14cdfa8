package providerfake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-backoffice/identity"
	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider serves sessions keyed by a cookie value and counts calls.
type FakeProvider struct {
	lock     sync.Mutex
	sessions map[string]*identity.Session // cookie value -> session

	// Delay blocks each call until it elapses or ctx is done.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error
	// SetCookies are written to the jar by every successful GetSession.
	SetCookies map[string]string

	getCalls     int
	refreshCalls int
}

const CookieName = "fake_session"

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{sessions: make(map[string]*identity.Session)}
}

func (f *FakeProvider) AddSession(cookieValue string, s *identity.Session) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sessions[cookieValue] = s
}

func (f *FakeProvider) GetCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.getCalls
}

func (f *FakeProvider) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

func (f *FakeProvider) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeProvider) GetSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	f.lock.Lock()
	f.getCalls++
	f.lock.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	v, ok := jar.Get(CookieName)
	if !ok {
		return nil, nil
	}

	f.lock.Lock()
	s, ok := f.sessions[v]
	f.lock.Unlock()
	if !ok {
		return nil, nil
	}
	for name, value := range f.SetCookies {
		jar.Set(name, value, identity.CookieOptions{Path: "/", HTTPOnly: true})
	}
	clone := *s
	return &clone, nil
}

func (f *FakeProvider) RefreshSession(ctx context.Context, jar identity.CookieJar) (*identity.Session, error) {
	f.lock.Lock()
	f.refreshCalls++
	f.lock.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	v, ok := jar.Get(CookieName)
	if !ok {
		return nil, apperrors.ErrAuthAbsent
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	s, ok := f.sessions[v]
	if !ok {
		return nil, apperrors.ErrAuthAbsent
	}
	clone := *s
	return &clone, nil
}

// MapJar is a CookieJar over a plain map.
type MapJar struct {
	Values  map[string]string
	Removed []string
}

func NewMapJar(values map[string]string) *MapJar {
	if values == nil {
		values = make(map[string]string)
	}
	return &MapJar{Values: values}
}

func (j *MapJar) Get(name string) (string, bool) {
	v, ok := j.Values[name]
	return v, ok && v != ""
}

func (j *MapJar) Set(name, value string, _ identity.CookieOptions) {
	j.Values[name] = value
}

func (j *MapJar) Remove(name string, _ identity.CookieOptions) {
	delete(j.Values, name)
	j.Removed = append(j.Removed, name)
}
