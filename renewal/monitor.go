// Package renewal tracks the remaining lifetime of an administrator session
// on the observing client and renews it on request. It is advisory only:
// expiry is enforced by the guard, never here.
package renewal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	WarningThreshold  = 15 * time.Minute
	CriticalThreshold = 5 * time.Minute

	DefaultTickInterval    = time.Minute
	DefaultSessionDuration = 30 * time.Minute
	DefaultRenewTimeout    = 30 * time.Second
)

var ErrStopped = errors.New("renewal monitor stopped")

type State int

const (
	Active State = iota
	Warning
	Critical
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Warning:
		return "Warning"
	case Critical:
		return "Critical"
	default:
		return "Expired"
	}
}

// StateFor maps a remaining lifetime onto the coarse renewal state.
func StateFor(remaining time.Duration) State {
	switch {
	case remaining > WarningThreshold:
		return Active
	case remaining > CriticalThreshold:
		return Warning
	case remaining > 0:
		return Critical
	default:
		return Expired
	}
}

type Status struct {
	State     State         `json:"state"`
	Remaining time.Duration `json:"remaining"`
}

// RemainingMinutes is the countdown shown to the principal, in whole minutes.
func (s Status) RemainingMinutes() int {
	return int(s.Remaining / time.Minute)
}

// Renewer asks the identity provider for a fresh session.
type Renewer interface {
	Renew(ctx context.Context) (*identity.Session, error)
}

// Authorizer reports whether the observed principal still holds ADMIN.
type Authorizer interface {
	IsAdmin(ctx context.Context) (bool, error)
}

type Monitor struct {
	renewer    Renewer
	authorizer Authorizer
	tick         time.Duration
	duration     time.Duration
	renewTimeout time.Duration
	nowTime      func() time.Time

	mu        sync.Mutex
	remaining time.Duration
	state     State
	renewing  bool
	stopped   bool
	updates   chan Status

	renewals singleflight.Group
}

// Option defines a function type to modify the Monitor instance.
type Option func(*Monitor)

// WithTickInterval sets how often the countdown advances.
func WithTickInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.tick = d
	}
}

// WithSessionDuration sets the lifetime a successful renewal restores.
func WithSessionDuration(d time.Duration) Option {
	return func(m *Monitor) {
		m.duration = d
	}
}

// WithRenewTimeout bounds the shared renewal request.
func WithRenewTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.renewTimeout = d
	}
}

// WithRemaining sets the starting countdown. It defaults to the full session
// duration.
func WithRemaining(d time.Duration) Option {
	return func(m *Monitor) {
		m.remaining = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Monitor) {
		m.nowTime = nowFunc
	}
}

func New(renewer Renewer, authorizer Authorizer, opts ...Option) *Monitor {
	m := &Monitor{
		renewer:      renewer,
		authorizer:   authorizer,
		tick:         DefaultTickInterval,
		duration:     DefaultSessionDuration,
		renewTimeout: DefaultRenewTimeout,
		nowTime:      time.Now,
		remaining:    -1,
		updates:      make(chan Status, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.remaining < 0 {
		m.remaining = m.duration
	}
	m.state = StateFor(m.remaining)
	return m
}

// Updates delivers state transitions. When the buffer is full the oldest
// pending transition is dropped. The channel is closed when the monitor stops,
// either on loss of ADMIN or when Run returns.
func (m *Monitor) Updates() <-chan Status {
	return m.updates
}

// Status reports the current countdown, or false once the monitor stopped.
func (m *Monitor) Status() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return Status{}, false
	}
	return m.status(), true
}

// Run checks authorization once, then ticks until ctx is done or the
// principal loses ADMIN. It returns nil in the latter case. The monitor is
// stopped when Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.authorized(ctx) {
		m.stop(true)
		return nil
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.stop(false)
			return ctx.Err()
		case <-ticker.C:
			if !m.Tick(ctx) {
				return nil
			}
		}
	}
}

// Tick advances the countdown by one interval. It reports false when the
// monitor has stopped. While a renewal is in flight the countdown is left
// alone so the renewal result is not overwritten.
func (m *Monitor) Tick(ctx context.Context) bool {
	if m.isStopped() {
		return false
	}
	if !m.authorized(ctx) {
		m.stop(true)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	if m.renewing {
		return true
	}

	m.remaining -= m.tick
	if m.remaining < 0 {
		m.remaining = 0
	}
	m.transition(StateFor(m.remaining))
	return true
}

// Renew requests a fresh session. Concurrent calls share one request to the
// identity provider and all receive its result. A caller whose ctx ends stops
// waiting, but the shared request carries on for the others.
func (m *Monitor) Renew(ctx context.Context) (Status, error) {
	shared := context.WithoutCancel(ctx)
	ch := m.renewals.DoChan("renew", func() (any, error) {
		ctx, cancel := context.WithTimeout(shared, m.renewTimeout)
		defer cancel()

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return Status{}, ErrStopped
		}
		m.renewing = true
		m.mu.Unlock()

		session, err := m.renewer.Renew(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.renewing = false
		if err != nil {
			return Status{}, err
		}
		if m.stopped {
			return Status{}, ErrStopped
		}

		m.remaining = m.duration
		if session != nil && !session.ExpiresAt.IsZero() {
			m.remaining = session.Remaining(m.nowTime())
		}
		m.transition(StateFor(m.remaining))
		return m.status(), nil
	})

	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Debug().Msg("joined in-flight session renewal")
		}
		if res.Err != nil {
			return Status{}, res.Err
		}
		return res.Val.(Status), nil
	}
}

func (m *Monitor) authorized(ctx context.Context) bool {
	if m.authorizer == nil {
		return true
	}
	admin, err := m.authorizer.IsAdmin(ctx)
	if err != nil {
		// A failed check is not a loss of authorization; try again next tick.
		log.Warn().Err(err).Msg("authorization check failed")
		return true
	}
	return admin
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Monitor) stop(lostAdmin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.updates)
	if lostAdmin {
		log.Info().Msg("principal is no longer an administrator, renewal monitor stopped")
		return
	}
	log.Debug().Msg("renewal monitor stopped")
}

// status must be called with mu held.
func (m *Monitor) status() Status {
	return Status{State: m.state, Remaining: m.remaining}
}

// transition must be called with mu held.
func (m *Monitor) transition(next State) {
	if next == m.state {
		return
	}
	m.state = next
	s := m.status()
	select {
	case m.updates <- s:
	default:
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- s:
		default:
		}
	}
}
