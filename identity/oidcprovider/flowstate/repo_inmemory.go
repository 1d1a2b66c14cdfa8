package flowstate

import (
	"errors"
	"sync"
	"time"
)

var ErrStateNotFound = errors.New("state not found")

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]FlowState
	ttl     time.Duration
	nowTime func() time.Time
}

// NewInMemoryRepo creates a repo whose entries are only redeemable for ttl.
func NewInMemoryRepo(ttl time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		states:  make(map[string]FlowState),
		ttl:     ttl,
		nowTime: time.Now,
	}
}

// SetNowTime sets the now time function (primarily for testing)
func (r *InMemoryRepo) SetNowTime(nowFunc func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowTime = nowFunc
}

// Upsert stores a copy of flow. Abandoned flows are pruned on the way.
func (r *InMemoryRepo) Upsert(state string, flow *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowTime()
	for k, v := range r.states {
		if r.expired(v, now) {
			delete(r.states, k)
		}
	}

	stored := *flow
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	r.states[state] = stored
	return nil
}

func (r *InMemoryRepo) Take(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.states[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(r.states, state)

	if r.expired(flow, r.nowTime()) {
		return nil, ErrStateNotFound
	}
	return &flow, nil
}

// Len reports the number of stored flows.
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *InMemoryRepo) expired(flow FlowState, now time.Time) bool {
	return r.ttl > 0 && now.Sub(flow.CreatedAt) > r.ttl
}
