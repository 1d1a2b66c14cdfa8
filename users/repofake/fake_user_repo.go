package fakeuserrepo

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex

	failures []error // returned, in order, by the next calls
	calls    int
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

// InjectErrors queues errors that the next calls return instead of touching
// the data. A nil entry lets that call through.
func (ur *FakeUserRepo) InjectErrors(errs ...error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	ur.failures = append(ur.failures, errs...)
}

// Calls reports how many repo operations were attempted.
func (ur *FakeUserRepo) Calls() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.calls
}

// nextFailure must be called with the write lock held.
func (ur *FakeUserRepo) nextFailure() error {
	ur.calls++
	if len(ur.failures) == 0 {
		return nil
	}
	err := ur.failures[0]
	ur.failures = ur.failures[1:]
	return err
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return nil, err
	}
	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// CreateBootstrapped holds the write lock across the emptiness check and the
// insert, so concurrent first signups cannot both see an empty store.
func (ur *FakeUserRepo) CreateBootstrapped(ctx context.Context, user *users.User) (*users.User, bool, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return nil, false, err
	}
	if existing, ok := ur.users[user.ID]; ok {
		clone := *existing
		return &clone, false, nil
	}

	stored := *user
	stored.Role = users.RoleUser
	if len(ur.users) == 0 {
		stored.Role = users.RoleAdmin
	}
	ur.users[stored.ID] = &stored

	clone := stored
	return &clone, true, nil
}

func (ur *FakeUserRepo) UpdateRole(ctx context.Context, id string, role users.Role) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return nil, err
	}
	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	u.Role = role
	clone := *u
	return &clone, nil
}

func (ur *FakeUserRepo) List(ctx context.Context, offset, limit int) (users.UsersListResponse, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return users.UsersListResponse{}, err
	}

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		clone := *v
		userList = append(userList, &clone)
	}
	sort.Slice(userList, func(i, j int) bool {
		if userList[i].CreatedAt.Equal(userList[j].CreatedAt) {
			return userList[i].ID < userList[j].ID
		}
		return userList[i].CreatedAt.Before(userList[j].CreatedAt)
	})

	resp := users.UsersListResponse{Total: len(userList), Offset: offset, Limit: limit}
	if offset >= len(userList) {
		resp.Users = []*users.User{}
		return resp, nil
	}
	end := offset + limit
	if end > len(userList) {
		end = len(userList)
	}
	resp.Users = userList[offset:end]
	return resp, nil
}

func (ur *FakeUserRepo) Count(ctx context.Context) (int, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return 0, err
	}
	return len(ur.users), nil
}

func (ur *FakeUserRepo) Delete(ctx context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.nextFailure(); err != nil {
		return err
	}
	if _, ok := ur.users[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(ur.users, id)
	return nil
}
