package users

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/retry"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RoleLookup is the outcome of a role query. Found is false when the user
// does not exist; Err is set when the store could not answer.
type RoleLookup struct {
	Role  Role
	Found bool
	Err   error
}

// OrDefault applies the least-privilege policy: anything other than a found,
// valid role resolves to RoleUser.
func (l RoleLookup) OrDefault() Role {
	if l.Found && l.Role.Valid() {
		return l.Role
	}
	return RoleUser
}

// Service resolves roles and manages user records. Every store access goes
// through the retry executor.
type Service struct {
	repo    UserRepo
	policy  retry.Policy
	nowTime func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithRetryPolicy replaces the default retry policy for store access
func WithRetryPolicy(p retry.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(repo UserRepo, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] user repo is required")
	}

	s := &Service{
		repo:    repo,
		policy:  retry.DefaultPolicy("access user store"),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// LookupRole reports the stored role of userID without applying any default.
func (s *Service) LookupRole(ctx context.Context, userID string) RoleLookup {
	if strings.TrimSpace(userID) == "" {
		return RoleLookup{}
	}

	user, err := retry.Do(ctx, s.policy.Named("look up user role"), func(ctx context.Context) (*User, error) {
		return s.repo.GetByID(ctx, userID)
	})
	switch {
	case err == nil:
		return RoleLookup{Role: user.Role, Found: true}
	case apperrors.Is(err, apperrors.ErrNotFound):
		return RoleLookup{}
	default:
		return RoleLookup{Err: err}
	}
}

// ResolveRole never fails: unknown users and store failures resolve to
// RoleUser.
func (s *Service) ResolveRole(ctx context.Context, userID string) Role {
	lookup := s.LookupRole(ctx, userID)
	if lookup.Err != nil {
		log.Warn().Err(lookup.Err).Str("user_id", userID).Msg("role lookup failed, defaulting to USER")
	}
	return lookup.OrDefault()
}

func (s *Service) IsAdmin(ctx context.Context, userID string) bool {
	return s.ResolveRole(ctx, userID) == RoleAdmin
}

// EnsureBootstrapped returns the existing record for id, or creates one. The
// very first record in the store becomes RoleAdmin, every later one RoleUser.
func (s *Service) EnsureBootstrapped(ctx context.Context, id, email, name string) (*User, bool, error) {
	user, err := NewUser(id, email, name)
	if err != nil {
		return nil, false, err
	}
	user.CreatedAt = s.nowTime().UTC()

	type outcome struct {
		user    *User
		created bool
	}
	res, err := retry.Do(ctx, s.policy.Named("bootstrap user"), func(ctx context.Context) (outcome, error) {
		candidate := *user
		stored, created, err := s.repo.CreateBootstrapped(ctx, &candidate)
		return outcome{user: stored, created: created}, err
	})
	if err != nil {
		return nil, false, apperrors.Wrapf(err, "[EnsureBootstrapped] user %s", user.ID)
	}

	if res.created {
		ev := log.Info().Str("user_id", res.user.ID).Str("role", string(res.user.Role))
		if res.user.IsAdmin() {
			ev.Msg("bootstrapped first user as administrator")
		} else {
			ev.Msg("created user")
		}
	}
	return res.user, res.created, nil
}

// UpdateRole sets the role of an existing user.
func (s *Service) UpdateRole(ctx context.Context, id string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, apperrors.Validation("role must be one of %s, %s", RoleUser, RoleAdmin)
	}

	user, err := retry.Do(ctx, s.policy.Named("update user role"), func(ctx context.Context) (*User, error) {
		return s.repo.UpdateRole(ctx, id, role)
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[UpdateRole] user %s", id)
	}
	log.Info().Str("user_id", id).Str("role", string(role)).Msg("user role updated")
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := retry.Do(ctx, s.policy.Named("get user"), func(ctx context.Context) (*User, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[GetUser] user %s", id)
	}
	return user, nil
}

// ListUsers returns a page of users ordered by creation. limit is clamped to
// a sane range.
func (s *Service) ListUsers(ctx context.Context, offset, limit int) (UsersListResponse, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	page, err := retry.Do(ctx, s.policy.Named("list users"), func(ctx context.Context) (UsersListResponse, error) {
		return s.repo.List(ctx, offset, limit)
	})
	if err != nil {
		return UsersListResponse{}, apperrors.Wrapf(err, "[ListUsers]")
	}
	return page, nil
}

// DeleteUser removes an account. This is the only way a user record is
// destroyed.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	err := retry.Run(ctx, s.policy.Named("delete user"), func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return apperrors.Wrapf(err, "[DeleteUser] user %s", id)
	}
	log.Info().Str("user_id", id).Msg("user deleted")
	return nil
}
