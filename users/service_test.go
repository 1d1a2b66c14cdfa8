package users_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/retry"
	"github.com/jrsteele09/go-backoffice/users"
	fakeuserrepo "github.com/jrsteele09/go-backoffice/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHiccup = apperrors.Transient(errors.New("database is locked"))

func newService(t *testing.T, repo users.UserRepo) *users.Service {
	t.Helper()
	fixedNow := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, err := users.NewService(repo,
		users.WithNowTime(func() time.Time { return fixedNow }),
		users.WithRetryPolicy(retry.Policy{
			Name:        "test",
			MaxAttempts: 3,
			Backoff:     retry.Fixed(time.Millisecond),
			IsRetryable: retry.IsTransient,
		}),
	)
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresRepo(t *testing.T) {
	_, err := users.NewService(nil)
	require.Error(t, err)
}

func TestResolveRole(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	svc := newService(t, repo)

	_, _, err := svc.EnsureBootstrapped(ctx, "admin-1", "admin@example.com", "Admin")
	require.NoError(t, err)
	_, _, err = svc.EnsureBootstrapped(ctx, "user-1", "user@example.com", "")
	require.NoError(t, err)

	t.Run("stored roles", func(t *testing.T) {
		require.Equal(t, users.RoleAdmin, svc.ResolveRole(ctx, "admin-1"))
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, "user-1"))
		require.True(t, svc.IsAdmin(ctx, "admin-1"))
		require.False(t, svc.IsAdmin(ctx, "user-1"))
	})

	t.Run("unknown and empty ids default to USER", func(t *testing.T) {
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, "nobody"))
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, ""))
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, "   "))

		lookup := svc.LookupRole(ctx, "nobody")
		require.False(t, lookup.Found)
		require.NoError(t, lookup.Err)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		before := repo.Calls()
		repo.InjectErrors(errHiccup, errHiccup)
		require.Equal(t, users.RoleAdmin, svc.ResolveRole(ctx, "admin-1"))
		require.Equal(t, before+3, repo.Calls())
	})

	t.Run("exhausted retries default to USER", func(t *testing.T) {
		repo.InjectErrors(errHiccup, errHiccup, errHiccup)
		lookup := svc.LookupRole(ctx, "admin-1")
		require.False(t, lookup.Found)
		require.ErrorIs(t, lookup.Err, apperrors.ErrExhaustedRetry)
		require.Equal(t, users.RoleUser, lookup.OrDefault())

		repo.InjectErrors(errHiccup, errHiccup, errHiccup)
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, "admin-1"))
	})

	t.Run("non-transient failure is not retried", func(t *testing.T) {
		before := repo.Calls()
		repo.InjectErrors(errors.New("corrupt row"))
		require.Equal(t, users.RoleUser, svc.ResolveRole(ctx, "admin-1"))
		require.Equal(t, before+1, repo.Calls())
	})
}

func TestEnsureBootstrapped(t *testing.T) {
	ctx := context.Background()

	t.Run("first user is admin, later users are not", func(t *testing.T) {
		svc := newService(t, fakeuserrepo.NewFakeUserRepo())

		first, created, err := svc.EnsureBootstrapped(ctx, "u-1", "one@example.com", "One")
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, users.RoleAdmin, first.Role)
		require.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), first.CreatedAt)

		second, created, err := svc.EnsureBootstrapped(ctx, "u-2", "two@example.com", "Two")
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, users.RoleUser, second.Role)
	})

	t.Run("idempotent", func(t *testing.T) {
		svc := newService(t, fakeuserrepo.NewFakeUserRepo())

		_, _, err := svc.EnsureBootstrapped(ctx, "u-1", "one@example.com", "One")
		require.NoError(t, err)

		again, created, err := svc.EnsureBootstrapped(ctx, "u-1", "other@example.com", "Other")
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, users.RoleAdmin, again.Role)
		require.Equal(t, "one@example.com", again.Email)
	})

	t.Run("validation", func(t *testing.T) {
		repo := fakeuserrepo.NewFakeUserRepo()
		svc := newService(t, repo)

		_, _, err := svc.EnsureBootstrapped(ctx, "", "one@example.com", "")
		require.ErrorIs(t, err, apperrors.ErrValidation)
		_, _, err = svc.EnsureBootstrapped(ctx, "u-1", " ", "")
		require.ErrorIs(t, err, apperrors.ErrValidation)
		require.Equal(t, 0, repo.Calls())
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		repo := fakeuserrepo.NewFakeUserRepo()
		svc := newService(t, repo)

		repo.InjectErrors(errHiccup)
		u, created, err := svc.EnsureBootstrapped(ctx, "u-1", "one@example.com", "")
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, users.RoleAdmin, u.Role)
		require.Equal(t, 2, repo.Calls())
	})

	t.Run("concurrent first signups yield one admin", func(t *testing.T) {
		repo := fakeuserrepo.NewFakeUserRepo()
		svc := newService(t, repo)

		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, err := svc.EnsureBootstrapped(ctx, fmt.Sprintf("u-%d", i), fmt.Sprintf("u%d@example.com", i), "")
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		page, err := svc.ListUsers(ctx, 0, 100)
		require.NoError(t, err)
		require.Equal(t, n, page.Total)

		admins := 0
		for _, u := range page.Users {
			if u.IsAdmin() {
				admins++
			}
		}
		require.Equal(t, 1, admins)
	})
}

func TestUpdateRole(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	svc := newService(t, repo)

	_, _, err := svc.EnsureBootstrapped(ctx, "u-1", "one@example.com", "")
	require.NoError(t, err)
	_, _, err = svc.EnsureBootstrapped(ctx, "u-2", "two@example.com", "")
	require.NoError(t, err)

	t.Run("promote", func(t *testing.T) {
		u, err := svc.UpdateRole(ctx, "u-2", users.RoleAdmin)
		require.NoError(t, err)
		require.Equal(t, users.RoleAdmin, u.Role)
		require.Equal(t, users.RoleAdmin, svc.ResolveRole(ctx, "u-2"))
	})

	t.Run("invalid role leaves record unchanged", func(t *testing.T) {
		before := repo.Calls()
		_, err := svc.UpdateRole(ctx, "u-2", users.Role("OWNER"))
		require.ErrorIs(t, err, apperrors.ErrValidation)
		require.Equal(t, before, repo.Calls())
		require.Equal(t, users.RoleAdmin, svc.ResolveRole(ctx, "u-2"))
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := svc.UpdateRole(ctx, "nobody", users.RoleUser)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestListUsersClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, fakeuserrepo.NewFakeUserRepo())

	page, err := svc.ListUsers(ctx, -5, 0)
	require.NoError(t, err)
	require.Equal(t, 0, page.Offset)
	require.Equal(t, 50, page.Limit)

	page, err = svc.ListUsers(ctx, 0, 10000)
	require.NoError(t, err)
	require.Equal(t, 200, page.Limit)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, fakeuserrepo.NewFakeUserRepo())

	_, _, err := svc.EnsureBootstrapped(ctx, "u-1", "one@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, "u-1"))
	require.ErrorIs(t, svc.DeleteUser(ctx, "u-1"), apperrors.ErrNotFound)

	_, err = svc.GetUser(ctx, "u-1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParseRole(t *testing.T) {
	for _, ok := range []string{"USER", "ADMIN"} {
		r, err := users.ParseRole(ok)
		require.NoError(t, err)
		require.Equal(t, users.Role(ok), r)
	}
	for _, bad := range []string{"", "admin", "OWNER", " ADMIN"} {
		_, err := users.ParseRole(bad)
		require.ErrorIs(t, err, apperrors.ErrValidation, bad)
	}
}
