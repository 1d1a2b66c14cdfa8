package users

import "context"

// UserRepo is the persistence boundary for user records.
//
// GetByID, UpdateRole and Delete return an error matching errors.ErrNotFound
// when the id is unknown. Failures worth retrying are marked with
// errors.ErrTransientStore.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*User, error)

	// CreateBootstrapped inserts user with RoleAdmin when no user exists yet
	// and RoleUser otherwise, as one atomic step. When a record with the same
	// id already exists it is returned unchanged and created is false.
	CreateBootstrapped(ctx context.Context, user *User) (stored *User, created bool, err error)

	UpdateRole(ctx context.Context, id string, role Role) (*User, error)
	List(ctx context.Context, offset, limit int) (UsersListResponse, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}
