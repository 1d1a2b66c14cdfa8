package users

import (
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
)

// Role is the authorization level of a user
type Role string

const (
	RoleUser  Role = "USER"  // Default role for every account after the first
	RoleAdmin Role = "ADMIN" // Back office access; the first account is bootstrapped with it
)

// ParseRole accepts exactly "USER" or "ADMIN".
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", apperrors.Validation("role must be one of %s, %s", RoleUser, RoleAdmin)
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID        string    `json:"id"`             // Identifier issued by the identity provider
	Email     string    `json:"email"`          // User's email address
	Name      string    `json:"name,omitempty"` // Display name
	Role      Role      `json:"role"`           // USER or ADMIN
	CreatedAt time.Time `json:"created_at"`     // When the record was created
}

// NewUser validates the signup fields. The role is decided by the store.
func NewUser(id, email, name string) (*User, error) {
	id = strings.TrimSpace(id)
	email = strings.TrimSpace(email)
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	if email == "" {
		return nil, apperrors.Validation("email is required")
	}
	return &User{
		ID:    id,
		Email: email,
		Name:  strings.TrimSpace(name),
	}, nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName falls back to the email when no name is set
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UsersListResponse is a page of users
type UsersListResponse struct {
	Users  []*User `json:"users"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}
