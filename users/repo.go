package users

import (
	"context"
	"time"
)

// UserRepo is the principal store. Implementations enforce username and email uniqueness
// atomically and report violations as errors.ErrUsernameTaken / errors.ErrEmailTaken;
// missing users are reported as errors.ErrNotFound.
type UserRepo interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, user *User) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
