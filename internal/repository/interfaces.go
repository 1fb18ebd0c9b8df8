package repository

import (
	"context"
	"errors"

	"github.com/fornetto/pizzeria-api/internal/domain"
)

// Sentinel errors surfaced by implementations so callers never depend on
// driver-specific failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already registered")
)

// UserRepository is the Identity Store: user accounts with uniqueness
// constraints on email and username. Create must reject the second writer
// when two registrations race on the same email or username.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}
