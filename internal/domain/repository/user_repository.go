package repository

import (
	"context"
	"errors"

	"github.com/eatright/eatright-api/internal/domain/entity"
)

// ErrDuplicateEmail is returned by Create when the email unique constraint
// rejects the insert. The constraint is the authority; callers may pre-check
// GetByEmail but must still handle this error.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository defines the interface for user-related database operations.
// Lookups are case-sensitive exact matches; a missing row yields (nil, nil).
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}
