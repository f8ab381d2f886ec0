package port

import (
	"context"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

type UserRepository interface {
	// CreateUser returns domain.ErrEmailTaken when the email is registered
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)

	// FindUserByEmail returns nil, nil when absent
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindUserByID returns nil, nil when absent
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
}
