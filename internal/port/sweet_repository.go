package port

import (
	"context"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

type SweetRepository interface {
	// FindAll returns every record, most recently created first
	FindAll(ctx context.Context) ([]domain.Sweet, error)

	// FindByID returns nil, nil when no record has the id
	FindByID(ctx context.Context, id string) (*domain.Sweet, error)

	// FindByFilter evaluates the filter in the store, newest first
	FindByFilter(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error)

	// Insert validates and persists a new record, assigning id and timestamps
	Insert(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error)

	// Update merges the patch, re-validates and persists
	Update(ctx context.Context, id string, patch domain.SweetPatch) (*domain.Sweet, error)

	// Remove deletes the record permanently
	Remove(ctx context.Context, id string) error

	// DecrementQuantity subtracts n only if the record holds at least n
	DecrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error)

	// IncrementQuantity adds n atomically
	IncrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error)

	Pinger
}

type Pinger interface {
	Ping(ctx context.Context) error
}
