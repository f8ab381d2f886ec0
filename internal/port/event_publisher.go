package port

import (
	"context"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.SweetEvent) error
}
