package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const defaultPurchaseQuantity = 1

// InventoryService runs the inventory operations. Authorization happens
// before a call reaches it.
type InventoryService struct {
	sweets    port.SweetRepository
	guard     port.IdempotencyGuard
	publisher port.EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewInventoryService wires the service. guard and publisher are optional.
func NewInventoryService(sweets port.SweetRepository, guard port.IdempotencyGuard, publisher port.EventPublisher, logger *zap.Logger, tracer trace.Tracer) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("inventory")
	}
	return &InventoryService{
		sweets:    sweets,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
	}
}

type PurchaseRequest struct {
	SweetID        string
	Quantity       *int
	BuyerID        string
	IdempotencyKey string
}

type Receipt struct {
	Sweet    domain.Sweet
	Quantity int
}

func (s *InventoryService) List(ctx context.Context) (sweets []domain.Sweet, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list")
	defer func() { endSpan(span, err) }()

	sweets, err = s.sweets.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sweets: %w", err)
	}
	span.SetAttributes(attribute.Int("sweet.count", len(sweets)))
	return sweets, nil
}

func (s *InventoryService) Search(ctx context.Context, params domain.SearchParams) (sweets []domain.Sweet, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.search")
	defer func() { endSpan(span, err) }()

	sweets, err = s.sweets.FindByFilter(ctx, params.Filter())
	if err != nil {
		return nil, fmt.Errorf("search sweets: %w", err)
	}
	span.SetAttributes(attribute.Int("sweet.count", len(sweets)))
	return sweets, nil
}

func (s *InventoryService) Get(ctx context.Context, id string) (sweet *domain.Sweet, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.get", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer func() { endSpan(span, err) }()

	return s.find(ctx, id)
}

func (s *InventoryService) Create(ctx context.Context, draft domain.SweetDraft, creatorID string) (sweet *domain.Sweet, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.create")
	defer func() { endSpan(span, err) }()

	candidate, err := draft.NewSweet(creatorID)
	if err != nil {
		return nil, err
	}

	sweet, err = s.sweets.Insert(ctx, candidate)
	if err != nil {
		return nil, wrapStore("create sweet", err)
	}

	span.SetAttributes(attribute.String("sweet.id", sweet.ID))
	s.logger.Info("sweet created",
		zap.String("sweet_id", sweet.ID),
		zap.String("name", sweet.Name),
		zap.String("created_by", creatorID),
	)
	s.publish(ctx, domain.EventSweetCreated, *sweet, 0, creatorID)
	return sweet, nil
}

func (s *InventoryService) Update(ctx context.Context, id string, patch domain.SweetPatch, actorID string) (sweet *domain.Sweet, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.update", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer func() { endSpan(span, err) }()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	sweet, err = s.sweets.Update(ctx, id, patch)
	if err != nil {
		return nil, wrapStore("update sweet", err)
	}

	s.logger.Info("sweet updated", zap.String("sweet_id", id), zap.String("actor_id", actorID))
	s.publish(ctx, domain.EventSweetUpdated, *sweet, 0, actorID)
	return sweet, nil
}

func (s *InventoryService) Delete(ctx context.Context, id string, actorID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.delete", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer func() { endSpan(span, err) }()

	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.sweets.Remove(ctx, id); err != nil {
		return wrapStore("delete sweet", err)
	}

	s.logger.Info("sweet deleted", zap.String("sweet_id", id), zap.String("actor_id", actorID))
	s.publish(ctx, domain.EventSweetDeleted, *current, 0, actorID)
	return nil
}

// Purchase takes stock out of a record. A repeated idempotency key is
// rejected before anything changes, and released again if the attempt fails.
func (s *InventoryService) Purchase(ctx context.Context, req PurchaseRequest) (receipt *Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.purchase", trace.WithAttributes(attribute.String("sweet.id", req.SweetID)))
	defer func() { endSpan(span, err) }()

	quantity := defaultPurchaseQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	span.SetAttributes(attribute.Int("sweet.quantity", quantity))

	if s.guard != nil && req.IdempotencyKey != "" {
		key := fmt.Sprintf("purchase:%s:%s", req.BuyerID, req.IdempotencyKey)

		ok, setErr := s.guard.SetIdempotency(ctx, key)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.guard.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	current, err := s.find(ctx, req.SweetID)
	if err != nil {
		return nil, err
	}
	if quantity > current.Quantity {
		return nil, &domain.InsufficientStockError{Available: current.Quantity}
	}

	sweet, err := s.sweets.DecrementQuantity(ctx, req.SweetID, quantity)
	if err != nil {
		return nil, wrapStore("purchase sweet", err)
	}

	s.logger.Info("sweet purchased",
		zap.String("sweet_id", sweet.ID),
		zap.String("buyer_id", req.BuyerID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", sweet.Quantity),
	)
	s.publish(ctx, domain.EventSweetPurchased, *sweet, -quantity, req.BuyerID)
	return &Receipt{Sweet: *sweet, Quantity: quantity}, nil
}

func (s *InventoryService) Restock(ctx context.Context, id string, quantity *int, actorID string) (receipt *Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.restock", trace.WithAttributes(attribute.String("sweet.id", id)))
	defer func() { endSpan(span, err) }()

	if quantity == nil || *quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	span.SetAttributes(attribute.Int("sweet.quantity", *quantity))

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if *quantity > domain.MaxQuantity-current.Quantity {
		return nil, domain.ErrInvalidQuantity
	}

	sweet, err := s.sweets.IncrementQuantity(ctx, id, *quantity)
	if err != nil {
		return nil, wrapStore("restock sweet", err)
	}

	s.logger.Info("sweet restocked",
		zap.String("sweet_id", id),
		zap.String("actor_id", actorID),
		zap.Int("quantity", *quantity),
		zap.Int("stock", sweet.Quantity),
	)
	s.publish(ctx, domain.EventSweetRestocked, *sweet, *quantity, actorID)
	return &Receipt{Sweet: *sweet, Quantity: *quantity}, nil
}

func (s *InventoryService) find(ctx context.Context, id string) (*domain.Sweet, error) {
	sweet, err := s.sweets.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find sweet: %w", err)
	}
	if sweet == nil {
		return nil, domain.ErrNotFound
	}
	return sweet, nil
}

// publish is fire-and-log: a broker failure never fails the operation.
func (s *InventoryService) publish(ctx context.Context, typ domain.EventType, sweet domain.Sweet, delta int, actorID string) {
	if s.publisher == nil {
		return
	}

	event := domain.SweetEvent{
		Type:      typ,
		SweetID:   sweet.ID,
		Name:      sweet.Name,
		Quantity:  sweet.Quantity,
		Delta:     delta,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("type", string(typ)),
			zap.String("sweet_id", sweet.ID),
			zap.Error(err),
		)
	}
}

// wrapStore keeps domain errors bare so callers can match them, and adds
// context to everything else.
func wrapStore(op string, err error) error {
	var vErr *domain.ValidationError
	var stockErr *domain.InsufficientStockError
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidQuantity) || errors.As(err, &vErr) || errors.As(err, &stockErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
