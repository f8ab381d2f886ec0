package messaging

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

var (
	ErrQueueFull        = errors.New("event queue full")
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// Dispatcher hands events to a pool of workers so request handlers never
// wait on the broker.
type Dispatcher struct {
	next   port.EventPublisher
	queue  chan queuedEvent
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type queuedEvent struct {
	span  trace.SpanContext
	event domain.SweetEvent
}

func NewDispatcher(next port.EventPublisher, workerCount, queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		next:   next,
		queue:  make(chan queuedEvent, queueSize),
		logger: logger,
	}

	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

// Publish enqueues without blocking. The caller's span context travels with
// the event so the broker write joins the same trace.
func (d *Dispatcher) Publish(ctx context.Context, event domain.SweetEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- queuedEvent{span: trace.SpanContextFromContext(ctx), event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for item := range d.queue {
		ctx := trace.ContextWithSpanContext(context.Background(), item.span)

		if err := d.next.Publish(ctx, item.event); err != nil {
			d.logger.Error("failed to deliver event",
				zap.Int("worker", id),
				zap.String("type", string(item.event.Type)),
				zap.String("sweet_id", item.event.SweetID),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("event delivered",
			zap.Int("worker", id),
			zap.String("type", string(item.event.Type)),
			zap.String("sweet_id", item.event.SweetID),
		)
	}
}
