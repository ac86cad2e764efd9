package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrBusClosed         = errors.New("event bus closed")
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// Handler receives an event for one connection. A returned error is logged and
// does not affect delivery to other connections.
type Handler func(Event) error

var _ Publisher = (*Bus)(nil)

// Bus is an in-process publish/subscribe registry keyed by connection id.
// It holds no history: a connection registered after an event was published never sees it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler // connection_id -> handler
	closed   bool
	done     chan struct{}
}

// NewBus creates an empty bus. The caller owns its lifecycle and must Close it on shutdown.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Register adds a handler for a connection.
func (b *Bus) Register(connectionID string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.handlers[connectionID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, connectionID)
	}

	b.handlers[connectionID] = handler
	telemetry.GetMetrics().ActiveSubscribers.Add(context.Background(), 1)

	log.Debug().Str("connection_id", connectionID).Int("subscribers", len(b.handlers)).Msg("Registered subscriber")
	return nil
}

// Unregister removes a connection's handler. It returns false if the connection was not
// registered, which makes repeated calls harmless.
func (b *Bus) Unregister(connectionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[connectionID]; !exists {
		return false
	}

	delete(b.handlers, connectionID)
	telemetry.GetMetrics().ActiveSubscribers.Add(context.Background(), -1)

	log.Debug().Str("connection_id", connectionID).Int("subscribers", len(b.handlers)).Msg("Unregistered subscriber")
	return true
}

// Publish delivers the event synchronously to every registered handler. Handlers are
// snapshotted under the read lock and invoked outside it, so a handler may register or
// unregister without deadlocking.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	targets := make(map[string]Handler, len(b.handlers))
	for id, h := range b.handlers {
		targets[id] = h
	}
	b.mu.RUnlock()

	m := telemetry.GetMetrics()
	m.EventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(event.Type))))

	for id, h := range targets {
		if err := b.deliver(id, h, event); err != nil {
			m.DeliveryFailuresTotal.Add(ctx, 1)
			log.Warn().
				Err(err).
				Str("connection_id", id).
				Str("type", string(event.Type)).
				Int64("company_id", event.CompanyID).
				Msg("Event delivery failed")
		}
	}
}

// deliver invokes one handler, converting a panic into an error.
func (b *Bus) deliver(connectionID string, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("connection_id", connectionID).
				Str("stack", string(debug.Stack())).
				Msgf("Event handler panicked: %v", r)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(event)
}

// Count returns the number of registered connections.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Done is closed when the bus shuts down. Streams select on it to end themselves.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Close removes every handler and signals Done. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if n := len(b.handlers); n > 0 {
		telemetry.GetMetrics().ActiveSubscribers.Add(context.Background(), -int64(n))
	}
	b.handlers = make(map[string]Handler)
	close(b.done)

	log.Info().Msg("Event bus closed")
}
