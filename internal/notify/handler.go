// Package notify serves the per-client notification stream over Server-Sent Events.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/events"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/telemetry"
	"github.com/wolfeidau/leadpool/internal/util"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBufferSize        = 64
)

var errStreamFull = errors.New("stream buffer full, event dropped")

// Config controls stream behaviour.
type Config struct {
	HeartbeatInterval time.Duration
	// BufferSize is the number of events queued per connection before new events are
	// dropped for that connection.
	BufferSize int
}

// Handler serves GET /api/events. Each request becomes one bus subscriber for as long as
// the client stays connected.
type Handler struct {
	bus *events.Bus
	cfg Config
	now func() time.Time
}

// NewHandler creates a stream handler. Zero config values fall back to the defaults.
func NewHandler(bus *events.Bus, cfg Config) *Handler {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Handler{
		bus: bus,
		cfg: cfg,
		now: time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpmiddleware.WriteError(w, r, http.StatusUnauthorized, api.CodeUnauthenticated, "authentication required")
		return
	}

	s := &stream{
		connectionID: util.NewConnectionID(user.ID, h.now()),
		w:            w,
		rc:           http.NewResponseController(w),
		messages:     make(chan Message, h.cfg.BufferSize),
		bus:          h.bus,
	}

	logger := zerolog.Ctx(r.Context()).With().
		Str("connection_id", s.connectionID).
		Int64("user_id", user.ID).
		Logger()
	ctx := logger.WithContext(r.Context())

	if err := h.bus.Register(s.connectionID, s.enqueue); err != nil {
		logger.Warn().Err(err).Msg("Failed to register notification stream")
		httpmiddleware.WriteError(w, r, http.StatusServiceUnavailable, api.CodeUnavailable, "notifications are unavailable")
		return
	}
	telemetry.GetMetrics().ActiveStreams.Add(ctx, 1)
	defer s.close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err := s.send(Message{
		Type:         MessageConnected,
		ConnectionID: s.connectionID,
		UserID:       user.ID,
		Username:     user.Username,
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to send connected message")
		return
	}

	logger.Info().Msg("Notification stream opened")

	err = h.run(ctx, s)
	logger.Info().Err(err).Msg("Notification stream closed")
}

// run forwards queued events and heartbeats until the client goes away, the bus shuts
// down, or a write fails.
func (h *Handler) run(ctx context.Context, s *stream) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	m := telemetry.GetMetrics()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.bus.Done():
			return events.ErrBusClosed
		case msg := <-s.messages:
			if err := s.send(msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.send(heartbeatMessage(h.now())); err != nil {
				return err
			}
			m.HeartbeatsSentTotal.Add(ctx, 1)
		}
	}
}

type stream struct {
	connectionID string
	w            http.ResponseWriter
	rc           *http.ResponseController
	messages     chan Message
	bus          *events.Bus
	closeOnce    sync.Once
}

// enqueue is the bus handler. It never blocks the publisher; when the buffer is full
// the event is dropped for this connection only.
func (s *stream) enqueue(e events.Event) error {
	select {
	case s.messages <- MessageFromEvent(e):
		return nil
	default:
		telemetry.GetMetrics().EventsDroppedTotal.Add(context.Background(), 1)
		return errStreamFull
	}
}

func (s *stream) send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s message: %w", msg.Type, err)
	}
	return nil
}

// close unregisters from the bus. Safe to call more than once; the heartbeat ticker is
// stopped by run on every exit path.
func (s *stream) close() {
	s.closeOnce.Do(func() {
		s.bus.Unregister(s.connectionID)
		telemetry.GetMetrics().ActiveStreams.Add(context.Background(), -1)
	})
}
