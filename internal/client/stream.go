package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/notify"
)

// Status is the health of the notification stream as shown to the user.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

var (
	// ErrReconnectExhausted is returned by Watcher.Run once every reconnect attempt failed.
	ErrReconnectExhausted = errors.New("notification stream reconnect attempts exhausted")

	errStreamClosed = errors.New("notification stream closed by server")
	errStreamIdle   = errors.New("notification stream idle, no heartbeat received")
)

// WatchConfig controls reconnection. Zero values use the defaults.
type WatchConfig struct {
	InitialInterval time.Duration // default 1s
	Multiplier      float64       // default 2
	MaxInterval     time.Duration // default 30s
	MaxAttempts     uint          // default 5
	// IdleTimeout drops a connection that has been silent this long. It should exceed
	// the server heartbeat interval. Default 75s.
	IdleTimeout time.Duration

	// Resync reloads the company cache from the API after every successful connect, so
	// claims made while disconnected are not missed. Every page of the listing is loaded.
	Resync     bool
	ResyncOpts ListOptions

	OnStatus  func(Status)
	OnMessage func(notify.Message)
}

func (c *WatchConfig) setDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 75 * time.Second
	}
}

// Watcher keeps one notification stream open and applies its messages to a CompanyCache.
type Watcher struct {
	client *Client
	cache  *CompanyCache
	cfg    WatchConfig

	mu     sync.RWMutex
	status Status
	// connected user, from the connected message
	userID   int64
	username string
}

func NewWatcher(client *Client, cache *CompanyCache, cfg WatchConfig) *Watcher {
	cfg.setDefaults()
	return &Watcher{
		client: client,
		cache:  cache,
		cfg:    cfg,
	}
}

// User returns the id and username from the last connected message. It is safe to call
// while Run is streaming.
func (w *Watcher) User() (int64, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.userID, w.username
}

// Status returns the current stream status.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Run streams notifications until ctx is done. A dropped connection is retried with
// exponential backoff; each successful connect starts a fresh retry budget. When the
// budget runs out the status becomes failed and Run returns ErrReconnectExhausted.
// Authentication failures are not retried.
func (w *Watcher) Run(ctx context.Context) error {
	w.setStatus(StatusConnecting)

	for {
		stream, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.setStatus(StatusFailed)

			var apiErr *APIError
			if errors.As(err, &apiErr) && isPermanent(apiErr.StatusCode) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrReconnectExhausted, err)
		}

		w.setStatus(StatusConnected)

		err = w.consume(ctx, stream)
		if ctx.Err() != nil {
			return nil
		}

		log.Warn().Err(err).Msg("Notification stream dropped, reconnecting")
		w.setStatus(StatusReconnecting)
	}
}

func (w *Watcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialInterval
	b.Multiplier = w.cfg.Multiplier
	b.MaxInterval = w.cfg.MaxInterval
	return b
}

// connect opens the stream, retrying with backoff, and returns once the connected
// message has been read.
func (w *Watcher) connect(ctx context.Context) (*sseReader, error) {
	operation := func() (*sseReader, error) {
		resp, err := w.client.openEvents(ctx)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && isPermanent(apiErr.StatusCode) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		stream := newSSEReader(resp.Body)
		first, err := stream.Next()
		if err != nil {
			stream.Close()
			return nil, err
		}
		if first.Type != notify.MessageConnected {
			stream.Close()
			return nil, fmt.Errorf("unexpected first message %q", first.Type)
		}

		w.mu.Lock()
		w.userID = first.UserID
		w.username = first.Username
		w.mu.Unlock()

		log.Info().
			Str("connection_id", first.ConnectionID).
			Str("username", first.Username).
			Msg("Notification stream connected")

		if w.cfg.Resync {
			companies, err := w.client.ListAllCompanies(ctx, w.cfg.ResyncOpts)
			if err != nil {
				stream.Close()
				return nil, fmt.Errorf("failed to resync companies: %w", err)
			}
			w.cache.Load(companies)
		}

		w.emit(first)
		return stream, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(w.newBackOff()),
		backoff.WithMaxTries(w.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.setStatus(StatusReconnecting)
			log.Warn().Err(err).Dur("retry_in", next).Msg("Notification stream connect failed")
		}),
	)
}

// consume applies messages until the stream ends, goes idle or ctx is done.
func (w *Watcher) consume(ctx context.Context, stream *sseReader) error {
	done := make(chan struct{})
	defer func() {
		close(done)
		stream.Close()
	}()

	messages := make(chan notify.Message)
	errc := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Next()
			if err != nil {
				errc <- err
				return
			}
			select {
			case messages <- msg:
			case <-done:
				return
			}
		}
	}()

	idle := time.NewTimer(w.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return errStreamClosed
			}
			return err
		case <-idle.C:
			return errStreamIdle
		case msg := <-messages:
			idle.Reset(w.cfg.IdleTimeout)
			w.cache.Apply(msg)
			w.emit(msg)
		}
	}
}

func (w *Watcher) setStatus(s Status) {
	w.mu.Lock()
	if w.status == s {
		w.mu.Unlock()
		return
	}
	w.status = s
	w.mu.Unlock()

	if w.cfg.OnStatus != nil {
		w.cfg.OnStatus(s)
	}
}

func (w *Watcher) emit(msg notify.Message) {
	if w.cfg.OnMessage != nil {
		w.cfg.OnMessage(msg)
	}
}

func isPermanent(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// sseReader decodes "data:" lines of a Server-Sent Events body into messages.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEReader(body io.ReadCloser) *sseReader {
	return &sseReader{body: body, scanner: bufio.NewScanner(body)}
}

// Next returns the next message, skipping comments and unknown fields. It returns
// io.EOF when the body ends.
func (r *sseReader) Next() (notify.Message, error) {
	var data strings.Builder
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var msg notify.Message
			if err := json.Unmarshal([]byte(data.String()), &msg); err != nil {
				return notify.Message{}, fmt.Errorf("failed to decode notification: %w", err)
			}
			return msg, nil
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
	}

	if err := r.scanner.Err(); err != nil {
		return notify.Message{}, err
	}
	return notify.Message{}, io.EOF
}

func (r *sseReader) Close() {
	_ = r.body.Close()
}
