package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/telemetry"
)

const (
	// DefaultRedisChannel is the pub/sub channel events are relayed on.
	DefaultRedisChannel = "leadpool:company-events"

	publishTimeout = 5 * time.Second
)

var _ Publisher = (*RedisRelay)(nil)

// RedisRelay fans events out across server processes. Publish sends the event to a
// Redis pub/sub channel; every process running a relay receives it and republishes it on
// its local Bus. Delivery stays at-most-once: events published while a relay is
// disconnected are lost, exactly as with the in-process bus.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Bus

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisRelay creates a relay that feeds events received on channel into local.
func NewRedisRelay(client *redis.Client, channel string, local *Bus) *RedisRelay {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
	}
}

// Start subscribes to the channel and begins forwarding to the local bus. It returns once
// the subscription is confirmed so no event published afterwards is missed.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.forward(pubsub.Channel())
	}()

	log.Info().Str("channel", r.channel).Msg("Redis event relay started")
	return nil
}

func (r *RedisRelay) forward(messages <-chan *redis.Message) {
	for msg := range messages {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			telemetry.GetMetrics().RelayErrorsTotal.Add(context.Background(), 1)
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("Discarding malformed relayed event")
			continue
		}
		r.local.Publish(context.Background(), event)
	}
}

// Publish sends the event to every relay subscribed to the channel, including this one.
// Cancellation of ctx is ignored; the send is bounded by its own timeout instead.
func (r *RedisRelay) Publish(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event for relay")
		return
	}

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		telemetry.GetMetrics().RelayErrorsTotal.Add(ctx, 1)
		log.Error().
			Err(err).
			Str("channel", r.channel).
			Int64("company_id", event.CompanyID).
			Msg("Failed to relay event")
	}
}

// Stop closes the subscription and waits for the forwarding goroutine to exit.
// It is safe to call more than once.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	r.wg.Wait()

	log.Info().Str("channel", r.channel).Msg("Redis event relay stopped")
	return err
}
