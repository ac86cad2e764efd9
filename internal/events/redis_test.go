package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func setupRelay(t *testing.T, mr *miniredis.Miniredis) (*RedisRelay, *Bus) {
	t.Helper()

	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	bus := NewBus()
	t.Cleanup(bus.Close)

	relay := NewRedisRelay(client, "", bus)
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(func() { _ = relay.Stop() })

	return relay, bus
}

func TestNewRedisClient_invalidURL(t *testing.T) {
	_, err := NewRedisClient("not-a-url")
	require.Error(t, err)
}

func TestRedisRelay_FanOutAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)

	relayA, busA := setupRelay(t, mr)
	_, busB := setupRelay(t, mr)

	receivedA := make(chan Event, 1)
	receivedB := make(chan Event, 1)
	require.NoError(t, busA.Register("a", func(e Event) error { receivedA <- e; return nil }))
	require.NoError(t, busB.Register("b", func(e Event) error { receivedB <- e; return nil }))

	relayA.Publish(context.Background(), testEvent(42))

	for _, ch := range []chan Event{receivedA, receivedB} {
		select {
		case e := <-ch:
			require.Equal(t, int64(42), e.CompanyID)
			require.Equal(t, TypeClaimed, e.Type)
			require.Equal(t, "alice", e.Username)
		case <-time.After(2 * time.Second):
			t.Fatal("relayed event not received")
		}
	}
}

func TestRedisRelay_MalformedPayloadIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	relay, bus := setupRelay(t, mr)

	received := make(chan Event, 2)
	require.NoError(t, bus.Register("conn", func(e Event) error { received <- e; return nil }))

	mr.Publish(DefaultRedisChannel, "{not json")
	relay.Publish(context.Background(), testEvent(7))

	select {
	case e := <-received:
		require.Equal(t, int64(7), e.CompanyID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid event not received after malformed one")
	}
}

func TestRedisRelay_PublishIgnoresCanceledContext(t *testing.T) {
	mr := miniredis.RunT(t)
	relay, bus := setupRelay(t, mr)

	received := make(chan Event, 1)
	require.NoError(t, bus.Register("conn", func(e Event) error { received <- e; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay.Publish(ctx, testEvent(42))

	select {
	case e := <-received:
		require.Equal(t, int64(42), e.CompanyID)
	case <-time.After(2 * time.Second):
		t.Fatal("event published on a canceled context was not relayed")
	}
}

func TestRedisRelay_StopIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	relay, _ := setupRelay(t, mr)

	require.NoError(t, relay.Stop())
	require.NoError(t, relay.Stop())
}
