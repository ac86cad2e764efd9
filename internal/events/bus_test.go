package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEvent(companyID int64) Event {
	return Event{
		Type:        TypeClaimed,
		CompanyID:   companyID,
		CompanyName: "Acme Co",
		UserID:      1,
		Username:    "alice",
		Timestamp:   time.Now(),
	}
}

func TestBus_PublishNoSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), testEvent(42))
	})
	require.Zero(t, bus.Count())
}

func TestBus_PublishDeliversToAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received sync.Map
	for i := range 3 {
		id := fmt.Sprintf("conn-%d", i)
		require.NoError(t, bus.Register(id, func(e Event) error {
			received.Store(id, e)
			return nil
		}))
	}

	bus.Publish(context.Background(), testEvent(42))

	for i := range 3 {
		v, ok := received.Load(fmt.Sprintf("conn-%d", i))
		require.True(t, ok)
		require.Equal(t, int64(42), v.(Event).CompanyID)
	}
}

func TestBus_FailingHandlerIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var delivered atomic.Int32

	require.NoError(t, bus.Register("panics", func(Event) error {
		panic("subscriber bug")
	}))
	require.NoError(t, bus.Register("errors", func(Event) error {
		return errors.New("write failed")
	}))
	require.NoError(t, bus.Register("ok-1", func(Event) error {
		delivered.Add(1)
		return nil
	}))
	require.NoError(t, bus.Register("ok-2", func(Event) error {
		delivered.Add(1)
		return nil
	}))

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), testEvent(42))
	})
	require.Equal(t, int32(2), delivered.Load())
}

func TestBus_PreservesPublisherOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []int64
	require.NoError(t, bus.Register("conn", func(e Event) error {
		got = append(got, e.CompanyID)
		return nil
	}))

	for i := int64(1); i <= 5; i++ {
		bus.Publish(context.Background(), testEvent(i))
	}

	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestBus_RegisterUnregister(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.Register("conn", func(Event) error {
		calls++
		return nil
	}))
	require.Equal(t, 1, bus.Count())

	err := bus.Register("conn", func(Event) error { return nil })
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	require.True(t, bus.Unregister("conn"))
	require.False(t, bus.Unregister("conn"), "second unregister is a no-op")
	require.Zero(t, bus.Count())

	bus.Publish(context.Background(), testEvent(1))
	require.Zero(t, calls)
}

func TestBus_HandlerMayUnregisterItself(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	require.NoError(t, bus.Register("conn", func(Event) error {
		bus.Unregister("conn")
		return nil
	}))

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), testEvent(1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish deadlocked")
	}
	require.Zero(t, bus.Count())
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("conn", func(Event) error { return nil }))

	bus.Close()
	bus.Close()

	select {
	case <-bus.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	require.Zero(t, bus.Count())
	require.ErrorIs(t, bus.Register("late", func(Event) error { return nil }), ErrBusClosed)
}

func TestBus_ConcurrentAccess(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			_ = bus.Register(id, func(Event) error { return nil })
			bus.Unregister(id)
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), testEvent(int64(i)))
		}()
	}
	wg.Wait()

	require.Zero(t, bus.Count())
}
