package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/trading-core/internal/position"
	"github.com/rovshanmuradov/trading-core/internal/strategy"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var received atomic.Int32
	bus.SubscribeFunc(PositionOpened, func(_ context.Context, e Event) error {
		opened, ok := e.(PositionOpenedEvent)
		require.True(t, ok)
		assert.Equal(t, "pos-1", opened.PositionID)
		received.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(NewPositionOpened("pos-1", "mint", 100, 1000)))

	assert.Eventually(t, func() bool {
		return received.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublishSyncReturnsHandlerErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	bus.SubscribeFunc(PositionClosed, func(context.Context, Event) error {
		return assert.AnError
	})

	err := bus.PublishSync(context.Background(), NewPositionClosed("pos-1", "mint", "done", 10, 100))
	assert.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var received atomic.Int32
	sub := bus.SubscribeFunc(PriceUpdated, func(context.Context, Event) error {
		received.Add(1)
		return nil
	})
	sub.Unsubscribe()

	require.NoError(t, bus.PublishSync(context.Background(), NewPriceUpdated("mint", 100, 1, "test")))
	assert.Equal(t, int32(0), received.Load())
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	// No subscribers and no drain: the second publish may find the buffer
	// full. Either way Publish must return promptly.
	_ = bus.Publish(NewTickDropped("mint", "queue_full"))
	_ = bus.Publish(NewTickDropped("mint", "queue_full"))
	_ = bus.Publish(NewTickDropped("mint", "queue_full"))

	stats := bus.BusStats()
	assert.LessOrEqual(t, stats.Pending, 1)
	_ = bus.Shutdown(context.Background())
}

func TestExitRequestedCarriesRequest(t *testing.T) {
	target := 160.0
	req := position.ExitRequest{
		PositionID:  "pos-1",
		Token:       "mint",
		Reason:      "profit target reached",
		TargetPrice: &target,
		Urgency:     strategy.UrgencyHigh,
	}

	event := NewExitRequested(req)
	assert.Equal(t, ExitRequested, event.Type())
	assert.Equal(t, "pos-1", event.Request.PositionID)
	assert.False(t, event.Timestamp().IsZero())
}

func TestShutdownRejectsNewEvents(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.Error(t, bus.Publish(NewTickDropped("mint", "queue_full")))
}
