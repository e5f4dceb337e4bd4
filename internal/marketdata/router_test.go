package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouterProcessMarketData(t *testing.T) {
	r := NewRouter(RouterConfig{QueueCapacity: 16}, TickHandlerFunc(func(context.Context, []Tick) {}), zap.NewNop())

	require.True(t, r.ProcessMarketData(testTick("mintA", 1.0, 1)))
	require.True(t, r.ProcessMarketData(testTick("mintB", 2.0, 2)))

	assert.Equal(t, uint64(2), r.Stats().Enqueued)
	assert.Equal(t, 1, r.TokenQueue("mintA").Len())
	assert.Equal(t, 1, r.TokenQueue("mintB").Len())
}

func TestRouterReportsPartialEnqueueFailure(t *testing.T) {
	r := NewRouter(RouterConfig{QueueCapacity: 8}, TickHandlerFunc(func(context.Context, []Tick) {}), zap.NewNop())

	// Fill the token queue; the global queue is the same size so both fill
	// together, and the next tick must report failure.
	for i := 0; i < 7; i++ {
		require.True(t, r.ProcessMarketData(testTick("mint", float64(i+1), int64(i))))
	}
	assert.False(t, r.ProcessMarketData(testTick("mint", 99, 99)))
}

func TestRouterDrainRestoresTimestampOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Tick
	)
	handler := TickHandlerFunc(func(_ context.Context, ticks []Tick) {
		mu.Lock()
		received = append(received, ticks...)
		mu.Unlock()
	})

	r := NewRouter(RouterConfig{
		QueueCapacity: 64,
		BatchSize:     32,
		DrainInterval: 10 * time.Millisecond,
	}, handler, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	// Enqueue out of timestamp order; the drain loop must re-sort per token.
	timestamps := []int64{5, 1, 4, 2, 3}
	for _, ts := range timestamps {
		require.True(t, r.ProcessMarketData(testTick("mint", float64(ts), ts)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == len(timestamps)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(received); i++ {
		assert.LessOrEqual(t, received[i-1].Timestamp, received[i].Timestamp,
			"ticks for one token must arrive timestamp-ascending")
	}
}

func TestRouterGroupsBatchesByToken(t *testing.T) {
	batch := []Tick{
		testTick("a", 1, 3),
		testTick("b", 2, 1),
		testTick("a", 3, 1),
		testTick("b", 4, 2),
	}

	groups := groupByToken(batch)
	require.Len(t, groups, 2)
	require.Len(t, groups["a"], 2)
	require.Len(t, groups["b"], 2)
	assert.Equal(t, int64(1), groups["a"][0].Timestamp)
	assert.Equal(t, int64(3), groups["a"][1].Timestamp)
	assert.Equal(t, int64(1), groups["b"][0].Timestamp)
}

func TestRouterConcurrentTokenQueueCreation(t *testing.T) {
	r := NewRouter(RouterConfig{QueueCapacity: 16}, TickHandlerFunc(func(context.Context, []Tick) {}), zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.ProcessMarketData(testTick("shared-mint", float64(j+1), int64(j)))
				r.TokenQueue("shared-mint").Dequeue()
			}
		}()
	}
	wg.Wait()

	// Exactly one queue exists for the shared token.
	assert.Len(t, r.TokenStats(), 1)
}
