package marketdata

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTick(token string, price float64, ts int64) Tick {
	return Tick{Token: token, Price: price, Volume: 1000, Timestamp: ts, Source: "test"}
}

func TestQueueCapacityInvariant(t *testing.T) {
	q := NewQueue(8)
	require.Equal(t, 7, q.Capacity(), "one ring slot is a sentinel")

	// Capacity-1 ring slots accept ticks; the next enqueue is a drop.
	for i := 0; i < 7; i++ {
		require.True(t, q.Enqueue(testTick("mint", float64(i+1), int64(i))), "enqueue %d", i)
	}

	before := q.Stats()
	require.False(t, q.Enqueue(testTick("mint", 99, 99)))
	after := q.Stats()
	assert.Equal(t, before.Dropped+1, after.Dropped)

	// Existing slot data is untouched by the failed enqueue.
	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1.0, first.Price)

	// Draining one slot makes room again.
	assert.True(t, q.Enqueue(testTick("mint", 100, 100)))
}

func TestQueueSingleProducerFIFO(t *testing.T) {
	q := NewQueue(64)

	for i := 0; i < 50; i++ {
		require.True(t, q.Enqueue(testTick("mint", float64(i), int64(i))))
	}
	for i := 0; i < 50; i++ {
		tick, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, float64(i), tick.Price, "tick %d out of order", i)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok, "queue should be empty")
}

func TestQueueRejectsNonFinitePrices(t *testing.T) {
	q := NewQueue(8)

	assert.False(t, q.Enqueue(testTick("mint", math.NaN(), 1)))
	assert.False(t, q.Enqueue(testTick("mint", math.Inf(1), 2)))
	assert.False(t, q.Enqueue(Tick{Token: "", Price: 1, Timestamp: 3}))
	assert.Equal(t, uint64(3), q.Stats().Dropped)
	assert.Equal(t, 0, q.Len())
}

func TestQueueDequeueBatch(t *testing.T) {
	q := NewQueue(32)
	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(testTick("mint", float64(i), int64(i))))
	}

	batch := q.DequeueBatch(4)
	assert.Len(t, batch, 4)

	batch = q.DequeueBatch(100)
	assert.Len(t, batch, 6, "batch stops at empty")

	assert.Nil(t, q.DequeueBatch(0))
}

func TestQueueWaitForData(t *testing.T) {
	q := NewQueue(8)

	start := time.Now()
	_, ok := q.WaitForData(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(testTick("mint", 1.5, 1))
	}()

	tick, ok := q.WaitForData(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1.5, tick.Price)
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue(1024)

	var (
		wg           sync.WaitGroup
		consumed     sync.Map
		consumedN    int64
		consumedLock sync.Mutex
	)

	producers := 8
	perProducer := 500
	done := make(chan struct{})

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				tick := testTick(fmt.Sprintf("mint-%d", p), float64(p*perProducer+i), int64(i))
				for !q.Enqueue(tick) {
					time.Sleep(time.Microsecond)
				}
			}
		}(p)
	}

	consumers := 4
	var consumerWG sync.WaitGroup
	consumerWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWG.Done()
			for {
				tick, ok := q.Dequeue()
				if !ok {
					select {
					case <-done:
						if tick, ok = q.Dequeue(); !ok {
							return
						}
					default:
						time.Sleep(time.Microsecond)
						continue
					}
				}
				// Each enqueued price must be seen exactly once.
				if _, loaded := consumed.LoadOrStore(tick.Price, struct{}{}); loaded {
					t.Errorf("price %v consumed twice", tick.Price)
					return
				}
				consumedLock.Lock()
				consumedN++
				consumedLock.Unlock()
			}
		}()
	}

	wg.Wait()
	close(done)
	consumerWG.Wait()

	total := int64(producers * perProducer)
	assert.Equal(t, total, consumedN, "every committed tick is consumed exactly once")

	stats := q.Stats()
	assert.Equal(t, uint64(total), stats.Enqueued)
	assert.Equal(t, uint64(total), stats.Dequeued)
}

func TestQueueWrapContentionNeverTearsTicks(t *testing.T) {
	// A tiny ring forces producers to lap the slot array thousands of times
	// while consumers race on head. Every tick carries mutually redundant
	// fields; a dequeued tick whose fields disagree would mean a torn slot
	// copy escaped the seq re-check and the head CAS.
	q := NewQueue(8)

	producers := 4
	perProducer := 2000
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			token := fmt.Sprintf("mint-%d", p)
			for i := 0; i < perProducer; i++ {
				price := float64(p*1_000_000 + i)
				tick := Tick{Token: token, Price: price, Volume: price, Timestamp: int64(p), Source: token}
				for !q.Enqueue(tick) {
					time.Sleep(time.Microsecond)
				}
			}
		}(p)
	}

	consumers := 4
	var consumerWG sync.WaitGroup
	consumerWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWG.Done()
			for {
				tick, ok := q.Dequeue()
				if !ok {
					select {
					case <-done:
						if tick, ok = q.Dequeue(); !ok {
							return
						}
					default:
						continue
					}
				}
				producer := int(tick.Price) / 1_000_000
				if tick.Token != fmt.Sprintf("mint-%d", producer) ||
					tick.Source != tick.Token ||
					tick.Volume != tick.Price ||
					tick.Timestamp != int64(producer) {
					t.Errorf("torn tick escaped: %+v", tick)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	consumerWG.Wait()

	stats := q.Stats()
	assert.Equal(t, uint64(producers*perProducer), stats.Dequeued)
}

func TestQueueClearResetsState(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		q.Enqueue(testTick("mint", float64(i), int64(i)))
	}
	q.Dequeue()

	q.Clear()

	stats := q.Stats()
	assert.Equal(t, uint64(0), stats.Enqueued)
	assert.Equal(t, uint64(0), stats.Dequeued)
	assert.Equal(t, 0, q.Len())
	_, ok := q.Dequeue()
	assert.False(t, ok)

	// Usable again after the reset.
	assert.True(t, q.Enqueue(testTick("mint", 42, 1)))
}
