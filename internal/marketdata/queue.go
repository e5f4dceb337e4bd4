package marketdata

import (
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/trading-core/internal/atomicfloat"
)

const (
	// enqueueRetryBudget bounds the CAS loop so a producer cannot spin
	// unboundedly under pathological contention. Exhaustion counts as a
	// drop; it is a liveness compromise, not a correctness one.
	enqueueRetryBudget = 1000
	dequeueRetryBudget = 1000

	// MinQueueCapacity is the smallest allowed ring size (one slot is a
	// sentinel, so this yields at least 7 usable slots).
	MinQueueCapacity = 8
)

// slot is one ring element. Price, volume and timestamp are written with
// plain stores after the producer has won the tail CAS; seq is the commit
// marker: a consumer only reads the slot once seq equals position+1, which
// publishes the plain stores with acquire/release ordering.
type slot struct {
	seq        atomic.Uint64
	priceBits  uint64
	volumeBits uint64
	timestamp  int64
	enqueuedAt int64 // unix nanos, for latency sampling
	token      string
	source     string
}

// QueueStats is a point-in-time snapshot of queue counters.
type QueueStats struct {
	Enqueued           uint64
	Dequeued           uint64
	Dropped            uint64
	AverageLatency     time.Duration
	UtilizationPercent float64
}

// Queue is a bounded lock-free multi-producer multi-consumer ring of ticks.
//
// head and tail are ever-increasing logical positions; the slot for position
// p is slots[p % len(slots)]. One slot is reserved as a sentinel, so a queue
// constructed with capacity C accepts C-1 ticks before reporting full.
//
// Slot allocation is strictly ordered (each position is granted to exactly
// one producer via CAS), but FIFO delivery across concurrent producers is
// not guaranteed — only per-producer order and slot mutual exclusion are.
type Queue struct {
	slots []slot
	head  atomic.Uint64
	tail  atomic.Uint64

	enqueued       atomic.Uint64
	dequeued       atomic.Uint64
	dropped        atomic.Uint64
	latencySamples atomic.Uint64
	latencySumNs   atomic.Int64
}

// NewQueue allocates a queue with the given ring capacity. Capacities below
// MinQueueCapacity are raised to it.
func NewQueue(capacity int) *Queue {
	if capacity < MinQueueCapacity {
		capacity = MinQueueCapacity
	}
	return &Queue{slots: make([]slot, capacity)}
}

// Capacity returns the number of ticks the queue can hold (ring size minus
// the sentinel slot).
func (q *Queue) Capacity() int {
	return len(q.slots) - 1
}

// Len returns the current number of committed-or-reserved ticks. Approximate
// under concurrency.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Enqueue attempts to place t into the queue. It returns false — and counts a
// drop — when the queue is full, when t carries non-finite values, or when the
// CAS retry budget is exhausted.
func (q *Queue) Enqueue(t Tick) bool {
	if !t.Valid() {
		q.dropped.Add(1)
		return false
	}

	capacity := uint64(len(q.slots))
	for i := 0; i < enqueueRetryBudget; i++ {
		tail := q.tail.Load()
		head := q.head.Load()
		if tail-head >= capacity-1 {
			q.dropped.Add(1)
			return false
		}
		if !q.tail.CompareAndSwap(tail, tail+1) {
			continue
		}

		// The CAS reserved position `tail` exclusively; plain stores are
		// safe until the seq commit below publishes them.
		s := &q.slots[tail%capacity]
		s.priceBits = atomicfloat.Encode(t.Price)
		s.volumeBits = atomicfloat.Encode(t.Volume)
		s.timestamp = t.Timestamp
		s.token = t.Token
		s.source = t.Source
		s.enqueuedAt = time.Now().UnixNano()
		s.seq.Store(tail + 1)

		q.enqueued.Add(1)
		return true
	}

	q.dropped.Add(1)
	return false
}

// Dequeue removes and returns the oldest committed tick. The second return is
// false when the queue is empty or the retry budget was exhausted.
func (q *Queue) Dequeue() (Tick, bool) {
	capacity := uint64(len(q.slots))
	for i := 0; i < dequeueRetryBudget; i++ {
		head := q.head.Load()
		tail := q.tail.Load()
		if head == tail {
			return Tick{}, false
		}

		s := &q.slots[head%capacity]
		if s.seq.Load() != head+1 {
			// The producer that reserved this slot has not committed yet.
			continue
		}

		// Read before the head CAS. A producer can only start overwriting
		// this slot (position head+capacity) after head has advanced, which
		// means another consumer already claimed position head — and then
		// our CAS below fails and the copy is discarded unused. The seq
		// re-check catches the overwrite early; a torn copy never escapes.
		t := Tick{
			Token:     s.token,
			Price:     atomicfloat.Decode(s.priceBits),
			Volume:    atomicfloat.Decode(s.volumeBits),
			Timestamp: s.timestamp,
			Source:    s.source,
		}
		enqueuedAt := s.enqueuedAt

		if s.seq.Load() != head+1 {
			continue
		}

		if q.head.CompareAndSwap(head, head+1) {
			q.dequeued.Add(1)
			q.latencySamples.Add(1)
			q.latencySumNs.Add(time.Now().UnixNano() - enqueuedAt)
			return t, true
		}
	}
	return Tick{}, false
}

// DequeueBatch drains up to maxItems ticks. The batch is not atomic: other
// consumers may interleave between individual dequeues.
func (q *Queue) DequeueBatch(maxItems int) []Tick {
	if maxItems <= 0 {
		return nil
	}
	batch := make([]Tick, 0, maxItems)
	for len(batch) < maxItems {
		t, ok := q.Dequeue()
		if !ok {
			break
		}
		batch = append(batch, t)
	}
	return batch
}

// WaitForData polls for a tick with exponential backoff, returning false once
// timeout elapses with the queue still empty.
func (q *Queue) WaitForData(timeout time.Duration) (Tick, bool) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Microsecond
	for {
		if t, ok := q.Dequeue(); ok {
			return t, true
		}
		if time.Now().After(deadline) {
			return Tick{}, false
		}
		time.Sleep(backoff)
		if backoff < time.Millisecond {
			backoff *= 2
		}
	}
}

// Clear resets positions and counters. It is NOT safe to call while producers
// or consumers are active; it exists for reuse between runs and in tests.
func (q *Queue) Clear() {
	for i := range q.slots {
		q.slots[i].seq.Store(0)
	}
	q.head.Store(0)
	q.tail.Store(0)
	q.enqueued.Store(0)
	q.dequeued.Store(0)
	q.dropped.Store(0)
	q.latencySamples.Store(0)
	q.latencySumNs.Store(0)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	stats := QueueStats{
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Dropped:  q.dropped.Load(),
	}
	if samples := q.latencySamples.Load(); samples > 0 {
		stats.AverageLatency = time.Duration(q.latencySumNs.Load() / int64(samples))
	}
	if capacity := q.Capacity(); capacity > 0 {
		stats.UtilizationPercent = float64(q.Len()) / float64(capacity) * 100
	}
	return stats
}
