package position

import (
	"sync"
	"time"
)

// OperationStats is one operation's aggregate performance counters.
type OperationStats struct {
	Count          uint64
	AverageLatency time.Duration
}

// opStats accumulates per-operation counts and latency sums. The hot paths
// record once per batch, not per position, so a small mutex is fine here.
type opStats struct {
	mu    sync.Mutex
	count map[string]uint64
	sumNs map[string]int64
}

func (s *opStats) record(op string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == nil {
		s.count = make(map[string]uint64)
		s.sumNs = make(map[string]int64)
	}
	s.count[op]++
	s.sumNs[op] += elapsed.Nanoseconds()
}

func (s *opStats) snapshot() map[string]OperationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OperationStats, len(s.count))
	for op, n := range s.count {
		avg := time.Duration(0)
		if n > 0 {
			avg = time.Duration(s.sumNs[op] / int64(n))
		}
		out[op] = OperationStats{Count: n, AverageLatency: avg}
	}
	return out
}
