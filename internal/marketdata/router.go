package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickHandler receives drained, per-token-ordered ticks from the router.
// Implemented by the position manager.
type TickHandler interface {
	HandleTicks(ctx context.Context, ticks []Tick)
}

// TickHandlerFunc allows using a function as a TickHandler.
type TickHandlerFunc func(ctx context.Context, ticks []Tick)

func (f TickHandlerFunc) HandleTicks(ctx context.Context, ticks []Tick) {
	f(ctx, ticks)
}

// RouterConfig configures the market-data router.
type RouterConfig struct {
	QueueCapacity        int           // ring size for the global and per-token queues
	BatchSize            int           // max ticks drained per loop iteration
	DrainInterval        time.Duration // wait budget when the global queue is empty
	MonitorInterval      time.Duration // how often queue health is inspected
	UtilizationThreshold float64       // warn above this utilization percent
	LatencyThreshold     time.Duration // warn above this average queue latency
}

// DefaultRouterConfig returns the settings used when a field is unset.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		QueueCapacity:        4096,
		BatchSize:            256,
		DrainInterval:        50 * time.Millisecond,
		MonitorInterval:      10 * time.Second,
		UtilizationThreshold: 80,
		LatencyThreshold:     10 * time.Millisecond,
	}
}

func (c RouterConfig) withDefaults() RouterConfig {
	def := DefaultRouterConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = def.DrainInterval
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = def.MonitorInterval
	}
	if c.UtilizationThreshold <= 0 {
		c.UtilizationThreshold = def.UtilizationThreshold
	}
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = def.LatencyThreshold
	}
	return c
}

// Router fans incoming ticks into one global queue plus one lazily-created
// queue per token, and drains the global queue toward a TickHandler on a
// cooperative loop. Per-token queues let collaborators (dashboards, history
// recorders) tap a single token's stream without re-filtering the firehose.
type Router struct {
	config  RouterConfig
	global  *Queue
	handler TickHandler
	logger  *zap.Logger

	mu          sync.RWMutex
	tokenQueues map[string]*Queue

	wg sync.WaitGroup
}

// NewRouter creates a router delivering drained batches to handler.
func NewRouter(config RouterConfig, handler TickHandler, logger *zap.Logger) *Router {
	config = config.withDefaults()
	return &Router{
		config:      config,
		global:      NewQueue(config.QueueCapacity),
		handler:     handler,
		logger:      logger.Named("router"),
		tokenQueues: make(map[string]*Queue),
	}
}

// ProcessMarketData enqueues the tick into the global queue and the token's
// dedicated queue, returning true only if both enqueues succeeded.
func (r *Router) ProcessMarketData(t Tick) bool {
	globalOK := r.global.Enqueue(t)
	tokenOK := r.tokenQueue(t.Token).Enqueue(t)

	if !globalOK || !tokenOK {
		r.logger.Debug("Tick dropped",
			zap.String("token", t.Token),
			zap.Bool("global_ok", globalOK),
			zap.Bool("token_ok", tokenOK))
	}
	return globalOK && tokenOK
}

// TokenQueue returns the dedicated queue for a token, creating it on first use.
func (r *Router) TokenQueue(token string) *Queue {
	return r.tokenQueue(token)
}

func (r *Router) tokenQueue(token string) *Queue {
	r.mu.RLock()
	q, ok := r.tokenQueues[token]
	r.mu.RUnlock()
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok = r.tokenQueues[token]; ok {
		return q
	}
	q = NewQueue(r.config.QueueCapacity)
	r.tokenQueues[token] = q
	r.logger.Debug("Created token queue", zap.String("token", token))
	return q
}

// Start launches the drain and monitoring loops. They run until ctx is
// cancelled; Wait blocks until both have exited.
func (r *Router) Start(ctx context.Context) {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.drainLoop(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.monitorLoop(ctx)
	}()

	r.logger.Info("Market-data router started",
		zap.Int("queue_capacity", r.global.Capacity()),
		zap.Int("batch_size", r.config.BatchSize))
}

// Wait blocks until the router loops have stopped.
func (r *Router) Wait() {
	r.wg.Wait()
}

// drainLoop repeatedly pulls batches from the global queue, restores
// per-token timestamp order (the queue does not guarantee cross-producer
// FIFO) and forwards each group to the handler.
func (r *Router) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Drain loop stopped")
			return
		default:
		}

		batch := r.global.DequeueBatch(r.config.BatchSize)
		if len(batch) == 0 {
			if t, ok := r.global.WaitForData(r.config.DrainInterval); ok {
				batch = append(batch, t)
			} else {
				continue
			}
		}

		for _, group := range groupByToken(batch) {
			r.handler.HandleTicks(ctx, group)
		}
	}
}

// groupByToken splits a batch into per-token slices sorted by timestamp
// ascending. Group iteration order is unspecified.
func groupByToken(batch []Tick) map[string][]Tick {
	groups := make(map[string][]Tick)
	for _, t := range batch {
		groups[t.Token] = append(groups[t.Token], t)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp < group[j].Timestamp
		})
	}
	return groups
}

// monitorLoop periodically inspects queue health and logs warnings above the
// configured thresholds. Observability only; it never alters control flow.
func (r *Router) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Monitor loop stopped")
			return
		case <-ticker.C:
			stats := r.global.Stats()
			if stats.UtilizationPercent > r.config.UtilizationThreshold {
				r.logger.Warn("⚠️  Global queue utilization high",
					zap.Float64("utilization_percent", stats.UtilizationPercent),
					zap.Uint64("dropped", stats.Dropped))
			}
			if stats.AverageLatency > r.config.LatencyThreshold {
				r.logger.Warn("⚠️  Queue latency above threshold",
					zap.Duration("average_latency", stats.AverageLatency),
					zap.Duration("threshold", r.config.LatencyThreshold))
			}
		}
	}
}

// Stats returns the global queue statistics.
func (r *Router) Stats() QueueStats {
	return r.global.Stats()
}

// TokenStats returns per-token queue statistics keyed by token.
func (r *Router) TokenStats() map[string]QueueStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]QueueStats, len(r.tokenQueues))
	for token, q := range r.tokenQueues {
		out[token] = q.Stats()
	}
	return out
}
