package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/trading-core/internal/strategy"
)

// Persister is the persistence collaborator. Implementations must be safe for
// concurrent use; a nil Persister disables persistence entirely.
type Persister interface {
	AddPosition(ctx context.Context, pc Context) error
	ClosePosition(ctx context.Context, positionID, exitTradeID string, closedAt time.Time, pnlUSD, pnlPercent float64) error
	SaveExitEvent(ctx context.Context, req ExitRequest) error
}

// PriceUpdate is one entry of a price propagation batch.
type PriceUpdate struct {
	Token     string
	Price     float64
	Timestamp int64
	Source    string
}

// PriceResult reports the outcome of one batch entry.
type PriceResult struct {
	Token     string
	Positions int
	Applied   int
}

// ExitRequest is emitted when the exit scan finds a position that should be
// sold. Consumed by the trade-execution side.
type ExitRequest struct {
	PositionID            string
	Token                 string
	Reason                string
	TargetPrice           *float64
	PartialExitPercentage *float64
	Urgency               strategy.Urgency
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Logger    *zap.Logger
	Registry  *strategy.Registry
	Persister Persister // optional

	// PersistMaxTries bounds the retry loop around persister calls.
	PersistMaxTries uint
	// PriceWorkers caps the parallelism of batch price propagation.
	PriceWorkers int
}

type entry struct {
	machine    *Machine
	strategies []strategy.Config
}

// Manager owns the live position machines. Structural mutation (create,
// close, cleanup) is serialized behind mu; price propagation and the exit
// scan take mu only long enough to snapshot which positions exist.
type Manager struct {
	mu        sync.Mutex
	positions map[string]*entry

	logger    *zap.Logger
	registry  *strategy.Registry
	persister Persister
	maxTries  uint
	workers   int

	perf opStats
}

// NewManager creates an empty position manager.
func NewManager(cfg ManagerConfig) *Manager {
	workers := cfg.PriceWorkers
	if workers <= 0 {
		workers = 8
	}
	maxTries := cfg.PersistMaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	return &Manager{
		positions: make(map[string]*entry),
		logger:    cfg.Logger.Named("position_manager"),
		registry:  cfg.Registry,
		persister: cfg.Persister,
		maxTries:  maxTries,
		workers:   workers,
	}
}

// CreatePosition registers a new position and moves it to Monitoring.
func (m *Manager) CreatePosition(ctx context.Context, token string, entryPrice, amount float64, strategies []strategy.Config) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token address is required")
	}
	if entryPrice <= 0 || amount <= 0 {
		return "", fmt.Errorf("entry price and amount must be positive")
	}

	id := uuid.New().String()
	machine := NewMachine(id, token, entryPrice, amount, m.logger)
	if !machine.TransitionWithReason(EventPositionOpened, nil, "position created") {
		return "", fmt.Errorf("failed to open position %s", id)
	}

	m.mu.Lock()
	m.positions[id] = &entry{machine: machine, strategies: strategies}
	m.mu.Unlock()

	m.logger.Info("📈 Position opened",
		zap.String("position_id", id),
		zap.String("token", token),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("amount", amount),
		zap.Int("strategies", len(strategies)))

	if err := m.persist(ctx, func(pctx context.Context) error {
		return m.persister.AddPosition(pctx, machine.Context())
	}); err != nil {
		m.logger.Error("Failed to persist new position",
			zap.String("position_id", id), zap.Error(err))
	}
	return id, nil
}

// RestorePosition re-registers a position recovered from storage, keeping its
// original id and open time. No persistence write happens: the row already
// exists.
func (m *Manager) RestorePosition(id, token string, entryPrice, amount float64, openedAt time.Time, strategies []strategy.Config) error {
	if id == "" || token == "" {
		return fmt.Errorf("position id and token are required")
	}
	if entryPrice <= 0 || amount <= 0 {
		return fmt.Errorf("entry price and amount must be positive")
	}

	machine := NewMachine(id, token, entryPrice, amount, m.logger)
	old := machine.ref.Load()
	restored := old.ctx
	restored.OpenedAt = openedAt
	machine.ref.Store(&snapshot{state: old.state, ctx: restored})

	if !machine.TransitionWithReason(EventPositionOpened, nil, "restored from storage") {
		return fmt.Errorf("failed to restore position %s", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[id]; exists {
		return fmt.Errorf("position %s already registered", id)
	}
	m.positions[id] = &entry{machine: machine, strategies: strategies}

	m.logger.Info("Position restored",
		zap.String("position_id", id),
		zap.String("token", token),
		zap.Time("opened_at", openedAt))
	return nil
}

// GetPosition returns the machine for id, if registered.
func (m *Manager) GetPosition(id string) (*Machine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return e.machine, true
}

// ActiveCount returns the number of registered, non-closed positions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.positions {
		if e.machine.CurrentState() != StateClosed {
			n++
		}
	}
	return n
}

// UpdatePricesAtomically fans a batch of price updates out to every position
// holding the matching token. Entries run in parallel; a position removed
// mid-batch is skipped without error. Each machine commits price and PnL in
// one CAS, so readers never see mismatched pairs.
func (m *Manager) UpdatePricesAtomically(ctx context.Context, batch []PriceUpdate) []PriceResult {
	started := time.Now()
	defer func() { m.perf.record("update_prices", time.Since(started)) }()

	results := make([]PriceResult, len(batch))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i := range batch {
		g.Go(func() error {
			upd := batch[i]
			machines := m.machinesForToken(upd.Token)
			res := PriceResult{Token: upd.Token, Positions: len(machines)}
			for _, machine := range machines {
				if machine.UpdatePrice(upd.Price) {
					res.Applied++
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// EvaluateExitConditions snapshots the active positions, releases the lock,
// then evaluates each one's strategies against its own consistent context.
// A position that closes between snapshot and evaluation simply fails the
// ExitConditionMet transition and produces no request.
func (m *Manager) EvaluateExitConditions(ctx context.Context) []ExitRequest {
	started := time.Now()
	defer func() { m.perf.record("evaluate_exits", time.Since(started)) }()

	m.mu.Lock()
	active := make(map[string]*entry, len(m.positions))
	for id, e := range m.positions {
		if e.machine.CurrentState() != StateClosed {
			active[id] = e
		}
	}
	m.mu.Unlock()

	var requests []ExitRequest
	for id, e := range active {
		pc := e.machine.Context()
		snap := strategy.PositionSnapshot{
			ID:           pc.PositionID,
			Token:        pc.Token,
			EntryPrice:   pc.EntryPrice,
			Amount:       pc.Amount,
			CurrentPrice: pc.CurrentPrice,
			PnLPercent:   pc.PnLPercent,
			PnLUSD:       pc.PnLUSD,
			HighestPrice: pc.HighestPrice,
			OpenedAt:     pc.OpenedAt,
		}

		res := m.registry.EvaluateAll(ctx, snap, pc.CurrentPrice, e.strategies)
		if !res.ShouldExit {
			continue
		}

		// The CAS guard is the arbiter: a stale evaluation loses here and
		// is discarded.
		if !e.machine.TransitionWithReason(EventExitConditionMet, &ContextPatch{ExitReason: &res.Reason}, res.Reason) {
			continue
		}

		req := ExitRequest{
			PositionID:            id,
			Token:                 pc.Token,
			Reason:                res.Reason,
			TargetPrice:           res.ExpectedPrice,
			PartialExitPercentage: res.PartialExitPercentage,
			Urgency:               res.Urgency,
		}
		requests = append(requests, req)

		m.logger.Info("🎯 Exit condition met",
			zap.String("position_id", id),
			zap.String("token", pc.Token),
			zap.String("reason", res.Reason),
			zap.String("urgency", res.Urgency.String()))

		if err := m.persist(ctx, func(pctx context.Context) error {
			return m.persister.SaveExitEvent(pctx, req)
		}); err != nil {
			m.logger.Error("Failed to persist exit event",
				zap.String("position_id", id), zap.Error(err))
		}
	}
	return requests
}

// ClosePosition walks the position to Closed, recording reason on the first
// step. Returns false when the position is unknown or another writer drove it
// into a shape the ladder cannot leave within the retry budget.
func (m *Manager) ClosePosition(ctx context.Context, id, reason string) bool {
	m.mu.Lock()
	e, ok := m.positions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	patch := &ContextPatch{ExitReason: &reason}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		state := e.machine.CurrentState()
		if state == StateClosed {
			break
		}
		event, ok := closingEvent(state)
		if !ok {
			return false
		}
		if e.machine.TransitionWithReason(event, patch, reason) {
			patch = nil // reason only needs to land once, on a step that won
		}
	}

	if e.machine.CurrentState() != StateClosed {
		return false
	}

	pc := e.machine.Context()
	m.logger.Info("Position closed",
		zap.String("position_id", id),
		zap.String("reason", reason),
		zap.Float64("pnl_percent", pc.PnLPercent),
		zap.Float64("pnl_usd", pc.PnLUSD))

	if err := m.persist(ctx, func(pctx context.Context) error {
		return m.persister.ClosePosition(pctx, id, "", time.Now(), pc.PnLUSD, pc.PnLPercent)
	}); err != nil {
		m.logger.Error("Failed to persist position close",
			zap.String("position_id", id), zap.Error(err))
	}
	return true
}

// CleanupClosedPositions evicts Closed entries. Snapshots already taken by
// concurrent readers stay valid; only future lookups miss.
func (m *Manager) CleanupClosedPositions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.positions {
		if e.machine.CurrentState() == StateClosed {
			delete(m.positions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("Cleaned up closed positions", zap.Int("removed", removed))
	}
	return removed
}

// PerfSnapshot returns per-operation counters and average latencies.
func (m *Manager) PerfSnapshot() map[string]OperationStats {
	return m.perf.snapshot()
}

func (m *Manager) machinesForToken(token string) []*Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Machine
	for _, e := range m.positions {
		if e.machine.Context().Token == token && e.machine.CurrentState() != StateClosed {
			out = append(out, e.machine)
		}
	}
	return out
}

// persist runs op against the persister with exponential backoff. A nil
// persister makes this a no-op.
func (m *Manager) persist(ctx context.Context, op func(context.Context) error) error {
	if m.persister == nil {
		return nil
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(m.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("Persistence attempt failed, retrying",
				zap.Duration("next_retry", next),
				zap.Error(err))
		}),
	)
	return err
}
