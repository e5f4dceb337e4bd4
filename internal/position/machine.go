package position

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/trading-core/internal/atomicfloat"
)

// maxCASRetries bounds every read-modify-CAS loop in this file. Exhausting it
// means pathological contention; the operation reports failure instead of
// spinning forever.
const maxCASRetries = 64

// Context is one immutable snapshot of a position's mutable data. It is
// replaced as a whole on every commit, never mutated field by field, so a
// reader always sees a price paired with the PnL derived from that same price.
type Context struct {
	PositionID      string
	Token           string
	EntryPrice      float64
	Amount          float64
	CurrentPrice    float64
	PnLPercent      float64
	PnLUSD          float64
	HighestPrice    float64
	LastPriceUpdate time.Time
	OpenedAt        time.Time
	ExitReason      string
}

// ContextPatch carries the fields a caller wants to change. Nil fields are
// left at their current snapshot values during the merge.
type ContextPatch struct {
	CurrentPrice *float64
	ExitReason   *string
}

func (p *ContextPatch) apply(ctx Context) Context {
	if p == nil {
		return ctx
	}
	if p.CurrentPrice != nil {
		ctx.CurrentPrice = *p.CurrentPrice
	}
	if p.ExitReason != nil {
		ctx.ExitReason = *p.ExitReason
	}
	return ctx
}

// TransitionRecord is one entry of the audit log.
type TransitionRecord struct {
	From      State
	To        State
	Event     Event
	Reason    string
	Timestamp time.Time
}

// snapshot binds a state and its context into one atomically replaceable unit.
type snapshot struct {
	state State
	ctx   Context
}

// Machine is the per-position state machine. The hot path (UpdatePrice and
// every read) is lock-free; only the transition log append takes a short
// mutex, after the CAS has already decided the winner.
type Machine struct {
	ref    atomic.Pointer[snapshot]
	logger *zap.Logger

	logMu sync.Mutex
	log   []TransitionRecord
}

// NewMachine creates a machine in the Uninitialized state.
func NewMachine(positionID, token string, entryPrice, amount float64, logger *zap.Logger) *Machine {
	m := &Machine{logger: logger.Named("position")}
	now := time.Now()
	m.ref.Store(&snapshot{
		state: StateUninitialized,
		ctx: Context{
			PositionID:   positionID,
			Token:        token,
			EntryPrice:   entryPrice,
			Amount:       amount,
			CurrentPrice: entryPrice,
			HighestPrice: entryPrice,
			OpenedAt:     now,
		},
	})
	return m
}

// Transition applies event with an optional context patch. It returns false
// when the event is illegal from the current state or when another writer wins
// every CAS attempt within the retry budget. Illegal transitions are the
// normal outcome of races, not errors.
func (m *Machine) Transition(event Event, patch *ContextPatch) bool {
	return m.transition(event, patch, "")
}

// TransitionWithReason is Transition with an audit-log reason attached.
func (m *Machine) TransitionWithReason(event Event, patch *ContextPatch, reason string) bool {
	return m.transition(event, patch, reason)
}

func (m *Machine) transition(event Event, patch *ContextPatch, reason string) bool {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		old := m.ref.Load()

		target, ok := nextState(old.state, event)
		if !ok {
			return false
		}

		next := &snapshot{state: target, ctx: patch.apply(old.ctx)}
		if !m.ref.CompareAndSwap(old, next) {
			continue
		}

		m.appendLog(TransitionRecord{
			From:      old.state,
			To:        target,
			Event:     event,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		return true
	}

	m.logger.Warn("Transition retry budget exhausted",
		zap.String("position_id", m.ref.Load().ctx.PositionID),
		zap.String("event", event.String()))
	return false
}

// UpdatePrice commits price, both PnL fields, the running high-water mark and
// the update timestamp in a single CAS. Non-finite prices are rejected and
// logged; prices are only accepted while the position is still live.
func (m *Machine) UpdatePrice(price float64) bool {
	if !atomicfloat.IsFinite(price) || price < 0 {
		m.logger.Warn("Rejecting non-finite price update",
			zap.String("position_id", m.ref.Load().ctx.PositionID),
			zap.Float64("price", price))
		return false
	}

	now := time.Now()
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		old := m.ref.Load()
		if old.state == StateClosed {
			return false
		}

		ctx := old.ctx
		ctx.CurrentPrice = price
		if ctx.EntryPrice > 0 {
			ctx.PnLPercent = (price - ctx.EntryPrice) / ctx.EntryPrice * 100
		}
		ctx.PnLUSD = (price - ctx.EntryPrice) * ctx.Amount
		if price > ctx.HighestPrice {
			ctx.HighestPrice = price
		}
		ctx.LastPriceUpdate = now

		if m.ref.CompareAndSwap(old, &snapshot{state: old.state, ctx: ctx}) {
			return true
		}
	}

	m.logger.Warn("Price update retry budget exhausted",
		zap.String("position_id", m.ref.Load().ctx.PositionID))
	return false
}

// UpdateContext merges patch into a freshly read snapshot under a CAS loop.
// Concurrent patches to disjoint fields both land; same-field races resolve
// last-committed-wins by CAS order.
func (m *Machine) UpdateContext(patch ContextPatch) bool {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		old := m.ref.Load()
		if old.state == StateClosed {
			return false
		}
		next := &snapshot{state: old.state, ctx: patch.apply(old.ctx)}
		if m.ref.CompareAndSwap(old, next) {
			return true
		}
	}
	return false
}

// Context returns the current snapshot. Never blocks.
func (m *Machine) Context() Context {
	return m.ref.Load().ctx
}

// CurrentState returns the current lifecycle state. Never blocks.
func (m *Machine) CurrentState() State {
	return m.ref.Load().state
}

// PnL returns the percentage and absolute PnL from one consistent snapshot.
func (m *Machine) PnL() (percent, usd float64) {
	ctx := m.ref.Load().ctx
	return ctx.PnLPercent, ctx.PnLUSD
}

// TransitionLog returns a copy of the audit log in commit order.
func (m *Machine) TransitionLog() []TransitionRecord {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	out := make([]TransitionRecord, len(m.log))
	copy(out, m.log)
	return out
}

func (m *Machine) appendLog(rec TransitionRecord) {
	m.logMu.Lock()
	m.log = append(m.log, rec)
	m.logMu.Unlock()
}
