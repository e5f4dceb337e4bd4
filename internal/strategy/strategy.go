// Package strategy implements the exit-strategy evaluation framework: pure
// functions mapping a position snapshot and a current price to an exit
// decision. Leaf strategies cover profit/loss/time/trailing/volatility rules;
// combinators compose them with AND/OR logic and staged partial exits.
package strategy

import (
	"context"
	"time"
)

// Epsilon is the tolerance, in percentage points, applied to threshold
// comparisons so floating-point noise at the exact boundary does not flap
// between exit and no-exit.
const Epsilon = 0.001

// Urgency ranks exit decisions when several strategies fire at once.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

func (u Urgency) String() string {
	switch u {
	case UrgencyHigh:
		return "high"
	case UrgencyMedium:
		return "medium"
	default:
		return "low"
	}
}

// Result is the outcome of one evaluation. It is recomputed on every call and
// never stored as system state.
type Result struct {
	ShouldExit            bool
	Reason                string
	Urgency               Urgency
	ExpectedPrice         *float64 // price the exit expects to fill near, if known
	PartialExitPercentage *float64 // 0-100, set only by staged partial exits
}

// PositionSnapshot is the read-only view of a position an evaluator works
// with. It is copied out of the position's atomic context, so every field is
// mutually consistent.
type PositionSnapshot struct {
	ID           string
	Token        string
	EntryPrice   float64
	Amount       float64
	CurrentPrice float64
	PnLPercent   float64
	PnLUSD       float64
	HighestPrice float64
	OpenedAt     time.Time
}

// Evaluator is one strategy kind's decision function. Implementations must be
// pure with respect to position state: all inputs arrive via the snapshot,
// the price and the config; history comes from the Provider capability.
type Evaluator interface {
	Kind() Kind
	Evaluate(ctx context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result
}

// PricePoint is one entry of a token's price history.
type PricePoint struct {
	Price     float64
	Timestamp time.Time
	Source    string
}

// VolumePoint is one entry of a token's volume history.
type VolumePoint struct {
	Volume    float64
	Timestamp time.Time
}

// SentimentPoint is one entry of a token's sentiment series.
type SentimentPoint struct {
	Score     float64 // -1 (bearish) .. +1 (bullish)
	Timestamp time.Time
	Source    string
}

// CreatorEvent records on-chain activity by a token's creator wallet.
type CreatorEvent struct {
	Kind      string // e.g. "sell", "mint", "transfer"
	Timestamp time.Time
	Details   string
}

// Provider supplies the time-series data the data-dependent strategies
// consume. The evaluator depends on this capability but does not own it.
type Provider interface {
	GetPriceHistory(ctx context.Context, token string, minutes int) ([]PricePoint, error)
	GetVolumeHistory(ctx context.Context, token string, minutes int) ([]VolumePoint, error)
	GetSentimentHistory(ctx context.Context, token string, minutes int) ([]SentimentPoint, error)
	GetCreatorActivity(ctx context.Context, token string, minutes int) ([]CreatorEvent, error)

	// High-water marks persist a trailing stop's running maximum across
	// restarts, keyed by position id.
	GetHighWaterMark(ctx context.Context, positionID string) (float64, bool, error)
	SetHighWaterMark(ctx context.Context, positionID string, price float64) error
}

func noExit(reason string) Result {
	return Result{ShouldExit: false, Reason: reason, Urgency: UrgencyLow}
}

func maxUrgency(a, b Urgency) Urgency {
	if a > b {
		return a
	}
	return b
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
