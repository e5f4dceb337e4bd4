package strategy

import (
	"context"
	"fmt"
	"math"
	"time"
)

// profitEvaluator exits once PnL reaches the configured target.
type profitEvaluator struct{}

func (profitEvaluator) Kind() Kind { return KindProfit }

func (profitEvaluator) Evaluate(_ context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	target := cfg.Profit.TargetPercent
	if snap.PnLPercent >= target-Epsilon {
		price := currentPrice
		return Result{
			ShouldExit:    true,
			Reason:        fmt.Sprintf("profit target %.2f%% reached (pnl %.4f%%)", target, snap.PnLPercent),
			Urgency:       UrgencyHigh,
			ExpectedPrice: &price,
		}
	}
	return noExit(fmt.Sprintf("pnl %.4f%% below profit target %.2f%%", snap.PnLPercent, target))
}

// lossEvaluator exits once PnL drops to the configured loss threshold.
type lossEvaluator struct{}

func (lossEvaluator) Kind() Kind { return KindLoss }

func (lossEvaluator) Evaluate(_ context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	threshold := -math.Abs(cfg.Loss.ThresholdPercent)
	if snap.PnLPercent <= threshold+Epsilon {
		price := currentPrice
		return Result{
			ShouldExit:    true,
			Reason:        fmt.Sprintf("stop loss %.2f%% hit (pnl %.4f%%)", threshold, snap.PnLPercent),
			Urgency:       UrgencyHigh,
			ExpectedPrice: &price,
		}
	}
	return noExit(fmt.Sprintf("pnl %.4f%% above stop loss %.2f%%", snap.PnLPercent, threshold))
}

// timeEvaluator exits once the holding duration reaches the configured limit.
type timeEvaluator struct {
	now func() time.Time // injectable clock for tests
}

func (timeEvaluator) Kind() Kind { return KindTime }

func (e timeEvaluator) Evaluate(_ context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	held := now().Sub(snap.OpenedAt)
	limit := time.Duration(cfg.Time.MaxHoldMinutes) * time.Minute
	if held >= limit {
		price := currentPrice
		return Result{
			ShouldExit:    true,
			Reason:        fmt.Sprintf("max hold time %dm reached (held %s)", cfg.Time.MaxHoldMinutes, held.Round(time.Second)),
			Urgency:       UrgencyMedium,
			ExpectedPrice: &price,
		}
	}
	return noExit(fmt.Sprintf("held %s of %dm limit", held.Round(time.Second), cfg.Time.MaxHoldMinutes))
}
