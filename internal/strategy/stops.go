package strategy

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// trailingStopEvaluator arms once the position gains ActivationPercent, then
// exits when price falls TrailPercent below the high-water mark. The mark
// combines the snapshot's running highest price with the provider-persisted
// value, so it survives process restarts.
type trailingStopEvaluator struct {
	provider Provider
	logger   *zap.Logger
}

func (trailingStopEvaluator) Kind() Kind { return KindTrailingStop }

func (e trailingStopEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	p := cfg.TrailingStop
	if snap.EntryPrice <= 0 {
		return noExit("trailing stop: entry price not set")
	}

	highest := math.Max(snap.HighestPrice, currentPrice)
	if e.provider != nil {
		persisted, ok, err := e.provider.GetHighWaterMark(ctx, snap.ID)
		if err == nil && ok && persisted > highest {
			highest = persisted
		}
		// Persist whenever the mark advances past the stored value. The
		// snapshot's own running maximum already includes the current price,
		// so comparing against the snapshot would never fire; the stored
		// value is the reference that must keep up.
		if err == nil && (!ok || highest > persisted) {
			if err := e.provider.SetHighWaterMark(ctx, snap.ID, highest); err != nil && e.logger != nil {
				e.logger.Debug("Failed to persist high-water mark",
					zap.String("position_id", snap.ID), zap.Error(err))
			}
		}
	}

	// The stop arms when the high-water mark has ever gained enough over
	// entry, not just the current price: a spike through activation arms it
	// permanently.
	highestGainPercent := (highest - snap.EntryPrice) / snap.EntryPrice * 100
	if highestGainPercent < p.ActivationPercent-Epsilon {
		return noExit(fmt.Sprintf("trailing stop not armed: peak gain %.4f%% below activation %.2f%%",
			highestGainPercent, p.ActivationPercent))
	}

	stop := highest * (1 - p.TrailPercent/100)
	if p.InitialStopPercent > 0 {
		if floor := snap.EntryPrice * (1 - p.InitialStopPercent/100); floor > stop {
			stop = floor
		}
	}

	if currentPrice <= stop {
		return Result{
			ShouldExit: true,
			Reason: fmt.Sprintf("trailing stop hit: price %.8f fell to stop %.8f (peak %.8f)",
				currentPrice, stop, highest),
			Urgency:       UrgencyHigh,
			ExpectedPrice: &stop,
		}
	}
	return noExit(fmt.Sprintf("price %.8f above trailing stop %.8f", currentPrice, stop))
}

// volatilityStopEvaluator scales the stop distance with recent realized
// volatility: calm tokens get a tight stop, choppy tokens get room to
// breathe. The stop is anchored at the high-water mark like a trailing stop;
// the distance is clamp(base + volatility*multiplier, min, max) percent.
type volatilityStopEvaluator struct {
	provider Provider
	logger   *zap.Logger
}

func (volatilityStopEvaluator) Kind() Kind { return KindVolatilityStop }

func (e volatilityStopEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	p := cfg.VolatilityStop

	window := p.WindowMinutes
	if window <= 0 {
		window = 15
	}

	volatility := 0.0
	if e.provider != nil {
		history, err := e.provider.GetPriceHistory(ctx, snap.Token, window)
		if err != nil {
			if e.logger != nil {
				e.logger.Debug("Volatility stop: price history unavailable",
					zap.String("token", snap.Token), zap.Error(err))
			}
		} else {
			volatility = realizedVolatilityPercent(history)
		}
	}

	stopPercent := clamp(p.BaseStopPercent+volatility*p.Multiplier, p.MinStopPercent, p.MaxStopPercent)

	anchor := math.Max(snap.HighestPrice, currentPrice)
	stop := anchor * (1 - stopPercent/100)

	if currentPrice <= stop {
		return Result{
			ShouldExit: true,
			Reason: fmt.Sprintf("volatility stop hit: price %.8f fell to stop %.8f (distance %.2f%%, vol %.2f%%)",
				currentPrice, stop, stopPercent, volatility),
			Urgency:       UrgencyHigh,
			ExpectedPrice: &stop,
		}
	}
	return noExit(fmt.Sprintf("price %.8f above volatility stop %.8f (distance %.2f%%)",
		currentPrice, stop, stopPercent))
}

// realizedVolatilityPercent is the standard deviation of tick-to-tick
// percentage returns over the series.
func realizedVolatilityPercent(history []PricePoint) float64 {
	if len(history) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Price
		if prev <= 0 {
			continue
		}
		returns = append(returns, (history[i].Price-prev)/prev*100)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}
