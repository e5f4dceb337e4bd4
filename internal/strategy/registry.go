package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Registry maps strategy kinds to their evaluators. It is built once at
// startup from a fixed table; adding a leaf strategy means adding one entry
// here — the combinator logic never changes.
type Registry struct {
	evaluators map[Kind]Evaluator
	logger     *zap.Logger
}

// NewRegistry builds the evaluator table. provider may be nil, in which case
// data-dependent strategies degrade to their no-data behavior.
func NewRegistry(provider Provider, logger *zap.Logger) *Registry {
	logger = logger.Named("strategy")

	r := &Registry{
		evaluators: make(map[Kind]Evaluator),
		logger:     logger,
	}

	leaves := []Evaluator{
		profitEvaluator{},
		lossEvaluator{},
		timeEvaluator{},
		liquidityEvaluator{},
		developerActivityEvaluator{},
		trailingStopEvaluator{provider: provider, logger: logger},
		volatilityStopEvaluator{provider: provider, logger: logger},
		volumeBasedEvaluator{provider: provider, logger: logger},
		sentimentEvaluator{provider: provider, logger: logger},
		creatorMonitoringEvaluator{provider: provider, logger: logger},
		partialExitEvaluator{},
	}
	for _, e := range leaves {
		r.evaluators[e.Kind()] = e
	}

	// Combinators dispatch children back through the registry.
	r.evaluators[KindMultiCondition] = multiConditionEvaluator{registry: r}

	return r
}

// Evaluate dispatches one config to its evaluator. A disabled config or an
// unknown kind yields a non-exiting result with a diagnostic reason — one
// misconfigured strategy must never halt evaluation of other positions.
func (r *Registry) Evaluate(ctx context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	if cfg == nil {
		return noExit("nil strategy config")
	}
	if !cfg.IsEnabled() {
		return noExit(fmt.Sprintf("strategy %s disabled", cfg.Kind))
	}

	evaluator, ok := r.evaluators[cfg.Kind]
	if !ok {
		r.logger.Warn("No evaluator registered for strategy kind",
			zap.String("kind", string(cfg.Kind)),
			zap.String("position_id", snap.ID))
		return noExit(fmt.Sprintf("no evaluator registered for kind %q", cfg.Kind))
	}

	return evaluator.Evaluate(ctx, snap, currentPrice, cfg)
}

// EvaluateAll runs every config against the snapshot and returns the first
// exiting result by highest urgency, or the last non-exit result when none
// fire. Used by the position manager's exit scan.
func (r *Registry) EvaluateAll(ctx context.Context, snap PositionSnapshot, currentPrice float64, configs []Config) Result {
	var (
		best     Result
		bestSet  bool
		fallback = noExit("no exit strategies configured")
	)
	for i := range configs {
		res := r.Evaluate(ctx, snap, currentPrice, &configs[i])
		if !res.ShouldExit {
			fallback = res
			continue
		}
		if !bestSet || res.Urgency > best.Urgency {
			best = res
			bestSet = true
		}
	}
	if bestSet {
		return best
	}
	return fallback
}

// Kinds returns the registered strategy kinds, for diagnostics.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.evaluators))
	for k := range r.evaluators {
		kinds = append(kinds, k)
	}
	return kinds
}
