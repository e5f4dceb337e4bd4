package strategy

import (
	"context"
	"fmt"
	"strings"
)

// multiConditionEvaluator combines child strategies with AND/OR logic. It
// dispatches children through the registry so new leaf kinds compose without
// touching this code.
type multiConditionEvaluator struct {
	registry *Registry
}

func (multiConditionEvaluator) Kind() Kind { return KindMultiCondition }

type childResult struct {
	index  int
	result Result
}

func (e multiConditionEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	p := cfg.MultiCondition

	var evaluated []childResult
	for i := range p.Conditions {
		child := &p.Conditions[i]
		if !child.IsEnabled() {
			continue
		}
		evaluated = append(evaluated, childResult{
			index:  i,
			result: e.registry.Evaluate(ctx, snap, currentPrice, child),
		})
	}
	if len(evaluated) == 0 {
		return noExit("multi-condition: no enabled children")
	}

	var exiting, holding []childResult
	for _, cr := range evaluated {
		if cr.result.ShouldExit {
			exiting = append(exiting, cr)
		} else {
			holding = append(holding, cr)
		}
	}

	switch p.Operator {
	case OperatorAnd:
		if len(holding) > 0 {
			reasons := make([]string, 0, len(holding))
			for _, cr := range holding {
				reasons = append(reasons, cr.result.Reason)
			}
			return noExit("waiting on: " + strings.Join(reasons, "; "))
		}

		combined := exiting[0].result
		reasons := make([]string, 0, len(exiting))
		for _, cr := range exiting {
			reasons = append(reasons, cr.result.Reason)
			combined.Urgency = maxUrgency(combined.Urgency, cr.result.Urgency)
		}
		combined.Reason = "all conditions met: " + strings.Join(reasons, "; ")
		return combined

	case OperatorOr:
		if len(exiting) == 0 {
			return noExit("no condition met")
		}
		return pickByPriority(exiting, p.Priority).result

	default:
		// Validate() rejects this earlier; treat it as a no-op here per the
		// programmer-error taxonomy.
		return noExit(fmt.Sprintf("multi-condition: unsupported operator %q", p.Operator))
	}
}

func pickByPriority(exiting []childResult, priority string) childResult {
	if priority == PriorityFirstMatch {
		return exiting[0]
	}
	// highest_urgency and all-conditions both resolve to the most urgent child.
	best := exiting[0]
	for _, cr := range exiting[1:] {
		if cr.result.Urgency > best.result.Urgency {
			best = cr
		}
	}
	return best
}

// partialExitEvaluator walks the configured stages in declared order and
// returns the first stage whose trigger PnL has been reached, carrying that
// stage's exit percentage.
type partialExitEvaluator struct{}

func (partialExitEvaluator) Kind() Kind { return KindPartialExit }

func (partialExitEvaluator) Evaluate(_ context.Context, snap PositionSnapshot, currentPrice float64, cfg *Config) Result {
	for i, stage := range cfg.PartialExit.Stages {
		if snap.PnLPercent < stage.TriggerPercent-Epsilon {
			continue
		}

		reason := stage.Reason
		if reason == "" {
			reason = fmt.Sprintf("partial exit stage %d: pnl %.4f%% reached trigger %.2f%%",
				i+1, snap.PnLPercent, stage.TriggerPercent)
		}
		price := currentPrice
		pct := stage.ExitPercent
		return Result{
			ShouldExit:            true,
			Reason:                reason,
			Urgency:               UrgencyMedium,
			ExpectedPrice:         &price,
			PartialExitPercentage: &pct,
		}
	}
	return noExit(fmt.Sprintf("no partial-exit stage triggered at pnl %.4f%%", snap.PnLPercent))
}
