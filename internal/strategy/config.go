package strategy

import "fmt"

// Kind identifies a strategy in the tagged-union Config.
type Kind string

const (
	KindProfit            Kind = "profit"
	KindLoss              Kind = "loss"
	KindTime              Kind = "time"
	KindLiquidity         Kind = "liquidity"
	KindDeveloperActivity Kind = "developer_activity"
	KindTrailingStop      Kind = "trailing_stop"
	KindVolatilityStop    Kind = "volatility_stop"
	KindVolumeBased       Kind = "volume_based"
	KindSentimentAnalysis Kind = "sentiment_analysis"
	KindCreatorMonitoring Kind = "creator_monitoring"
	KindPartialExit       Kind = "partial_exit"
	KindMultiCondition    Kind = "multi_condition"
)

// Config is a tagged union over strategy kinds: Kind selects which parameter
// block applies. Multi-condition and partial-exit configs nest recursively.
type Config struct {
	Kind    Kind  `yaml:"kind"`
	Enabled *bool `yaml:"enabled,omitempty"` // nil means enabled

	Profit            *ProfitParams            `yaml:"profit,omitempty"`
	Loss              *LossParams              `yaml:"loss,omitempty"`
	Time              *TimeParams              `yaml:"time,omitempty"`
	Liquidity         *LiquidityParams         `yaml:"liquidity,omitempty"`
	DeveloperActivity *DeveloperActivityParams `yaml:"developer_activity,omitempty"`
	TrailingStop      *TrailingStopParams      `yaml:"trailing_stop,omitempty"`
	VolatilityStop    *VolatilityStopParams    `yaml:"volatility_stop,omitempty"`
	VolumeBased       *VolumeBasedParams       `yaml:"volume_based,omitempty"`
	Sentiment         *SentimentParams         `yaml:"sentiment,omitempty"`
	CreatorMonitoring *CreatorMonitoringParams `yaml:"creator_monitoring,omitempty"`
	PartialExit       *PartialExitParams       `yaml:"partial_exit,omitempty"`
	MultiCondition    *MultiConditionParams    `yaml:"multi_condition,omitempty"`
}

// IsEnabled reports whether the strategy participates in evaluation.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ProfitParams configures the take-profit strategy.
type ProfitParams struct {
	TargetPercent float64 `yaml:"target_percent"`
}

// LossParams configures the stop-loss strategy. ThresholdPercent may be given
// as either 15 or -15; both mean "exit at -15% PnL".
type LossParams struct {
	ThresholdPercent float64 `yaml:"threshold_percent"`
}

// TimeParams configures the maximum-hold-time strategy.
type TimeParams struct {
	MaxHoldMinutes int `yaml:"max_hold_minutes"`
}

// LiquidityParams configures the pool-liquidity strategy (placeholder
// semantics, see liquidityEvaluator).
type LiquidityParams struct {
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`
}

// DeveloperActivityParams configures the developer-activity strategy
// (placeholder semantics).
type DeveloperActivityParams struct {
	WindowMinutes int `yaml:"window_minutes"`
}

// TrailingStopParams configures the trailing stop.
type TrailingStopParams struct {
	ActivationPercent  float64 `yaml:"activation_percent"`   // gain that arms the stop
	TrailPercent       float64 `yaml:"trail_percent"`        // distance below the high-water mark
	InitialStopPercent float64 `yaml:"initial_stop_percent"` // floor below entry, optional
}

// VolatilityStopParams configures the volatility-scaled stop.
type VolatilityStopParams struct {
	BaseStopPercent float64 `yaml:"base_stop_percent"`
	Multiplier      float64 `yaml:"multiplier"`
	MinStopPercent  float64 `yaml:"min_stop_percent"`
	MaxStopPercent  float64 `yaml:"max_stop_percent"`
	WindowMinutes   int     `yaml:"window_minutes"`
}

// VolumeBasedParams configures the volume-collapse strategy (placeholder
// semantics).
type VolumeBasedParams struct {
	WindowMinutes int     `yaml:"window_minutes"`
	DropPercent   float64 `yaml:"drop_percent"`
}

// SentimentParams configures the sentiment strategy (placeholder semantics).
type SentimentParams struct {
	WindowMinutes int     `yaml:"window_minutes"`
	Threshold     float64 `yaml:"threshold"`
}

// CreatorMonitoringParams configures the creator-wallet strategy (placeholder
// semantics).
type CreatorMonitoringParams struct {
	WindowMinutes int `yaml:"window_minutes"`
}

// PartialExitStage is one rung of a staged exit ladder.
type PartialExitStage struct {
	TriggerPercent float64 `yaml:"trigger_percent"` // PnL percent that arms this stage
	ExitPercent    float64 `yaml:"exit_percent"`    // share of the position to sell, 0-100
	Reason         string  `yaml:"reason,omitempty"`
}

// PartialExitParams configures staged partial exits. Stages are evaluated in
// declared order; the first triggering stage wins.
type PartialExitParams struct {
	Stages []PartialExitStage `yaml:"stages"`
}

// Combine modes for multi-condition strategies.
const (
	OperatorAnd = "and"
	OperatorOr  = "or"
)

// Tie-break priorities for OR combinations with several exiting children.
const (
	PriorityHighestUrgency = "highest_urgency"
	PriorityFirstMatch     = "first_match"
	PriorityAllConditions  = "all" // evaluate everything, default to highest urgency
)

// MultiConditionParams combines child strategies with AND/OR logic.
type MultiConditionParams struct {
	Operator   string   `yaml:"operator"`           // "and" or "or"
	Priority   string   `yaml:"priority,omitempty"` // OR tie-break, defaults to highest_urgency
	Conditions []Config `yaml:"conditions"`
}

// Validate checks that the parameter block matching Kind is present and
// internally consistent. Child configs are validated recursively.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindProfit:
		if c.Profit == nil {
			return missingParams(c.Kind)
		}
		if c.Profit.TargetPercent <= 0 {
			return fmt.Errorf("profit: target_percent must be positive, got %v", c.Profit.TargetPercent)
		}
	case KindLoss:
		if c.Loss == nil {
			return missingParams(c.Kind)
		}
		if c.Loss.ThresholdPercent == 0 {
			return fmt.Errorf("loss: threshold_percent must be non-zero")
		}
	case KindTime:
		if c.Time == nil {
			return missingParams(c.Kind)
		}
		if c.Time.MaxHoldMinutes <= 0 {
			return fmt.Errorf("time: max_hold_minutes must be positive, got %d", c.Time.MaxHoldMinutes)
		}
	case KindLiquidity:
		if c.Liquidity == nil {
			return missingParams(c.Kind)
		}
	case KindDeveloperActivity:
		if c.DeveloperActivity == nil {
			return missingParams(c.Kind)
		}
	case KindTrailingStop:
		if c.TrailingStop == nil {
			return missingParams(c.Kind)
		}
		p := c.TrailingStop
		if p.TrailPercent <= 0 || p.TrailPercent >= 100 {
			return fmt.Errorf("trailing_stop: trail_percent must be in (0,100), got %v", p.TrailPercent)
		}
		if p.ActivationPercent < 0 {
			return fmt.Errorf("trailing_stop: activation_percent must not be negative")
		}
	case KindVolatilityStop:
		if c.VolatilityStop == nil {
			return missingParams(c.Kind)
		}
		p := c.VolatilityStop
		if p.MinStopPercent > p.MaxStopPercent {
			return fmt.Errorf("volatility_stop: min_stop_percent %v exceeds max_stop_percent %v",
				p.MinStopPercent, p.MaxStopPercent)
		}
	case KindVolumeBased:
		if c.VolumeBased == nil {
			return missingParams(c.Kind)
		}
	case KindSentimentAnalysis:
		if c.Sentiment == nil {
			return missingParams(c.Kind)
		}
	case KindCreatorMonitoring:
		if c.CreatorMonitoring == nil {
			return missingParams(c.Kind)
		}
	case KindPartialExit:
		if c.PartialExit == nil || len(c.PartialExit.Stages) == 0 {
			return fmt.Errorf("partial_exit: at least one stage is required")
		}
		for i, stage := range c.PartialExit.Stages {
			if stage.ExitPercent <= 0 || stage.ExitPercent > 100 {
				return fmt.Errorf("partial_exit: stage %d exit_percent must be in (0,100], got %v",
					i, stage.ExitPercent)
			}
		}
	case KindMultiCondition:
		if c.MultiCondition == nil || len(c.MultiCondition.Conditions) == 0 {
			return fmt.Errorf("multi_condition: at least one child condition is required")
		}
		op := c.MultiCondition.Operator
		if op != OperatorAnd && op != OperatorOr {
			return fmt.Errorf("multi_condition: operator must be %q or %q, got %q",
				OperatorAnd, OperatorOr, op)
		}
		for i := range c.MultiCondition.Conditions {
			if err := c.MultiCondition.Conditions[i].Validate(); err != nil {
				return fmt.Errorf("multi_condition: child %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown strategy kind %q", c.Kind)
	}
	return nil
}

func missingParams(kind Kind) error {
	return fmt.Errorf("%s: parameter block missing", kind)
}
