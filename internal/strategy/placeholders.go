package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// The strategies below are deliberate placeholders: they fetch and validate
// their input series so the configuration and data plumbing is exercised
// end-to-end, but they never request an exit. The thresholds their parameter
// blocks carry are reserved for a future release.

type volumeBasedEvaluator struct {
	provider Provider
	logger   *zap.Logger
}

func (volumeBasedEvaluator) Kind() Kind { return KindVolumeBased }

func (e volumeBasedEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, _ float64, cfg *Config) Result {
	window := cfg.VolumeBased.WindowMinutes
	if window <= 0 {
		window = 30
	}
	if e.provider != nil {
		if _, err := e.provider.GetVolumeHistory(ctx, snap.Token, window); err != nil && e.logger != nil {
			e.logger.Debug("Volume history unavailable", zap.String("token", snap.Token), zap.Error(err))
		}
	}
	return noExit("volume-based exit not active")
}

type sentimentEvaluator struct {
	provider Provider
	logger   *zap.Logger
}

func (sentimentEvaluator) Kind() Kind { return KindSentimentAnalysis }

func (e sentimentEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, _ float64, cfg *Config) Result {
	window := cfg.Sentiment.WindowMinutes
	if window <= 0 {
		window = 60
	}
	if e.provider != nil {
		if _, err := e.provider.GetSentimentHistory(ctx, snap.Token, window); err != nil && e.logger != nil {
			e.logger.Debug("Sentiment history unavailable", zap.String("token", snap.Token), zap.Error(err))
		}
	}
	return noExit("sentiment-analysis exit not active")
}

type creatorMonitoringEvaluator struct {
	provider Provider
	logger   *zap.Logger
}

func (creatorMonitoringEvaluator) Kind() Kind { return KindCreatorMonitoring }

func (e creatorMonitoringEvaluator) Evaluate(ctx context.Context, snap PositionSnapshot, _ float64, cfg *Config) Result {
	window := cfg.CreatorMonitoring.WindowMinutes
	if window <= 0 {
		window = 60
	}
	if e.provider != nil {
		if _, err := e.provider.GetCreatorActivity(ctx, snap.Token, window); err != nil && e.logger != nil {
			e.logger.Debug("Creator activity unavailable", zap.String("token", snap.Token), zap.Error(err))
		}
	}
	return noExit("creator-monitoring exit not active")
}

type liquidityEvaluator struct{}

func (liquidityEvaluator) Kind() Kind { return KindLiquidity }

func (liquidityEvaluator) Evaluate(_ context.Context, _ PositionSnapshot, _ float64, cfg *Config) Result {
	return noExit(fmt.Sprintf("liquidity exit not active (min %.2f USD configured)",
		cfg.Liquidity.MinLiquidityUSD))
}

type developerActivityEvaluator struct{}

func (developerActivityEvaluator) Kind() Kind { return KindDeveloperActivity }

func (developerActivityEvaluator) Evaluate(_ context.Context, _ PositionSnapshot, _ float64, _ *Config) Result {
	return noExit("developer-activity exit not active")
}
