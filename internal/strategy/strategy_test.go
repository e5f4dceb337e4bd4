package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider is an in-memory Provider for evaluator tests.
type fakeProvider struct {
	mu         sync.Mutex
	prices     map[string][]PricePoint
	volumes    map[string][]VolumePoint
	highMarks  map[string]float64
	markWrites int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		prices:    make(map[string][]PricePoint),
		volumes:   make(map[string][]VolumePoint),
		highMarks: make(map[string]float64),
	}
}

func (p *fakeProvider) GetPriceHistory(_ context.Context, token string, _ int) ([]PricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prices[token], nil
}

func (p *fakeProvider) GetVolumeHistory(_ context.Context, token string, _ int) ([]VolumePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volumes[token], nil
}

func (p *fakeProvider) GetSentimentHistory(context.Context, string, int) ([]SentimentPoint, error) {
	return nil, nil
}

func (p *fakeProvider) GetCreatorActivity(context.Context, string, int) ([]CreatorEvent, error) {
	return nil, nil
}

func (p *fakeProvider) GetHighWaterMark(_ context.Context, positionID string) (float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark, ok := p.highMarks[positionID]
	return mark, ok, nil
}

func (p *fakeProvider) SetHighWaterMark(_ context.Context, positionID string, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highMarks[positionID] = price
	p.markWrites++
	return nil
}

func snapshot(entry, current, highest float64) PositionSnapshot {
	pnl := 0.0
	if entry > 0 {
		pnl = (current - entry) / entry * 100
	}
	return PositionSnapshot{
		ID:           "pos-1",
		Token:        "mint",
		EntryPrice:   entry,
		Amount:       1000,
		CurrentPrice: current,
		PnLPercent:   pnl,
		PnLUSD:       (current - entry) * 1000,
		HighestPrice: highest,
		OpenedAt:     time.Now().Add(-5 * time.Minute),
	}
}

func profitConfig(target float64) *Config {
	return &Config{Kind: KindProfit, Profit: &ProfitParams{TargetPercent: target}}
}

func lossConfig(threshold float64) *Config {
	return &Config{Kind: KindLoss, Loss: &LossParams{ThresholdPercent: threshold}}
}

func newTestRegistry(provider Provider) *Registry {
	return NewRegistry(provider, zap.NewNop())
}

func TestProfitStrategyScenario(t *testing.T) {
	// Entry 100, amount 1000, price moves to 160; target 50% must exit at
	// the current price with high urgency.
	r := newTestRegistry(nil)
	snap := snapshot(100, 160, 160)

	res := r.Evaluate(context.Background(), snap, 160, profitConfig(50))
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyHigh, res.Urgency)
	require.NotNil(t, res.ExpectedPrice)
	assert.Equal(t, 160.0, *res.ExpectedPrice)
}

func TestProfitEpsilonBoundary(t *testing.T) {
	r := newTestRegistry(nil)
	cfg := profitConfig(10)

	// 9.9995% is within epsilon of the 10% target: exit.
	snap := snapshot(100, 100, 100)
	snap.PnLPercent = 9.9995
	assert.True(t, r.Evaluate(context.Background(), snap, 109.9995, cfg).ShouldExit)

	// 9.990% is not: hold.
	snap.PnLPercent = 9.990
	assert.False(t, r.Evaluate(context.Background(), snap, 109.990, cfg).ShouldExit)
}

func TestLossStrategy(t *testing.T) {
	r := newTestRegistry(nil)

	snap := snapshot(100, 84, 100)
	res := r.Evaluate(context.Background(), snap, 84, lossConfig(15))
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyHigh, res.Urgency)

	// The threshold sign is normalized: -15 behaves like 15.
	res = r.Evaluate(context.Background(), snap, 84, lossConfig(-15))
	assert.True(t, res.ShouldExit)

	snap = snapshot(100, 90, 100)
	assert.False(t, r.Evaluate(context.Background(), snap, 90, lossConfig(15)).ShouldExit)
}

func TestTimeStrategy(t *testing.T) {
	now := time.Now()
	e := timeEvaluator{now: func() time.Time { return now }}

	cfg := &Config{Kind: KindTime, Time: &TimeParams{MaxHoldMinutes: 30}}

	snap := snapshot(100, 100, 100)
	snap.OpenedAt = now.Add(-29 * time.Minute)
	assert.False(t, e.Evaluate(context.Background(), snap, 100, cfg).ShouldExit)

	snap.OpenedAt = now.Add(-31 * time.Minute)
	res := e.Evaluate(context.Background(), snap, 100, cfg)
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyMedium, res.Urgency)
}

func TestTrailingStopScenario(t *testing.T) {
	// Activation 10%, trail 10%, entry 100. Price walks 105 -> 130 -> 118:
	// after 130 the stop sits at 117; 118 holds, 116 exits near 117.
	provider := newFakeProvider()
	r := newTestRegistry(provider)
	cfg := &Config{Kind: KindTrailingStop, TrailingStop: &TrailingStopParams{
		ActivationPercent: 10,
		TrailPercent:      10,
	}}
	ctx := context.Background()

	// 105: below activation, not armed.
	res := r.Evaluate(ctx, snapshot(100, 105, 105), 105, cfg)
	assert.False(t, res.ShouldExit)

	// 130: armed, stop = 117, price well above it.
	res = r.Evaluate(ctx, snapshot(100, 130, 130), 130, cfg)
	assert.False(t, res.ShouldExit)

	// 118: stop remembered via the 130 high-water mark, still above.
	res = r.Evaluate(ctx, snapshot(100, 118, 130), 118, cfg)
	assert.False(t, res.ShouldExit)

	// 116: fell through the stop, exit near 117.
	res = r.Evaluate(ctx, snapshot(100, 116, 130), 116, cfg)
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyHigh, res.Urgency)
	require.NotNil(t, res.ExpectedPrice)
	assert.InDelta(t, 117.0, *res.ExpectedPrice, 1e-9)
}

func TestTrailingStopPersistsAdvancingMark(t *testing.T) {
	// The exit scan evaluates at the snapshot's own current price, and the
	// machine keeps HighestPrice >= CurrentPrice, so the snapshot's running
	// maximum never trails the evaluation price. The provider must still
	// receive every advance of the mark, or a restart widens the stop.
	provider := newFakeProvider()
	r := newTestRegistry(provider)
	cfg := &Config{Kind: KindTrailingStop, TrailingStop: &TrailingStopParams{
		ActivationPercent: 10,
		TrailPercent:      10,
	}}
	ctx := context.Background()

	r.Evaluate(ctx, snapshot(100, 105, 105), 105, cfg)
	r.Evaluate(ctx, snapshot(100, 130, 130), 130, cfg)
	r.Evaluate(ctx, snapshot(100, 118, 130), 118, cfg)

	require.Equal(t, 130.0, provider.highMarks["pos-1"], "peak must reach the provider")
	assert.Equal(t, 2, provider.markWrites, "only advances are written, not every evaluation")

	// Restart: the rebuilt machine only knows the entry price, so the
	// snapshot's maximum collapses to the current price. The persisted mark
	// keeps the stop at 117 and 116 exits.
	res := r.Evaluate(ctx, snapshot(100, 116, 116), 116, cfg)
	require.True(t, res.ShouldExit)
	require.NotNil(t, res.ExpectedPrice)
	assert.InDelta(t, 117.0, *res.ExpectedPrice, 1e-9)
}

func TestTrailingStopPersistedHighWaterMark(t *testing.T) {
	provider := newFakeProvider()
	provider.highMarks["pos-1"] = 130 // survives a restart

	r := newTestRegistry(provider)
	cfg := &Config{Kind: KindTrailingStop, TrailingStop: &TrailingStopParams{
		ActivationPercent: 10,
		TrailPercent:      10,
	}}

	// The snapshot only remembers 118, but the persisted 130 mark keeps the
	// stop at 117.
	res := r.Evaluate(context.Background(), snapshot(100, 116, 118), 116, cfg)
	require.True(t, res.ShouldExit)
	assert.InDelta(t, 117.0, *res.ExpectedPrice, 1e-9)
}

func TestTrailingStopInitialFloor(t *testing.T) {
	r := newTestRegistry(nil)
	cfg := &Config{Kind: KindTrailingStop, TrailingStop: &TrailingStopParams{
		ActivationPercent:  5,
		TrailPercent:       40,
		InitialStopPercent: 10,
	}}

	// Trail would allow 110*(1-0.40)=66 but the entry floor holds at 90.
	res := r.Evaluate(context.Background(), snapshot(100, 89, 110), 89, cfg)
	require.True(t, res.ShouldExit)
	assert.InDelta(t, 90.0, *res.ExpectedPrice, 1e-9)
}

func TestVolatilityStopScalesWithHistory(t *testing.T) {
	provider := newFakeProvider()
	base := time.Now()
	// A jagged series: sizable realized volatility.
	for i, price := range []float64{100, 110, 95, 112, 90, 115} {
		provider.prices["mint"] = append(provider.prices["mint"], PricePoint{
			Price: price, Timestamp: base.Add(time.Duration(i) * time.Minute), Source: "test",
		})
	}

	r := newTestRegistry(provider)
	cfg := &Config{Kind: KindVolatilityStop, VolatilityStop: &VolatilityStopParams{
		BaseStopPercent: 5,
		Multiplier:      0.5,
		MinStopPercent:  5,
		MaxStopPercent:  20,
		WindowMinutes:   15,
	}}

	// Highest 120, distance clamped at most 20% -> stop >= 96. Price 95 exits.
	res := r.Evaluate(context.Background(), snapshot(100, 95, 120), 95, cfg)
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyHigh, res.Urgency)

	// Price 119 just below the peak stays in.
	res = r.Evaluate(context.Background(), snapshot(100, 119, 120), 119, cfg)
	assert.False(t, res.ShouldExit)
}

func TestPlaceholderStrategiesNeverExit(t *testing.T) {
	provider := newFakeProvider()
	r := newTestRegistry(provider)
	snap := snapshot(100, 10, 100) // deeply underwater; placeholders still hold

	configs := []*Config{
		{Kind: KindVolumeBased, VolumeBased: &VolumeBasedParams{WindowMinutes: 30, DropPercent: 50}},
		{Kind: KindSentimentAnalysis, Sentiment: &SentimentParams{WindowMinutes: 60, Threshold: -0.5}},
		{Kind: KindCreatorMonitoring, CreatorMonitoring: &CreatorMonitoringParams{WindowMinutes: 60}},
		{Kind: KindLiquidity, Liquidity: &LiquidityParams{MinLiquidityUSD: 10000}},
		{Kind: KindDeveloperActivity, DeveloperActivity: &DeveloperActivityParams{WindowMinutes: 60}},
	}
	for _, cfg := range configs {
		res := r.Evaluate(context.Background(), snap, 10, cfg)
		assert.False(t, res.ShouldExit, "kind %s must be a placeholder", cfg.Kind)
		assert.NotEmpty(t, res.Reason)
	}
}

func TestUnknownKindIsNoOp(t *testing.T) {
	r := newTestRegistry(nil)
	res := r.Evaluate(context.Background(), snapshot(100, 200, 200), 200, &Config{Kind: "martingale"})
	assert.False(t, res.ShouldExit)
	assert.Contains(t, res.Reason, "no evaluator registered")
}

func TestDisabledStrategyIsSkipped(t *testing.T) {
	r := newTestRegistry(nil)
	disabled := false
	cfg := profitConfig(50)
	cfg.Enabled = &disabled

	res := r.Evaluate(context.Background(), snapshot(100, 160, 160), 160, cfg)
	assert.False(t, res.ShouldExit)
}

func TestEvaluateAllPicksHighestUrgency(t *testing.T) {
	r := newTestRegistry(nil)
	now := time.Now()

	snap := snapshot(100, 160, 160)
	snap.OpenedAt = now.Add(-2 * time.Hour)

	configs := []Config{
		{Kind: KindTime, Time: &TimeParams{MaxHoldMinutes: 60}}, // medium urgency
		*profitConfig(50), // high urgency
	}
	res := r.EvaluateAll(context.Background(), snap, 160, configs)
	require.True(t, res.ShouldExit)
	assert.Equal(t, UrgencyHigh, res.Urgency)
	assert.Contains(t, res.Reason, "profit target")
}
