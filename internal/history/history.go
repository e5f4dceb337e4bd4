package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/trading-core/internal/marketdata"
	"github.com/rovshanmuradov/trading-core/internal/strategy"
)

// MarkStore persists trailing-stop high-water marks across restarts.
// Optional; without one marks live only in memory.
type MarkStore interface {
	LoadHighWaterMark(ctx context.Context, positionID string) (float64, bool, error)
	SaveHighWaterMark(ctx context.Context, positionID string, price float64) error
}

// Config bounds the in-memory series.
type Config struct {
	// Retention is how far back points are kept. Zero means 2 hours.
	Retention time.Duration
	// MaxPointsPerToken caps each token's series. Zero means 10000.
	MaxPointsPerToken int
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 2 * time.Hour
	}
	if c.MaxPointsPerToken <= 0 {
		c.MaxPointsPerToken = 10000
	}
	return c
}

// Store is the in-memory market-data history backing the data-dependent exit
// strategies. It is fed from the router's drain loop and implements
// strategy.Provider.
type Store struct {
	mu      sync.RWMutex
	prices  map[string][]strategy.PricePoint
	volumes map[string][]strategy.VolumePoint
	marks   map[string]float64

	cfg       Config
	markStore MarkStore
	logger    *zap.Logger
}

// NewStore creates an empty history store. markStore may be nil.
func NewStore(cfg Config, markStore MarkStore, logger *zap.Logger) *Store {
	return &Store{
		prices:    make(map[string][]strategy.PricePoint),
		volumes:   make(map[string][]strategy.VolumePoint),
		marks:     make(map[string]float64),
		cfg:       cfg.withDefaults(),
		markStore: markStore,
		logger:    logger.Named("history"),
	}
}

// RecordTick appends one tick to the token's price and volume series,
// trimming anything past the retention window or the point cap.
func (s *Store) RecordTick(tick marketdata.Tick) {
	ts := time.UnixMilli(tick.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[tick.Token] = trimPrices(append(s.prices[tick.Token], strategy.PricePoint{
		Price:     tick.Price,
		Timestamp: ts,
		Source:    tick.Source,
	}), s.cfg)
	s.volumes[tick.Token] = trimVolumes(append(s.volumes[tick.Token], strategy.VolumePoint{
		Volume:    tick.Volume,
		Timestamp: ts,
	}), s.cfg)
}

// HandleTicks lets the store sit directly on the router's drain path.
func (s *Store) HandleTicks(_ context.Context, ticks []marketdata.Tick) {
	for _, tick := range ticks {
		s.RecordTick(tick)
	}
}

// GetPriceHistory returns the token's price points within the window, oldest
// first.
func (s *Store) GetPriceHistory(_ context.Context, token string, minutes int) ([]strategy.PricePoint, error) {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.prices[token]
	out := make([]strategy.PricePoint, 0, len(series))
	for _, p := range series {
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetVolumeHistory returns the token's volume points within the window.
func (s *Store) GetVolumeHistory(_ context.Context, token string, minutes int) ([]strategy.VolumePoint, error) {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.volumes[token]
	out := make([]strategy.VolumePoint, 0, len(series))
	for _, v := range series {
		if !v.Timestamp.Before(cutoff) {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetSentimentHistory is a placeholder: no sentiment feed is wired yet, so
// the sentiment strategy always sees an empty series.
func (s *Store) GetSentimentHistory(context.Context, string, int) ([]strategy.SentimentPoint, error) {
	return nil, nil
}

// GetCreatorActivity is a placeholder, same as sentiment.
func (s *Store) GetCreatorActivity(context.Context, string, int) ([]strategy.CreatorEvent, error) {
	return nil, nil
}

// GetHighWaterMark returns the persisted mark for a position, consulting the
// mark store on a memory miss.
func (s *Store) GetHighWaterMark(ctx context.Context, positionID string) (float64, bool, error) {
	s.mu.RLock()
	mark, ok := s.marks[positionID]
	s.mu.RUnlock()
	if ok {
		return mark, true, nil
	}

	if s.markStore == nil {
		return 0, false, nil
	}
	mark, ok, err := s.markStore.LoadHighWaterMark(ctx, positionID)
	if err != nil || !ok {
		return 0, false, err
	}

	s.mu.Lock()
	s.marks[positionID] = mark
	s.mu.Unlock()
	return mark, true, nil
}

// SetHighWaterMark records a new mark, writing through to the mark store when
// one is configured. A write-through failure keeps the in-memory mark and is
// logged rather than returned: losing persistence must not stop the stop-loss.
func (s *Store) SetHighWaterMark(ctx context.Context, positionID string, price float64) error {
	s.mu.Lock()
	s.marks[positionID] = price
	s.mu.Unlock()

	if s.markStore == nil {
		return nil
	}
	if err := s.markStore.SaveHighWaterMark(ctx, positionID, price); err != nil {
		s.logger.Warn("Failed to persist high-water mark",
			zap.String("position_id", positionID),
			zap.Float64("price", price),
			zap.Error(err))
	}
	return nil
}

// DropPosition forgets a position's high-water mark, called after close.
func (s *Store) DropPosition(positionID string) {
	s.mu.Lock()
	delete(s.marks, positionID)
	s.mu.Unlock()
}

// TokenCount returns how many tokens currently have history, for diagnostics.
func (s *Store) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

func trimPrices(series []strategy.PricePoint, cfg Config) []strategy.PricePoint {
	cutoff := time.Now().Add(-cfg.Retention)
	start := 0
	for start < len(series) && series[start].Timestamp.Before(cutoff) {
		start++
	}
	series = series[start:]
	if len(series) > cfg.MaxPointsPerToken {
		series = series[len(series)-cfg.MaxPointsPerToken:]
	}
	return series
}

func trimVolumes(series []strategy.VolumePoint, cfg Config) []strategy.VolumePoint {
	cutoff := time.Now().Add(-cfg.Retention)
	start := 0
	for start < len(series) && series[start].Timestamp.Before(cutoff) {
		start++
	}
	series = series[start:]
	if len(series) > cfg.MaxPointsPerToken {
		series = series[len(series)-cfg.MaxPointsPerToken:]
	}
	return series
}
