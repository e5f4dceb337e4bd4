// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/trading-core/internal/config"
	"github.com/rovshanmuradov/trading-core/internal/events"
	"github.com/rovshanmuradov/trading-core/internal/history"
	"github.com/rovshanmuradov/trading-core/internal/logger"
	"github.com/rovshanmuradov/trading-core/internal/marketdata"
	"github.com/rovshanmuradov/trading-core/internal/metrics"
	"github.com/rovshanmuradov/trading-core/internal/position"
	"github.com/rovshanmuradov/trading-core/internal/storage"
	"github.com/rovshanmuradov/trading-core/internal/storage/postgres"
	"github.com/rovshanmuradov/trading-core/internal/strategy"
)

// Runner wires the trading core together: market-data router, history store,
// position manager, exit scan, persistence, events, and metrics.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	store      storage.Storage
	bus        *events.Bus
	collector  *metrics.Collector
	metricsWeb *metrics.Server
	hist       *history.Store
	registry   *strategy.Registry
	manager    *position.Manager
	router     *marketdata.Router
	audit      *logger.ExitAuditWriter
	profiles   map[string][]strategy.Config

	shutdownCh chan os.Signal
}

// NewRunner builds the full pipeline from configuration. zapLogger is the
// process logger; named child loggers are derived per component.
func NewRunner(cfg *config.Config, zapLogger *zap.Logger) (*Runner, error) {
	store, err := openStorage(cfg, zapLogger)
	if err != nil {
		return nil, err
	}

	profiles, err := strategy.LoadProfiles(cfg.StrategiesFile, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy profiles: %w", err)
	}

	hist := history.NewStore(history.Config{
		Retention:         cfg.HistoryRetention(),
		MaxPointsPerToken: cfg.HistoryMaxPoints,
	}, store, zapLogger)

	registry := strategy.NewRegistry(hist, zapLogger)

	manager := position.NewManager(position.ManagerConfig{
		Logger:          zapLogger,
		Registry:        registry,
		Persister:       store,
		PersistMaxTries: uint(cfg.PersistRetries),
		PriceWorkers:    cfg.PriceWorkers,
	})

	audit, err := logger.NewExitAuditWriter(
		filepath.Join(cfg.LogDir, "exits.csv"), 30*time.Second, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open exit audit log: %w", err)
	}

	collector := metrics.NewCollector()
	r := &Runner{
		cfg:        cfg,
		logger:     zapLogger.Named("runner"),
		store:      store,
		bus:        events.NewBus(zapLogger, 1024),
		collector:  collector,
		hist:       hist,
		registry:   registry,
		manager:    manager,
		audit:      audit,
		profiles:   profiles,
		shutdownCh: make(chan os.Signal, 1),
	}

	if cfg.MetricsAddr != "" {
		r.metricsWeb = metrics.NewServer(cfg.MetricsAddr, collector, zapLogger)
	}

	r.router = marketdata.NewRouter(marketdata.RouterConfig{
		QueueCapacity:        cfg.QueueCapacity,
		BatchSize:            cfg.BatchSize,
		DrainInterval:        cfg.DrainInterval(),
		MonitorInterval:      cfg.MonitorInterval(),
		UtilizationThreshold: float64(cfg.UtilizationThreshold),
		LatencyThreshold:     time.Duration(cfg.LatencyThresholdMs) * time.Millisecond,
	}, marketdata.TickHandlerFunc(r.handleTicks), zapLogger)

	return r, nil
}

func openStorage(cfg *config.Config, zapLogger *zap.Logger) (storage.Storage, error) {
	if cfg.PostgresURL == "" {
		zapLogger.Warn("No postgres_url configured, positions will not be persisted")
		return storage.NewNoop(), nil
	}

	store, err := postgres.NewStorage(cfg.PostgresURL, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// ProcessMarketData feeds one tick into the pipeline. Safe from any
// goroutine.
func (r *Runner) ProcessMarketData(tick marketdata.Tick) bool {
	if !tick.Valid() {
		r.collector.RecordTick("invalid")
		_ = r.bus.Publish(events.NewTickDropped(tick.Token, "invalid"))
		return false
	}
	ok := r.router.ProcessMarketData(tick)
	if ok {
		r.collector.RecordTick("enqueued")
	} else {
		r.collector.RecordTick("dropped")
		_ = r.bus.Publish(events.NewTickDropped(tick.Token, "queue_full"))
	}
	return ok
}

// OpenPosition creates a position using the named strategy profile.
func (r *Runner) OpenPosition(ctx context.Context, token string, entryPrice, amount float64, profile string) (string, error) {
	strategies, ok := r.profiles[profile]
	if !ok {
		return "", fmt.Errorf("unknown strategy profile %q", profile)
	}

	id, err := r.manager.CreatePosition(ctx, token, entryPrice, amount, strategies)
	if err != nil {
		return "", err
	}
	_ = r.bus.Publish(events.NewPositionOpened(id, token, entryPrice, amount))
	r.collector.SetOpenPositions(r.manager.ActiveCount())
	return id, nil
}

// ClosePosition walks a position to Closed and forgets its history marks.
func (r *Runner) ClosePosition(ctx context.Context, id, reason string) bool {
	machine, ok := r.manager.GetPosition(id)
	if !ok {
		return false
	}
	if !r.manager.ClosePosition(ctx, id, reason) {
		return false
	}

	pc := machine.Context()
	r.hist.DropPosition(id)
	_ = r.bus.Publish(events.NewPositionClosed(id, pc.Token, reason, pc.PnLPercent, pc.PnLUSD))
	r.collector.SetOpenPositions(r.manager.ActiveCount())
	return true
}

// Manager exposes the position manager to collaborators (trade execution).
func (r *Runner) Manager() *position.Manager { return r.manager }

// Events exposes the event bus for subscribers.
func (r *Runner) Events() *events.Bus { return r.bus }

// Run starts the pipeline and blocks until ctx is cancelled or a shutdown
// signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("📡 Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := r.restorePositions(runCtx); err != nil {
		return err
	}

	if r.metricsWeb != nil {
		go r.metricsWeb.Start()
	}

	r.router.Start(runCtx)
	r.logger.Info("🚀 Trading core started",
		zap.Int("queue_capacity", r.cfg.QueueCapacity),
		zap.Int("profiles", len(r.profiles)))

	go r.evaluationLoop(runCtx)
	go r.cleanupLoop(runCtx)

	<-runCtx.Done()
	// Let the drain and monitor loops finish their in-flight batch before
	// the audit writer and bus close underneath them.
	r.router.Wait()
	r.shutdown()
	return nil
}

// restorePositions reloads open positions from storage so a restart does not
// orphan live trades. Restored positions get the default profile when their
// original one is gone.
func (r *Runner) restorePositions(ctx context.Context) error {
	open, err := r.store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	strategies := r.defaultProfile()
	for _, record := range open {
		if err := r.manager.RestorePosition(record.PositionID, record.Token,
			record.EntryPrice, record.Amount, record.OpenedAt, strategies); err != nil {
			r.logger.Warn("Skipping unrestorable position",
				zap.String("position_id", record.PositionID),
				zap.Error(err))
		}
	}
	r.collector.SetOpenPositions(r.manager.ActiveCount())
	r.logger.Info("♻️ Restored open positions", zap.Int("count", r.manager.ActiveCount()))
	return nil
}

func (r *Runner) defaultProfile() []strategy.Config {
	if strategies, ok := r.profiles["default"]; ok {
		return strategies
	}
	for _, strategies := range r.profiles {
		return strategies
	}
	return nil
}

// handleTicks sits on the router's drain path: per-token, timestamp-ordered
// batches land here.
func (r *Runner) handleTicks(ctx context.Context, ticks []marketdata.Tick) {
	if len(ticks) == 0 {
		return
	}

	for _, tick := range ticks {
		r.hist.RecordTick(tick)
	}

	// Positions only care about the newest price; history keeps the rest.
	latest := ticks[len(ticks)-1]
	started := time.Now()
	results := r.manager.UpdatePricesAtomically(ctx, []position.PriceUpdate{{
		Token:     latest.Token,
		Price:     latest.Price,
		Timestamp: latest.Timestamp,
		Source:    latest.Source,
	}})
	r.collector.ObservePriceBatch(time.Since(started))

	for _, res := range results {
		if res.Positions > 0 {
			_ = r.bus.Publish(events.NewPriceUpdated(latest.Token, latest.Price, res.Applied, latest.Source))
		}
	}
}

func (r *Runner) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.EvalInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			requests := r.manager.EvaluateExitConditions(ctx)
			r.collector.ObserveEvalDuration(time.Since(started))

			for _, req := range requests {
				r.collector.RecordExit(req.Urgency.String())
				_ = r.bus.Publish(events.NewExitRequested(req))
				if err := r.audit.WriteExit(logger.ExitAuditRecord{
					PositionID:            req.PositionID,
					Token:                 req.Token,
					Reason:                req.Reason,
					Urgency:               req.Urgency.String(),
					TargetPrice:           req.TargetPrice,
					PartialExitPercentage: req.PartialExitPercentage,
				}); err != nil {
					r.logger.Error("Failed to write exit audit record",
						zap.String("position_id", req.PositionID),
						zap.Error(err))
				}
			}
		}
	}
}

func (r *Runner) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CleanupDelay())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.manager.CleanupClosedPositions()
			if removed > 0 {
				r.logger.Debug("Evicted closed positions", zap.Int("count", removed))
			}
			r.collector.SetOpenPositions(r.manager.ActiveCount())

			stats := r.router.Stats()
			r.collector.UpdateQueueStats("global", stats.UtilizationPercent, stats.AverageLatency)
		}
	}
}

func (r *Runner) shutdown() {
	r.logger.Info("👋 Trading core shutting down")

	handler := NewShutdownHandler(r.logger, 30*time.Second)
	handler.AddFunc("exit_audit", r.audit.Close)
	handler.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.bus.Shutdown(ctx)
	})
	if r.metricsWeb != nil {
		handler.AddFunc("metrics_server", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return r.metricsWeb.Shutdown(ctx)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	handler.Shutdown(ctx)
}
