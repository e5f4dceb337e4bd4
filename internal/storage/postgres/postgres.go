// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/trading-core/internal/position"
	"github.com/rovshanmuradov/trading-core/internal/storage"
	"github.com/rovshanmuradov/trading-core/internal/storage/models"
)

// gormLogger adapts zap to GORM's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// postgresStorage implements storage.Storage on GORM/PostgreSQL.
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (p *postgresStorage) RunMigrations() error {
	// Advisory lock so concurrent instances don't race AutoMigrate.
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(101)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(101)")

	err = p.db.AutoMigrate(
		&models.Position{},
		&models.ExitEvent{},
		&models.HighWaterMark{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresStorage) AddPosition(ctx context.Context, pc position.Context) error {
	record := &models.Position{
		PositionID: pc.PositionID,
		Token:      pc.Token,
		EntryPrice: pc.EntryPrice,
		Amount:     pc.Amount,
		OpenedAt:   pc.OpenedAt,
		Status:     "open",
	}
	return p.db.WithContext(ctx).Create(record).Error
}

func (p *postgresStorage) ClosePosition(ctx context.Context, positionID, exitTradeID string, closedAt time.Time, pnlUSD, pnlPercent float64) error {
	return p.db.WithContext(ctx).Model(&models.Position{}).
		Where("position_id = ?", positionID).
		Updates(map[string]interface{}{
			"status":        "closed",
			"exit_trade_id": exitTradeID,
			"closed_at":     closedAt,
			"pnl_usd":       pnlUSD,
			"pnl_percent":   pnlPercent,
		}).Error
}

func (p *postgresStorage) GetOpenPositions(ctx context.Context) ([]*models.Position, error) {
	var positions []*models.Position
	err := p.db.WithContext(ctx).
		Where("status = ?", "open").
		Order("opened_at asc").
		Find(&positions).Error
	return positions, err
}

func (p *postgresStorage) GetClosedPositions(ctx context.Context, limit, offset int) ([]*models.Position, error) {
	var positions []*models.Position
	err := p.db.WithContext(ctx).
		Where("status = ?", "closed").
		Order("closed_at desc").
		Limit(limit).
		Offset(offset).
		Find(&positions).Error
	return positions, err
}

func (p *postgresStorage) SaveExitEvent(ctx context.Context, req position.ExitRequest) error {
	record := &models.ExitEvent{
		PositionID:            req.PositionID,
		Token:                 req.Token,
		Reason:                req.Reason,
		Urgency:               req.Urgency.String(),
		TargetPrice:           req.TargetPrice,
		PartialExitPercentage: req.PartialExitPercentage,
	}
	return p.db.WithContext(ctx).Create(record).Error
}

func (p *postgresStorage) LoadHighWaterMark(ctx context.Context, positionID string) (float64, bool, error) {
	var mark models.HighWaterMark
	err := p.db.WithContext(ctx).Where("position_id = ?", positionID).First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mark.Price, true, nil
}

func (p *postgresStorage) SaveHighWaterMark(ctx context.Context, positionID string, price float64) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "position_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"price": price, "updated_at": time.Now().UTC()}),
	}).Create(&models.HighWaterMark{PositionID: positionID, Price: price}).Error
}
