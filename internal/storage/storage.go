// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/rovshanmuradov/trading-core/internal/position"
	"github.com/rovshanmuradov/trading-core/internal/storage/models"
)

// Storage is the persistence collaborator for the position core. It covers
// position.Persister (lifecycle writes) and the history package's MarkStore
// (trailing-stop high-water marks), plus read queries for recovery at boot.
type Storage interface {
	// Position lifecycle
	AddPosition(ctx context.Context, pc position.Context) error
	ClosePosition(ctx context.Context, positionID, exitTradeID string, closedAt time.Time, pnlUSD, pnlPercent float64) error
	GetOpenPositions(ctx context.Context) ([]*models.Position, error)
	GetClosedPositions(ctx context.Context, limit, offset int) ([]*models.Position, error)

	// Exit audit trail
	SaveExitEvent(ctx context.Context, req position.ExitRequest) error

	// Trailing-stop high-water marks
	LoadHighWaterMark(ctx context.Context, positionID string) (float64, bool, error)
	SaveHighWaterMark(ctx context.Context, positionID string, price float64) error

	// Migrations
	RunMigrations() error
}
