// internal/storage/noop.go
package storage

import (
	"context"
	"time"

	"github.com/rovshanmuradov/trading-core/internal/position"
	"github.com/rovshanmuradov/trading-core/internal/storage/models"
)

// noopStorage discards every write. Used when no database is configured so
// the rest of the core never has to nil-check its persistence collaborator.
type noopStorage struct{}

// NewNoop returns a Storage that accepts and forgets everything.
func NewNoop() Storage {
	return noopStorage{}
}

func (noopStorage) AddPosition(context.Context, position.Context) error { return nil }

func (noopStorage) ClosePosition(context.Context, string, string, time.Time, float64, float64) error {
	return nil
}

func (noopStorage) GetOpenPositions(context.Context) ([]*models.Position, error) {
	return nil, nil
}

func (noopStorage) GetClosedPositions(context.Context, int, int) ([]*models.Position, error) {
	return nil, nil
}

func (noopStorage) SaveExitEvent(context.Context, position.ExitRequest) error { return nil }

func (noopStorage) LoadHighWaterMark(context.Context, string) (float64, bool, error) {
	return 0, false, nil
}

func (noopStorage) SaveHighWaterMark(context.Context, string, float64) error { return nil }

func (noopStorage) RunMigrations() error { return nil }
