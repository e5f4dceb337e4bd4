package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/trading-core/internal/history"
	"github.com/rovshanmuradov/trading-core/internal/position"
)

// The noop implementation must satisfy both consumer-side interfaces; these
// assignments fail to compile if the method sets drift apart.
var (
	_ position.Persister = NewNoop()
	_ history.MarkStore  = NewNoop()
)

func TestNoopStorageAcceptsEverything(t *testing.T) {
	s := NewNoop()
	ctx := context.Background()

	require.NoError(t, s.AddPosition(ctx, position.Context{PositionID: "pos-1"}))
	require.NoError(t, s.ClosePosition(ctx, "pos-1", "trade-1", time.Now(), 100, 10))
	require.NoError(t, s.SaveExitEvent(ctx, position.ExitRequest{PositionID: "pos-1"}))
	require.NoError(t, s.SaveHighWaterMark(ctx, "pos-1", 130))
	require.NoError(t, s.RunMigrations())

	open, err := s.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, ok, err := s.LoadHighWaterMark(ctx, "pos-1")
	require.NoError(t, err)
	assert.False(t, ok, "noop storage never remembers a mark")
}
