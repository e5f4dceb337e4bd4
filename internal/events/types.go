// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/trading-core/internal/position"
)

// EventType represents the type of event.
type EventType string

const (
	// Position lifecycle events
	PositionOpened EventType = "position.opened"
	PositionClosed EventType = "position.closed"

	// Price events
	PriceUpdated EventType = "price.updated"

	// Exit workflow events
	ExitRequested EventType = "exit.requested"

	// Market-data pipeline events
	TickDropped EventType = "tick.dropped"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// PositionOpenedEvent is emitted when a new position starts monitoring.
type PositionOpenedEvent struct {
	BaseEvent
	PositionID string
	Token      string
	EntryPrice float64
	Amount     float64
}

// NewPositionOpened builds a PositionOpenedEvent stamped with the current time.
func NewPositionOpened(positionID, token string, entryPrice, amount float64) PositionOpenedEvent {
	return PositionOpenedEvent{
		BaseEvent:  newBase(PositionOpened),
		PositionID: positionID,
		Token:      token,
		EntryPrice: entryPrice,
		Amount:     amount,
	}
}

// PositionClosedEvent is emitted once a position reaches its terminal state.
type PositionClosedEvent struct {
	BaseEvent
	PositionID string
	Token      string
	Reason     string
	PnLPercent float64
	PnLUSD     float64
}

// NewPositionClosed builds a PositionClosedEvent stamped with the current time.
func NewPositionClosed(positionID, token, reason string, pnlPercent, pnlUSD float64) PositionClosedEvent {
	return PositionClosedEvent{
		BaseEvent:  newBase(PositionClosed),
		PositionID: positionID,
		Token:      token,
		Reason:     reason,
		PnLPercent: pnlPercent,
		PnLUSD:     pnlUSD,
	}
}

// PriceUpdatedEvent is emitted after a price batch has been applied.
type PriceUpdatedEvent struct {
	BaseEvent
	Token     string
	Price     float64
	Positions int // positions that received the update
	Source    string
}

// NewPriceUpdated builds a PriceUpdatedEvent stamped with the current time.
func NewPriceUpdated(token string, price float64, positions int, source string) PriceUpdatedEvent {
	return PriceUpdatedEvent{
		BaseEvent: newBase(PriceUpdated),
		Token:     token,
		Price:     price,
		Positions: positions,
		Source:    source,
	}
}

// ExitRequestedEvent carries an exit request to the trade-execution side.
type ExitRequestedEvent struct {
	BaseEvent
	Request position.ExitRequest
}

// NewExitRequested builds an ExitRequestedEvent stamped with the current time.
func NewExitRequested(req position.ExitRequest) ExitRequestedEvent {
	return ExitRequestedEvent{
		BaseEvent: newBase(ExitRequested),
		Request:   req,
	}
}

// TickDroppedEvent is emitted when the market-data queue rejects a tick.
type TickDroppedEvent struct {
	BaseEvent
	Token  string
	Reason string // "queue_full", "invalid"
}

// NewTickDropped builds a TickDroppedEvent stamped with the current time.
func NewTickDropped(token, reason string) TickDroppedEvent {
	return TickDroppedEvent{
		BaseEvent: newBase(TickDropped),
		Token:     token,
		Reason:    reason,
	}
}
