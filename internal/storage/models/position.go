// internal/storage/models/position.go
package models

import "time"

// Position is the persisted form of one position. The live numbers (current
// price, PnL) belong to the in-memory state machine; this row only records
// entry, exit, and final outcome.
type Position struct {
	BaseModel
	PositionID  string     `gorm:"unique;not null;type:varchar(64)"`
	Token       string     `gorm:"index;not null;type:varchar(64)"`
	EntryPrice  float64    `gorm:"type:decimal(30,12);not null"`
	Amount      float64    `gorm:"type:decimal(30,12);not null"`
	OpenedAt    time.Time  `gorm:"index;not null"`
	Status      string     `gorm:"index;not null;type:varchar(20)"` // "open" or "closed"
	ExitTradeID string     `gorm:"type:varchar(100)"`
	ExitReason  string     `gorm:"type:text"`
	ClosedAt    *time.Time `gorm:"index"`
	PnLUSD      float64    `gorm:"column:pnl_usd;type:decimal(30,12)"`
	PnLPercent  float64    `gorm:"column:pnl_percent;type:decimal(12,4)"`
}

// ExitEvent is one exit decision as emitted by the exit scan, kept for audit
// regardless of whether the trade execution succeeded.
type ExitEvent struct {
	BaseModel
	PositionID            string   `gorm:"index;not null;type:varchar(64)"`
	Token                 string   `gorm:"index;not null;type:varchar(64)"`
	Reason                string   `gorm:"type:text"`
	Urgency               string   `gorm:"not null;type:varchar(10)"`
	TargetPrice           *float64 `gorm:"type:decimal(30,12)"`
	PartialExitPercentage *float64 `gorm:"type:decimal(6,2)"`
}

// HighWaterMark persists a position's trailing-stop peak across restarts.
type HighWaterMark struct {
	BaseModel
	PositionID string  `gorm:"unique;not null;type:varchar(64)"`
	Price      float64 `gorm:"type:decimal(30,12);not null"`
}
