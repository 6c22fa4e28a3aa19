package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a position.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Position represents a currently open position owned by this instance.
type Position struct {
	ID         string
	Symbol     string
	Direction  Direction
	Size       decimal.Decimal // lots
	EntryPrice decimal.Decimal
	StopLevel  decimal.Decimal // zero when no stop is set
	TakeLevel  decimal.Decimal // zero when no target is set
	OpenedAt   time.Time
}

// SignedSize returns size with direction applied (negative for shorts).
func (p *Position) SignedSize() decimal.Decimal {
	if p.Direction == DirectionSell {
		return p.Size.Neg()
	}
	return p.Size
}

// ClosedTrade is a record from the closed-position history.
// Partial closes produce one record for the closed portion.
type ClosedTrade struct {
	PositionID string
	Symbol     string
	ClosedSize decimal.Decimal
	ClosePrice decimal.Decimal
	Profit     decimal.Decimal
	Commission decimal.Decimal
	Swap       decimal.Decimal
	ClosedAt   time.Time
}

// AccountInfo is a point-in-time view of the trading account.
type AccountInfo struct {
	Balance       decimal.Decimal
	Equity        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	DrawdownPct   decimal.Decimal
	OpenPositions int
}
