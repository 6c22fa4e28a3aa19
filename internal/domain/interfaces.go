package domain

import "github.com/shopspring/decimal"

// PositionSource exposes the supervised trading process's queryable state.
// There is no event stream; the audit engine polls and diffs.
type PositionSource interface {
	// OpenPositions enumerates currently open positions in a stable order.
	OpenPositions() []Position

	// ClosedTrade looks up the most recent closed-history record for a
	// position. ok is false when history has no record (yet).
	ClosedTrade(positionID string) (ClosedTrade, bool)

	// Account returns the current account state.
	Account() AccountInfo
}

// PriceSink receives mark-price updates from a market data feed.
type PriceSink interface {
	UpdatePrice(symbol string, price decimal.Decimal)
}
