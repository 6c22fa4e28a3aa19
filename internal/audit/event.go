package audit

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"track_record/internal/domain"
)

// EventType identifies a lifecycle transition in the supervised process.
type EventType string

const (
	EventSessionStart EventType = "SESSION_START"
	EventSessionEnd   EventType = "SESSION_END"
	EventSnapshot     EventType = "SNAPSHOT"
	EventTradeOpen    EventType = "TRADE_OPEN"
	EventTradeClose   EventType = "TRADE_CLOSE"
	EventTradeModify  EventType = "TRADE_MODIFY"
	EventPartialClose EventType = "PARTIAL_CLOSE"
)

// Envelope is the wire form of one committed event. The payload object is
// the canonical encoding of the event's typed fields, so its key order and
// number formatting are exactly what the eventHash was computed over.
// Events are immutable once hashed.
type Envelope struct {
	EventType string          `json:"eventType"`
	SeqNo     uint64          `json:"seqNo"`
	PrevHash  string          `json:"prevHash"`
	EventHash string          `json:"eventHash"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Candidate is a detected transition awaiting chain submission.
type Candidate struct {
	Type    EventType
	Payload *FieldSet
}

// SessionStartPayload describes the account a session runs against.
func SessionStartPayload(broker, currency string, balance decimal.Decimal) *FieldSet {
	return NewFieldSet().
		PutString("broker", broker).
		PutString("currency", currency).
		PutMoney("balance", balance)
}

// SessionEndPayload closes out a recorded session.
func SessionEndPayload(acct domain.AccountInfo) *FieldSet {
	return NewFieldSet().
		PutMoney("balance", acct.Balance).
		PutInt("openPositions", int64(acct.OpenPositions))
}

// SnapshotPayload captures periodic account state.
func SnapshotPayload(acct domain.AccountInfo) *FieldSet {
	return NewFieldSet().
		PutMoney("balance", acct.Balance).
		PutMoney("equity", acct.Equity).
		PutMoney("unrealizedPnl", acct.UnrealizedPnL).
		PutMoney("drawdownPct", acct.DrawdownPct).
		PutInt("openPositions", int64(acct.OpenPositions))
}

// TradeOpenPayload records a newly detected position.
func TradeOpenPayload(p domain.Position) *FieldSet {
	return NewFieldSet().
		PutString("positionId", p.ID).
		PutString("symbol", p.Symbol).
		PutString("direction", string(p.Direction)).
		PutMoney("size", p.Size).
		PutPrice("entryPrice", p.EntryPrice).
		PutPrice("stopLoss", p.StopLevel).
		PutPrice("takeProfit", p.TakeLevel)
}

// TradeModifyPayload records a stop/target change, old and new values.
func TradeModifyPayload(positionID string, oldStop, newStop, oldTake, newTake decimal.Decimal) *FieldSet {
	return NewFieldSet().
		PutString("positionId", positionID).
		PutPrice("oldStopLoss", oldStop).
		PutPrice("newStopLoss", newStop).
		PutPrice("oldTakeProfit", oldTake).
		PutPrice("newTakeProfit", newTake)
}

// PartialClosePayload records a size reduction on a still-open position.
// Fill price and profit are best effort from recent history.
func PartialClosePayload(positionID string, closedSize, remainingSize, fillPrice, profit decimal.Decimal) *FieldSet {
	return NewFieldSet().
		PutString("positionId", positionID).
		PutMoney("closedSize", closedSize).
		PutMoney("remainingSize", remainingSize).
		PutPrice("fillPrice", fillPrice).
		PutMoney("profit", profit)
}

// TradeClosePayload records a fully closed position from history.
func TradeClosePayload(t domain.ClosedTrade) *FieldSet {
	return NewFieldSet().
		PutString("positionId", t.PositionID).
		PutPrice("closePrice", t.ClosePrice).
		PutMoney("profit", t.Profit).
		PutMoney("commission", t.Commission).
		PutMoney("swap", t.Swap)
}
