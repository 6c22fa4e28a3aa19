package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"track_record/internal/domain"
)

// PaperBroker simulates the supervised trading process with virtual
// balances. It implements domain.PositionSource, so the audit engine polls
// it exactly the way it would poll a live broker terminal.
type PaperBroker struct {
	mu sync.Mutex

	balance    decimal.Decimal
	peakEquity decimal.Decimal

	positions map[string]*domain.Position
	order     []string // position enumeration order (stable across ticks)
	closed    map[string]domain.ClosedTrade

	prices map[string]decimal.Decimal
	nextID int

	logger *slog.Logger
}

// NewPaperBroker creates a paper broker with an initial balance.
func NewPaperBroker(initialBalance decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		balance:    initialBalance,
		peakEquity: initialBalance,
		positions:  make(map[string]*domain.Position),
		closed:     make(map[string]domain.ClosedTrade),
		prices:     make(map[string]decimal.Decimal),
		nextID:     1,
		logger:     slog.Default().With("module", "paper_broker"),
	}
}

// UpdatePrice updates the mark price for a symbol.
func (b *PaperBroker) UpdatePrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// Open opens a simulated position at the current mark price and returns
// its id. Fails when no price is known for the symbol.
func (b *PaperBroker) Open(symbol string, dir domain.Direction, size, stop, take decimal.Decimal) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[symbol]
	if !ok {
		return "", fmt.Errorf("no price available for %s", symbol)
	}

	id := fmt.Sprintf("%d", b.nextID)
	b.nextID++

	b.positions[id] = &domain.Position{
		ID:         id,
		Symbol:     symbol,
		Direction:  dir,
		Size:       size,
		EntryPrice: price,
		StopLevel:  stop,
		TakeLevel:  take,
		OpenedAt:   time.Now(),
	}
	b.order = append(b.order, id)

	b.logger.Info("paper position opened",
		slog.String("id", id),
		slog.String("symbol", symbol),
		slog.String("direction", string(dir)),
		slog.String("size", size.String()))
	return id, nil
}

// Modify changes a position's stop/target levels.
func (b *PaperBroker) Modify(id string, stop, take decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[id]
	if !ok {
		return fmt.Errorf("position not found: %s", id)
	}
	p.StopLevel = stop
	p.TakeLevel = take
	return nil
}

// PartialClose reduces a position's size, realizing PnL for the closed
// portion and recording it in closed history.
func (b *PaperBroker) PartialClose(id string, closeSize decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[id]
	if !ok {
		return fmt.Errorf("position not found: %s", id)
	}
	if closeSize.GreaterThanOrEqual(p.Size) {
		return fmt.Errorf("partial close size %s >= position size %s", closeSize, p.Size)
	}

	price, ok := b.prices[p.Symbol]
	if !ok {
		return fmt.Errorf("no price available for %s", p.Symbol)
	}

	profit := b.pnl(p, price, closeSize)
	p.Size = p.Size.Sub(closeSize)
	b.balance = b.balance.Add(profit)
	b.closed[id] = domain.ClosedTrade{
		PositionID: id,
		Symbol:     p.Symbol,
		ClosedSize: closeSize,
		ClosePrice: price,
		Profit:     profit,
		ClosedAt:   time.Now(),
	}
	return nil
}

// Close fully closes a position at the current mark price.
func (b *PaperBroker) Close(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[id]
	if !ok {
		return fmt.Errorf("position not found: %s", id)
	}
	price, ok := b.prices[p.Symbol]
	if !ok {
		return fmt.Errorf("no price available for %s", p.Symbol)
	}

	profit := b.pnl(p, price, p.Size)
	b.balance = b.balance.Add(profit)
	b.closed[id] = domain.ClosedTrade{
		PositionID: id,
		Symbol:     p.Symbol,
		ClosedSize: p.Size,
		ClosePrice: price,
		Profit:     profit,
		ClosedAt:   time.Now(),
	}

	delete(b.positions, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	b.logger.Info("paper position closed",
		slog.String("id", id),
		slog.String("profit", profit.String()))
	return nil
}

// pnl computes profit for closing `size` of position p at `price`.
func (b *PaperBroker) pnl(p *domain.Position, price, size decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Direction == domain.DirectionSell {
		diff = diff.Neg()
	}
	return diff.Mul(size)
}

// OpenPositions implements domain.PositionSource.
func (b *PaperBroker) OpenPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Position, 0, len(b.order))
	for _, id := range b.order {
		if p, ok := b.positions[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// ClosedTrade implements domain.PositionSource.
func (b *PaperBroker) ClosedTrade(positionID string) (domain.ClosedTrade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.closed[positionID]
	return t, ok
}

// Account implements domain.PositionSource.
func (b *PaperBroker) Account() domain.AccountInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	unrealized := decimal.Zero
	for _, id := range b.order {
		p, ok := b.positions[id]
		if !ok {
			continue
		}
		price, ok := b.prices[p.Symbol]
		if !ok {
			continue // no mark price yet, counts as flat
		}
		unrealized = unrealized.Add(b.pnl(p, price, p.Size))
	}

	equity := b.balance.Add(unrealized)
	if equity.GreaterThan(b.peakEquity) {
		b.peakEquity = equity
	}

	drawdown := decimal.Zero
	if b.peakEquity.IsPositive() {
		drawdown = b.peakEquity.Sub(equity).Div(b.peakEquity).Mul(decimal.NewFromInt(100))
	}

	return domain.AccountInfo{
		Balance:       b.balance,
		Equity:        equity,
		UnrealizedPnL: unrealized,
		DrawdownPct:   drawdown,
		OpenPositions: len(b.positions),
	}
}
