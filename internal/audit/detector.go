package audit

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"track_record/internal/domain"
)

// knownPosition is the per-position working snapshot the detector diffs
// against. Held only in memory: losing it costs one tick of detection, not
// chain integrity, because it never participates in hashing.
type knownPosition struct {
	id        string
	stopLevel decimal.Decimal
	takeLevel decimal.Decimal
	size      decimal.Decimal
}

// Detector diffs the supervised process's open-position set against the
// previous tick's snapshot and synthesizes lifecycle events in a fixed
// order: modifies and partial closes for known positions, opens for new
// ones, closes for vanished ones, then a periodic account snapshot. A
// verifier replaying the stream therefore never sees a close before its
// open.
type Detector struct {
	source    domain.PositionSource
	tolerance decimal.Decimal

	snapshotInterval time.Duration
	lastSnapshot     time.Time

	prev      map[string]knownPosition
	prevOrder []string // enumeration order, kept stable across ticks

	logger *slog.Logger
}

// NewDetector creates a detector over a position source.
func NewDetector(source domain.PositionSource, tolerance decimal.Decimal, snapshotInterval time.Duration) *Detector {
	if tolerance.IsZero() {
		tolerance = decimal.New(1, -8) // 0.00000001
	}
	if snapshotInterval <= 0 {
		snapshotInterval = 300 * time.Second
	}
	return &Detector{
		source:           source,
		tolerance:        tolerance,
		snapshotInterval: snapshotInterval,
		prev:             make(map[string]knownPosition),
		logger:           slog.Default().With("module", "detector"),
	}
}

func (d *Detector) levelChanged(before, after decimal.Decimal) bool {
	return before.Sub(after).Abs().GreaterThan(d.tolerance)
}

// Detect runs one tick of snapshot-diff and returns candidate events in
// submission order.
func (d *Detector) Detect(now time.Time) []Candidate {
	open := d.source.OpenPositions()

	current := make(map[string]knownPosition, len(open))
	var out []Candidate

	// Known positions first: modify, then partial close. Both may fire for
	// the same position in the same tick.
	var opened []domain.Position
	for _, p := range open {
		current[p.ID] = knownPosition{id: p.ID, stopLevel: p.StopLevel, takeLevel: p.TakeLevel, size: p.Size}

		prev, known := d.prev[p.ID]
		if !known {
			opened = append(opened, p)
			continue
		}

		if d.levelChanged(prev.stopLevel, p.StopLevel) || d.levelChanged(prev.takeLevel, p.TakeLevel) {
			out = append(out, Candidate{
				Type:    EventTradeModify,
				Payload: TradeModifyPayload(p.ID, prev.stopLevel, p.StopLevel, prev.takeLevel, p.TakeLevel),
			})
		}

		if p.Size.LessThan(prev.size) {
			closedSize := prev.size.Sub(p.Size)
			fillPrice := decimal.Zero
			profit := decimal.Zero
			if hist, ok := d.source.ClosedTrade(p.ID); ok {
				fillPrice = hist.ClosePrice
				profit = hist.Profit
			}
			out = append(out, Candidate{
				Type:    EventPartialClose,
				Payload: PartialClosePayload(p.ID, closedSize, p.Size, fillPrice, profit),
			})
		}
	}

	// Newly appeared positions.
	for _, p := range opened {
		out = append(out, Candidate{Type: EventTradeOpen, Payload: TradeOpenPayload(p)})
	}

	currentOrder := make([]string, 0, len(open))
	for _, p := range open {
		currentOrder = append(currentOrder, p.ID)
	}

	// Vanished positions: only emitted when history confirms the close.
	// Fabricating close data would poison the chain; skipping costs nothing
	// because the position stays in prev until history catches up.
	for _, id := range d.prevOrder {
		if _, still := current[id]; still {
			continue
		}
		hist, ok := d.source.ClosedTrade(id)
		if !ok {
			d.logger.Warn("closed position not found in history, close event skipped this tick",
				slog.String("positionId", id))
			current[id] = d.prev[id] // keep for retry next tick
			currentOrder = append(currentOrder, id)
			continue
		}
		out = append(out, Candidate{Type: EventTradeClose, Payload: TradeClosePayload(hist)})
	}

	// Periodic account snapshot, independent of position activity.
	if d.lastSnapshot.IsZero() || now.Sub(d.lastSnapshot) >= d.snapshotInterval {
		out = append(out, Candidate{Type: EventSnapshot, Payload: SnapshotPayload(d.source.Account())})
		d.lastSnapshot = now
	}

	d.prev = current
	d.prevOrder = currentOrder
	return out
}
