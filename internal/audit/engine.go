package audit

import (
	"context"
	"log/slog"
	"time"

	"track_record/internal/domain"
	"track_record/internal/infra"
)

// Engine drives the audit trail: one goroutine, externally clocked by a
// ticker, each tick running the detector synchronously and submitting its
// candidates to the chain in order. Nothing in here may ever propagate a
// failure into the supervised process's own control flow.
type Engine struct {
	chain    *Chain
	detector *Detector
	source   domain.PositionSource

	tickInterval time.Duration
	broker       string
	currency     string

	logger *slog.Logger
}

// NewEngine wires a chain, detector and position source into a tick loop.
func NewEngine(chain *Chain, detector *Detector, source domain.PositionSource, tickInterval time.Duration, broker, currency string) *Engine {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Engine{
		chain:        chain,
		detector:     detector,
		source:       source,
		tickInterval: tickInterval,
		broker:       broker,
		currency:     currency,
		logger:       slog.Default().With("module", "engine"),
	}
}

// Run starts the tick loop. This MUST be run in a single goroutine; the
// chain relies on at most one event being in flight at a time. Blocks until
// ctx is done, then emits a best-effort SESSION_END.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("audit engine started", slog.Duration("tick", e.tickInterval))

	e.chain.StartSession(ctx, SessionStartPayload(e.broker, e.currency, e.source.Account().Balance))

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Fresh short-lived context: the parent is already cancelled.
			endCtx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			e.chain.EndSession(endCtx, SessionEndPayload(e.source.Account()))
			cancel()
			e.logger.Info("audit engine stopped")
			return
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Tick performs one detect-and-record pass. Exported so a host with its own
// scheduling callback can clock the engine directly.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			// Contained: an audit defect must not take the host down.
			e.logger.Error("tick panic recovered", slog.Any("panic", r))
		}
	}()

	infra.GlobalMetrics.RecordTick()

	for _, cand := range e.detector.Detect(now) {
		e.chain.Record(ctx, cand.Type, cand.Payload)
	}
}
