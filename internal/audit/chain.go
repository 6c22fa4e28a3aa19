package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"track_record/internal/domain"
	"track_record/internal/infra"
)

// Transmitter sends a fully formed envelope to the remote authority.
// Implementations return true only for a confirmed 2xx acceptance.
type Transmitter interface {
	Send(ctx context.Context, env *Envelope) bool
}

// StateStore durably records chain state after a confirmed send and keeps
// the best-effort local journal of committed envelopes.
type StateStore interface {
	SaveChainState(instanceID string, seqNo uint64, lastHash string) error
	AppendJournal(env *Envelope) error
}

// Chain owns (instanceId, seqNo, lastHash) and advances only on confirmed
// transmission. Single-threaded by design: at most one event is in flight,
// so no locking is needed (see the engine loop).
type Chain struct {
	instanceID string
	seqNo      uint64
	lastHash   string

	tx    Transmitter
	store StateStore
	clock func() time.Time

	sessionTried     bool // SESSION_START may only be attempted once per process
	sessionCommitted bool // gates SESSION_END

	logger *slog.Logger
}

// NewChain creates a chain resuming from (seqNo, lastHash). Pass 0 and
// GenesisHash for a fresh chain.
func NewChain(instanceID string, seqNo uint64, lastHash string, tx Transmitter, store StateStore) *Chain {
	if lastHash == "" {
		lastHash = GenesisHash
	}
	return &Chain{
		instanceID: instanceID,
		seqNo:      seqNo,
		lastHash:   lastHash,
		tx:         tx,
		store:      store,
		clock:      time.Now,
		logger:     slog.Default().With("module", "chain"),
	}
}

// WithClock overrides the timestamp source.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// InstanceID returns the chain's instance identity.
func (c *Chain) InstanceID() string { return c.instanceID }

// SeqNo returns the last committed sequence number.
func (c *Chain) SeqNo() uint64 { return c.seqNo }

// LastHash returns the last committed event hash.
func (c *Chain) LastHash() string { return c.lastHash }

// SessionStarted reports whether SESSION_START has been committed.
func (c *Chain) SessionStarted() bool { return c.sessionCommitted }

// Record attempts to commit one event: hash, transmit, persist, advance.
// On any transmit failure the event is dropped and the state is left
// completely unchanged, so an identical later detection retries with the
// same seqNo and prevHash.
func (c *Chain) Record(ctx context.Context, t EventType, payload *FieldSet) bool {
	nextSeq := c.seqNo + 1
	ts := c.clock().Unix()

	// Hash input: envelope identity fields plus the payload fields, one
	// canonical object. The eventHash itself is never part of its own input.
	input := payload.Clone().
		PutString("instanceId", c.instanceID).
		PutString("eventType", string(t)).
		PutString("prevHash", c.lastHash).
		PutUint("seqNo", nextSeq).
		PutInt("timestamp", ts)
	eventHash := Digest(input.Encode())

	env := &Envelope{
		EventType: string(t),
		SeqNo:     nextSeq,
		PrevHash:  c.lastHash,
		EventHash: eventHash,
		Timestamp: ts,
		Payload:   json.RawMessage(payload.Encode()),
	}

	if !c.tx.Send(ctx, env) {
		// DROPPED: no seqNo increment, no hash update, no persistence write.
		infra.GlobalMetrics.RecordDrop()
		c.logger.Warn("event dropped on transmit failure",
			slog.String("eventType", string(t)),
			slog.Uint64("seqNo", nextSeq))
		return false
	}

	// COMMITTED: persist, then advance in-memory state.
	if err := c.store.SaveChainState(c.instanceID, nextSeq, eventHash); err != nil {
		// Surfaced but non-fatal: the remote copy is committed; the
		// max-reconciliation rule covers the next reload.
		infra.GlobalMetrics.RecordPersistFailure()
		c.logger.Error("chain state persist failed",
			slog.Uint64("seqNo", nextSeq),
			slog.String("class", domain.ClassOf(err).String()),
			slog.Any("error", err))
	}
	if err := c.store.AppendJournal(env); err != nil {
		c.logger.Warn("journal append failed", slog.Uint64("seqNo", nextSeq), slog.Any("error", err))
	}

	c.seqNo = nextSeq
	c.lastHash = eventHash
	infra.GlobalMetrics.RecordCommit()

	c.logger.Info("event committed",
		slog.String("eventType", string(t)),
		slog.Uint64("seqNo", nextSeq),
		slog.String("eventHash", eventHash))
	return true
}

// StartSession attempts the one SESSION_START of this process lifetime.
// Returns false without transmitting if it was already attempted.
func (c *Chain) StartSession(ctx context.Context, payload *FieldSet) bool {
	if c.sessionTried {
		return false
	}
	c.sessionTried = true
	c.sessionCommitted = c.Record(ctx, EventSessionStart, payload)
	return c.sessionCommitted
}

// EndSession emits a best-effort SESSION_END. Skipped when SESSION_START
// was never committed, to avoid a dangling end for an unrecorded session.
func (c *Chain) EndSession(ctx context.Context, payload *FieldSet) bool {
	if !c.sessionCommitted {
		c.logger.Debug("session end skipped: session start was never committed")
		return false
	}
	return c.Record(ctx, EventSessionEnd, payload)
}
