package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsCommitted   atomic.Uint64
	eventsDropped     atomic.Uint64
	sendFailures      atomic.Uint64
	persistFailures   atomic.Uint64
	recoveryFallbacks atomic.Uint64
	ticksProcessed    atomic.Uint64

	// Latency tracking (send round-trips)
	sendLatencySumNs atomic.Int64
	sendLatencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCommit records a committed event.
func (m *Metrics) RecordCommit() {
	m.eventsCommitted.Add(1)
}

// RecordDrop records an event dropped on transmit failure.
func (m *Metrics) RecordDrop() {
	m.eventsDropped.Add(1)
}

// RecordSendFailure records a failed HTTP send.
func (m *Metrics) RecordSendFailure() {
	m.sendFailures.Add(1)
}

// RecordSendLatency records one send round-trip.
func (m *Metrics) RecordSendLatency(latencyNs int64) {
	m.sendLatencySumNs.Add(latencyNs)
	m.sendLatencyCount.Add(1)
}

// RecordPersistFailure records a local persistence failure.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Add(1)
}

// RecordRecoveryFallback records a startup that fell back to genesis.
func (m *Metrics) RecordRecoveryFallback() {
	m.recoveryFallbacks.Add(1)
}

// RecordTick records one detector tick.
func (m *Metrics) RecordTick() {
	m.ticksProcessed.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsCommitted   uint64
	EventsDropped     uint64
	SendFailures      uint64
	PersistFailures   uint64
	RecoveryFallbacks uint64
	TicksProcessed    uint64
	AvgSendLatencyNs  int64
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.sendLatencyCount.Load()
	if count > 0 {
		avgLatency = m.sendLatencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsCommitted:   m.eventsCommitted.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		SendFailures:      m.sendFailures.Load(),
		PersistFailures:   m.persistFailures.Load(),
		RecoveryFallbacks: m.recoveryFallbacks.Load(),
		TicksProcessed:    m.ticksProcessed.Load(),
		AvgSendLatencyNs:  avgLatency,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsCommitted.Store(0)
	m.eventsDropped.Store(0)
	m.sendFailures.Store(0)
	m.persistFailures.Store(0)
	m.recoveryFallbacks.Store(0)
	m.ticksProcessed.Store(0)
	m.sendLatencySumNs.Store(0)
	m.sendLatencyCount.Store(0)
}
