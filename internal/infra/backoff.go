package infra

import (
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// Backoff is the reconnect delay policy for long-lived upstream connections:
// exponential ramp from backoffBase, holding at backoffCap until Reset. An
// unreachable endpoint is retried forever at the cap; only a healthy
// connection returns the ramp to the base. Not safe for concurrent use; each
// connection loop owns its own value.
type Backoff struct {
	attempt int
}

// Next returns the delay to wait before the next connection attempt.
func (b *Backoff) Next() time.Duration {
	// 1<<6 seconds already exceeds the cap.
	d := backoffCap
	if b.attempt < 6 {
		d = backoffBase << b.attempt
	}
	b.attempt++
	return d
}

// Reset returns the ramp to the base delay after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
