package domain

import "errors"

// FailureClass partitions audit-trail failures for logging and metrics.
// None of these are ever fatal to the supervised process.
type FailureClass int

const (
	FailureTransmission FailureClass = iota // timeout, connect error, non-2xx
	FailureRecovery                         // no prior state / authority unreachable
	FailureConfiguration                    // auth rejected, outbound calls disallowed
	FailurePersistence                      // local read/write error
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransmission:
		return "transmission"
	case FailureRecovery:
		return "recovery"
	case FailureConfiguration:
		return "configuration"
	case FailurePersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Classified is implemented by errors that carry a FailureClass.
type Classified interface {
	error
	Class() FailureClass
}

// ClassOf extracts the failure class of an error, defaulting to transmission.
func ClassOf(err error) FailureClass {
	var ce Classified
	if errors.As(err, &ce) {
		return ce.Class()
	}
	return FailureTransmission
}

// TransmissionError wraps a failed event send. The event is dropped, never
// queued; the chain state stays untouched.
type TransmissionError struct {
	Op  string // "post", "status", "read"
	Err error
}

func (e *TransmissionError) Error() string {
	return "transmission error [" + e.Op + "]: " + e.Err.Error()
}

func (e *TransmissionError) Class() FailureClass { return FailureTransmission }

func (e *TransmissionError) Unwrap() error { return e.Err }

// ConfigError represents a configuration-class failure (bad secret,
// outbound calls not authorized). Carries remediation text for the log.
type ConfigError struct {
	Field  string
	Remedy string
	Err    error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Class() FailureClass { return FailureConfiguration }

func (e *ConfigError) Unwrap() error { return e.Err }

// PersistenceError surfaces a local store failure. The commit still stands;
// the max-reconciliation rule on reload is the remaining safety net.
type PersistenceError struct {
	Channel string // "primary" or "secondary"
	Err     error
}

func (e *PersistenceError) Error() string {
	return "persistence error [" + e.Channel + "]: " + e.Err.Error()
}

func (e *PersistenceError) Class() FailureClass { return FailurePersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

var (
	// ErrNoPriorState is returned when neither the local stores nor the
	// remote authority know this instance. The caller starts from genesis.
	ErrNoPriorState = errors.New("no prior chain state")

	// ErrAuthRejected is returned on 401/403 from the ingest endpoint.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrConfigNotFound is returned when the configuration file is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)
