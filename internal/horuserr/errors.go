// Package horuserr defines the closed error taxonomy every HORUS subsystem
// wraps its failures in, grouped by the kinds in spec §7.
package horuserr

import (
	"errors"
	"fmt"
)

// Kind categorizes a HORUS error for introspection and for callers that need
// to branch on error category without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindTopology
	KindMemory
	KindConcurrency
	KindLifecycle
	KindSession
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTopology:
		return "topology"
	case KindMemory:
		return "memory"
	case KindConcurrency:
		return "concurrency"
	case KindLifecycle:
		return "lifecycle"
	case KindSession:
		return "session"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per named failure in spec §7. Use errors.Is against
// these, or wrap with Wrap/Wrapf to attach context while keeping Is working.
var (
	// Topology
	ErrTopicConflict    = sentinel(KindTopology, "topic conflict")
	ErrMultipleProducers = sentinel(KindTopology, "multiple producers")
	ErrTopicNotFound    = sentinel(KindTopology, "topic not found")

	// Memory
	ErrLayoutMismatch   = sentinel(KindMemory, "layout mismatch")
	ErrTypeMismatch     = sentinel(KindMemory, "type mismatch")
	ErrCapacityMismatch = sentinel(KindMemory, "capacity mismatch")
	ErrMappingFailed    = sentinel(KindMemory, "mapping failed")

	// Concurrency
	ErrOverrun  = sentinel(KindConcurrency, "consumer overrun")
	ErrNoUpdate = sentinel(KindConcurrency, "no update")

	// Lifecycle
	ErrNodeInitFailed     = sentinel(KindLifecycle, "node init failed")
	ErrNodeTickFailed     = sentinel(KindLifecycle, "node tick failed")
	ErrNodeShutdownFailed = sentinel(KindLifecycle, "node shutdown failed")
	ErrNodeNameConflict   = sentinel(KindLifecycle, "node name conflict")
	ErrDeadlineMiss       = sentinel(KindLifecycle, "deadline miss")
	ErrWatchdogExpired    = sentinel(KindLifecycle, "watchdog expired")
	ErrCircuitOpen        = sentinel(KindLifecycle, "circuit open")

	// Session
	ErrSessionNotFound = sentinel(KindSession, "session not found")
	ErrSessionCorrupt  = sentinel(KindSession, "session corrupt")

	// Internal
	ErrPanic    = sentinel(KindInternal, "panic recovered")
	ErrInternal = sentinel(KindInternal, "internal error")
)

// horusError carries a Kind alongside the sentinel message so Kind() survives
// fmt.Errorf("%w", ...) wrapping via errors.As.
type horusError struct {
	kind Kind
	msg  string
}

func (e *horusError) Error() string { return e.msg }

func sentinel(kind Kind, msg string) error {
	return &horusError{kind: kind, msg: msg}
}

// KindOf extracts the Kind from an error produced by this package, walking
// the wrap chain. Returns KindUnknown if err did not originate here.
func KindOf(err error) Kind {
	var he *horusError
	if errors.As(err, &he) {
		return he.kind
	}
	return KindUnknown
}

// Wrap attaches context to a sentinel error while preserving errors.Is/As.
func Wrap(sentinelErr error, context string) error {
	return fmt.Errorf("%s: %w", context, sentinelErr)
}

// Wrapf is Wrap with a formatted context string.
func Wrapf(sentinelErr error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinelErr)
}
