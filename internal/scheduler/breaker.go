package scheduler

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// breakerBackoff re-arms a sony/gobreaker.CircuitBreaker with a growing
// Timeout each time it reopens, implementing the exponential backoff spec
// §4.5 requires for a node stuck failing its ticks. gobreaker's
// Settings.Timeout is fixed at construction, so growing it means replacing
// the breaker instance rather than mutating one in place; this wrapper
// keeps that replacement invisible to callers.
type breakerBackoff struct {
	name        string
	base        time.Duration
	max         time.Duration
	openStreak  int
	cb          *gobreaker.CircuitBreaker
	onStateChg  func(name string, from, to gobreaker.State)
	failThreshold uint32
	pendingRearm  bool
}

func newBreakerBackoff(name string, base, max time.Duration, failThreshold uint32, onStateChg func(name string, from, to gobreaker.State)) *breakerBackoff {
	b := &breakerBackoff{name: name, base: base, max: max, onStateChg: onStateChg, failThreshold: failThreshold}
	b.arm(0)
	return b
}

func (b *breakerBackoff) arm(streak int) {
	b.openStreak = streak
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    b.name,
		Timeout: b.currentTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.onStateChg != nil {
				b.onStateChg(name, from, to)
			}
			if to == gobreaker.StateOpen {
				// Re-arm lazily on the next Allow call rather than from
				// inside this callback: gobreaker invokes OnStateChange
				// while still holding its own internal lock, and swapping
				// b.cb out from under that call would replace the very
				// breaker whose method is on the call stack.
				b.pendingRearm = true
			}
		},
	})
}

func (b *breakerBackoff) currentTimeout() time.Duration {
	d := b.base << uint(b.openStreak)
	if d > b.max || d <= 0 {
		d = b.max
	}
	return d
}

// Reset collapses the backoff back to its base timeout, used when a node
// successfully ticks again after recovering.
func (b *breakerBackoff) Reset() {
	b.arm(0)
}

// Backoff reports whether the breaker has reopened at least once since it
// was last reset, i.e. whether Reset would actually change anything. The
// scheduler uses this to call Reset only after a real trip-and-recover
// cycle (spec testable property S7: consecutive_failures collapses to 0
// after the first successful post-reopen tick) rather than on every tick.
func (b *breakerBackoff) Backoff() bool {
	return b.openStreak > 0
}

// Allow runs fn through the breaker, translating an open breaker into
// horuserr.ErrCircuitOpen.
func (b *breakerBackoff) Allow(fn func() error) error {
	if b.pendingRearm {
		b.pendingRearm = false
		b.arm(b.openStreak + 1)
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return horuserr.Wrapf(horuserr.ErrCircuitOpen, "node %s: %v", b.name, err)
	}
	return err
}

// State reports the underlying breaker's current state.
func (b *breakerBackoff) State() gobreaker.State {
	return b.cb.State()
}
