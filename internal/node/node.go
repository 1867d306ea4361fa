// Package node defines the node lifecycle state machine and the tick
// contract every HORUS node implements (spec §2, §3 "Node").
//
// Grounded on kernel/threads/supervisor/base.go's BaseSupervisor lifecycle
// (Start/Stop over a context.Context), narrowed from that interface's wide
// cognitive-role surface (Learn/Optimize/Predict/Coordinate, all
// ML-supervisor concerns out of scope here) down to the three lifecycle
// hooks a HORUS node actually has: Init, Tick, Shutdown.
package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/horuslog"
)

// State is a node's lifecycle state (spec §3 "Node" state machine).
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StatePaused
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node is the contract every schedulable unit implements.
type Node interface {
	Name() string
	Init(ctx context.Context) error
	Tick(tc *TickContext) error
	Shutdown(ctx context.Context) error
}

// TickContext carries everything a node's Tick needs without it reaching
// into scheduler internals: a logger scoped to this node, the tick's
// sequence number, and how long the previous tick took.
type TickContext struct {
	Context     context.Context
	Log         *horuslog.Logger
	Sequence    uint64
	LastLatency time.Duration
	DeadlineAt  time.Time
}

// TickFailed wraps a node's Tick error (or a recovered panic) with the
// node name and tick sequence, per spec §7 NodeTickFailed.
type TickFailed struct {
	NodeName string
	Sequence uint64
	Panicked bool
	Err      error
}

func (e *TickFailed) Error() string {
	if e.Panicked {
		return fmt.Sprintf("node %s tick %d panicked: %v", e.NodeName, e.Sequence, e.Err)
	}
	return fmt.Sprintf("node %s tick %d failed: %v", e.NodeName, e.Sequence, e.Err)
}

func (e *TickFailed) Unwrap() error { return e.Err }

// DefaultMaxFailures is the error-streak length (spec §4.6 "max_failures")
// a node may accumulate across consecutive failed ticks before its
// Runtime transitions to StateError, used whenever NewRuntime is given a
// zero threshold.
const DefaultMaxFailures = 5

// Runtime wraps a Node with the CAS-guarded lifecycle state machine and
// the panic boundary that converts a recovered panic from user Tick code
// into a TickFailed rather than crashing the whole scheduler process.
type Runtime struct {
	node        Node
	state       int32
	log         *horuslog.Logger
	seq         uint64
	failStreak  uint32
	maxFailures uint32
}

// NewRuntime wraps node in a lifecycle Runtime, logging under its name.
// maxFailures is the consecutive-failure streak (spec §4.6 "max_failures")
// that trips the node into StateError; a zero value falls back to
// DefaultMaxFailures.
func NewRuntime(n Node, maxFailures uint32) *Runtime {
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Runtime{node: n, state: int32(StateUninitialized), log: horuslog.Default(n.Name()), maxFailures: maxFailures}
}

// Name returns the wrapped node's name.
func (r *Runtime) Name() string { return r.node.Name() }

// Log returns this node's scoped logger, so callers (the scheduler) can
// attach a shared sink after construction.
func (r *Runtime) Log() *horuslog.Logger { return r.log }

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(atomic.LoadInt32(&r.state)) }

func (r *Runtime) transition(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

// Init runs the node's Init hook and transitions Uninitialized→Running on
// success, or →Error on failure. Init may only be called once.
func (r *Runtime) Init(ctx context.Context) error {
	if !r.transition(StateUninitialized, StateRunning) {
		return horuserr.Wrapf(horuserr.ErrNodeInitFailed, "node %s: Init called from state %s", r.Name(), r.State())
	}
	if err := r.node.Init(ctx); err != nil {
		atomic.StoreInt32(&r.state, int32(StateError))
		return horuserr.Wrapf(horuserr.ErrNodeInitFailed, "node %s: %v", r.Name(), err)
	}
	return nil
}

// Pause transitions Running→Paused. A paused node is skipped by the
// scheduler's tick loop but keeps its topic subscriptions live.
func (r *Runtime) Pause() error {
	if !r.transition(StateRunning, StatePaused) {
		return horuserr.Wrapf(horuserr.ErrNodeInitFailed, "node %s: Pause called from state %s", r.Name(), r.State())
	}
	return nil
}

// Resume transitions Paused→Running.
func (r *Runtime) Resume() error {
	if !r.transition(StatePaused, StateRunning) {
		return horuserr.Wrapf(horuserr.ErrNodeInitFailed, "node %s: Resume called from state %s", r.Name(), r.State())
	}
	return nil
}

// Tick runs one scheduling cycle of the node, recovering any panic inside
// the node's Tick method and converting it to a *TickFailed rather than
// letting it cross into the scheduler's single-threaded loop.
func (r *Runtime) Tick(ctx context.Context, lastLatency time.Duration, deadline time.Time) (err error) {
	if r.State() != StateRunning {
		return horuserr.Wrapf(horuserr.ErrNodeTickFailed, "node %s: Tick called from state %s", r.Name(), r.State())
	}

	seq := atomic.AddUint64(&r.seq, 1)
	tc := &TickContext{Context: ctx, Log: r.log, Sequence: seq, LastLatency: lastLatency, DeadlineAt: deadline}

	defer func() {
		if p := recover(); p != nil {
			r.recordFailure()
			err = &TickFailed{NodeName: r.Name(), Sequence: seq, Panicked: true, Err: fmt.Errorf("%v", p)}
		}
	}()

	if tickErr := r.node.Tick(tc); tickErr != nil {
		r.recordFailure()
		return &TickFailed{NodeName: r.Name(), Sequence: seq, Err: tickErr}
	}
	atomic.StoreUint32(&r.failStreak, 0)
	return nil
}

// recordFailure advances the error streak and, once it reaches
// maxFailures, transitions the node to StateError (spec §4.6 step 2e). A
// streak below threshold leaves the node Running so the scheduler keeps
// ticking it.
func (r *Runtime) recordFailure() {
	if atomic.AddUint32(&r.failStreak, 1) >= r.maxFailures {
		atomic.StoreInt32(&r.state, int32(StateError))
	}
}

// Recover transitions a node out of Error back to Running, for the
// scheduler's circuit-breaker half-open retry path, resetting its error
// streak so the node gets a fresh run of maxFailures before tripping again.
func (r *Runtime) Recover() bool {
	if r.transition(StateError, StateRunning) {
		atomic.StoreUint32(&r.failStreak, 0)
		return true
	}
	return false
}

// Shutdown runs the node's Shutdown hook and transitions to Stopped
// regardless of its prior state (Stopped is terminal and reachable from
// any state, including Error).
func (r *Runtime) Shutdown(ctx context.Context) error {
	prev := r.State()
	atomic.StoreInt32(&r.state, int32(StateStopped))
	if prev == StateStopped {
		return nil
	}
	if err := r.node.Shutdown(ctx); err != nil {
		return horuserr.Wrapf(horuserr.ErrNodeShutdownFailed, "node %s: %v", r.Name(), err)
	}
	return nil
}
