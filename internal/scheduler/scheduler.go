// Package scheduler implements the single-threaded cooperative tick
// scheduler (spec §4.5): nodes are ordered (priority ascending,
// insertion order ascending as the tiebreak) and ticked one at a time on
// one goroutine, each gated by its own rate, watched by a deadline timer
// and a per-node circuit breaker, with graceful shutdown on SIGINT/SIGTERM.
//
// Grounded on kernel/utils/graceful.go's GracefulShutdown (LIFO shutdown
// fan-out under a timeout, reused here almost unchanged for node
// shutdown) and kernel/threads/supervisor/base.go's lifecycle contract,
// narrowed from a multi-goroutine supervisor pool to one cooperative loop
// per spec §4.5's explicit single-threaded scheduling model.
package scheduler

import (
	"context"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/horus-robotics/horus/internal/heartbeat"
	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/horuslog"
	"github.com/horus-robotics/horus/internal/node"
)

// Defaults for a node's circuit breaker backoff, overridable per node via
// Config.
const (
	DefaultBreakerBase          = 100 * time.Millisecond
	DefaultBreakerMax           = 30 * time.Second
	DefaultBreakerFailThreshold = 5
)

// Config describes one node's scheduling parameters (spec §4.5).
type Config struct {
	Node        node.Node
	Priority    int
	RateHz      float64       // ticks/second; 0 means "every scheduler cycle"
	Deadline    time.Duration // 0 disables deadline-miss accounting
	Watchdog    time.Duration // 0 disables the watchdog
	BreakerMin  time.Duration
	BreakerMax  time.Duration
	MaxFailures uint32          // consecutive failed ticks before StateError; 0 uses DefaultBreakerFailThreshold
	Heartbeat   *heartbeat.Cell // fed once per successful tick; nil disables heartbeat tracking
}

// entry is a scheduled node plus its bookkeeping. Fields read/written only
// from the scheduler's own goroutine need no synchronization; the fields
// under mu are also read by GetNodeStats/GetAllNodes from other goroutines.
type entry struct {
	cfg      Config
	runtime  *node.Runtime
	order    int // insertion order, used as the stable tiebreak
	period   time.Duration
	nextTick time.Time
	breaker  *breakerBackoff

	mu            sync.Mutex
	lastLatency   time.Duration
	lastFedAt     time.Time // last successful tick, for watchdog-gap checks (spec §4.6 step 2f)
	hung          bool      // true once the watchdog has tripped, until the next successful tick
	tickCount     uint64
	deadlineMiss  uint64
	watchdogTrips uint64
}

// NodeStats is the introspection snapshot for one node (spec §4.5
// "get_node_stats").
type NodeStats struct {
	Name          string
	State         node.State
	TickCount     uint64
	DeadlineMiss  uint64
	WatchdogTrips uint64
	LastLatency   time.Duration
	BreakerState  gobreaker.State
}

// Scheduler runs every registered node's Tick in priority order on one
// goroutine, forever, until Run's context is canceled or a shutdown
// signal arrives.
type Scheduler struct {
	log     *horuslog.Logger
	logSink horuslog.Sink
	mu      sync.Mutex
	entries []*entry
	nextOrd int
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{log: horuslog.Default("scheduler")}
}

// SetLogSink attaches sink to the scheduler's own logger and to every
// registered node's logger (retroactively, and for every node registered
// afterward), so Warn/Error records from anywhere in the tick loop reach
// the same Log Buffer regardless of registration order (spec §4.7).
func (s *Scheduler) SetLogSink(sink horuslog.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSink = sink
	s.log.SetSink(sink)
	for _, e := range s.entries {
		e.runtime.Log().SetSink(sink)
	}
}

// Register adds a node to the schedule. Safe to call before Run, or from
// within a running Tick to add nodes dynamically; new nodes join the
// ordering on the next cycle.
func (s *Scheduler) Register(cfg Config) error {
	if cfg.Node == nil {
		return horuserr.Wrapf(horuserr.ErrNodeInitFailed, "scheduler: Config.Node is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.cfg.Node.Name() == cfg.Node.Name() {
			return horuserr.Wrapf(horuserr.ErrNodeNameConflict, "%s", cfg.Node.Name())
		}
	}

	base, max := cfg.BreakerMin, cfg.BreakerMax
	if base == 0 {
		base = DefaultBreakerBase
	}
	if max == 0 {
		max = DefaultBreakerMax
	}

	var period time.Duration
	if cfg.RateHz > 0 {
		period = time.Duration(float64(time.Second) / cfg.RateHz)
	}

	failThreshold := cfg.MaxFailures
	if failThreshold == 0 {
		failThreshold = DefaultBreakerFailThreshold
	}

	name := cfg.Node.Name()
	e := &entry{
		cfg:     cfg,
		runtime: node.NewRuntime(cfg.Node, failThreshold),
		order:   s.nextOrd,
		period:  period,
		breaker: newBreakerBackoff(name, base, max, failThreshold, func(_ string, from, to gobreaker.State) {
			s.log.Warn("circuit breaker state change", horuslog.String("node", name), horuslog.String("from", from.String()), horuslog.String("to", to.String()))
		}),
	}
	if s.logSink != nil {
		e.runtime.Log().SetSink(s.logSink)
	}
	s.nextOrd++
	s.entries = append(s.entries, e)
	s.sortLocked()
	return nil
}

func (s *Scheduler) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		if s.entries[i].cfg.Priority != s.entries[j].cfg.Priority {
			return s.entries[i].cfg.Priority < s.entries[j].cfg.Priority
		}
		return s.entries[i].order < s.entries[j].order
	})
}

func (s *Scheduler) snapshot() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Init runs Init on every registered node, in schedule order, stopping at
// the first failure.
func (s *Scheduler) Init(ctx context.Context) error {
	for _, e := range s.snapshot() {
		if err := e.runtime.Init(ctx); err != nil {
			return err
		}
		e.mu.Lock()
		e.lastFedAt = time.Now()
		e.mu.Unlock()
	}
	return nil
}

// Run drives the cooperative tick loop until ctx is canceled or a
// SIGINT/SIGTERM arrives, then shuts every node down gracefully. cycle is
// the scheduler's own polling granularity: how often it wakes up to check
// whether any node's next tick is due.
func (s *Scheduler) Run(ctx context.Context, cycle time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cycle <= 0 {
		cycle = time.Millisecond
	}
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	s.log.Info("scheduler running", horuslog.Int("nodes", len(s.snapshot())))

	for {
		select {
		case <-sigCtx.Done():
			s.log.Info("scheduler shutting down")
			return s.shutdownAll(context.Background(), 10*time.Second)
		case now := <-ticker.C:
			s.runDueNodes(sigCtx, now)
		}
	}
}

func (s *Scheduler) runDueNodes(ctx context.Context, now time.Time) {
	for _, e := range s.snapshot() {
		s.checkWatchdog(e, now)

		if e.runtime.State() != node.StateRunning {
			if e.runtime.State() == node.StateError && e.breaker.State() != gobreaker.StateOpen {
				e.runtime.Recover()
			}
			continue
		}
		if !e.nextTick.IsZero() && now.Before(e.nextTick) {
			continue
		}
		s.tickOne(ctx, e, now)
	}
}

// checkWatchdog measures the gap since this node's last successful tick
// and marks it hung once that gap exceeds Watchdog (spec §4.6 step 2f,
// GLOSSARY "watchdog"). Run on every scheduling pass — including rounds
// where the node is currently skipped, e.g. because its circuit breaker
// is open — not just the passes where it actually ticks.
func (s *Scheduler) checkWatchdog(e *entry, now time.Time) {
	if e.cfg.Watchdog <= 0 {
		return
	}

	e.mu.Lock()
	fed := e.lastFedAt
	alreadyHung := e.hung
	if fed.IsZero() || now.Sub(fed) <= e.cfg.Watchdog || alreadyHung {
		e.mu.Unlock()
		return
	}
	e.watchdogTrips++
	e.hung = true
	e.mu.Unlock()

	s.log.Error("node watchdog expired", horuslog.String("node", e.cfg.Node.Name()), horuslog.Duration("since_last_tick", now.Sub(fed)), horuslog.Err(horuserr.ErrWatchdogExpired))
}

func (s *Scheduler) tickOne(ctx context.Context, e *entry, now time.Time) {
	if e.period > 0 {
		if e.nextTick.IsZero() {
			e.nextTick = now
		}
		e.nextTick = e.nextTick.Add(e.period)
	}

	var deadline time.Time
	if e.cfg.Deadline > 0 {
		deadline = now.Add(e.cfg.Deadline)
	}

	start := time.Now()
	tickErr := e.breaker.Allow(func() error {
		return e.runtime.Tick(ctx, e.lastLatency, deadline)
	})
	latency := time.Since(start)

	e.mu.Lock()
	e.lastLatency = latency
	e.tickCount++
	missedDeadline := e.cfg.Deadline > 0 && latency > e.cfg.Deadline
	if missedDeadline {
		e.deadlineMiss++
	}
	if tickErr == nil {
		e.lastFedAt = now
		e.hung = false
	}
	e.mu.Unlock()

	if missedDeadline {
		s.log.Warn("node missed tick deadline",
			horuslog.String("node", e.cfg.Node.Name()),
			horuslog.Duration("latency", latency),
			horuslog.Duration("deadline", e.cfg.Deadline),
			horuslog.Uint64("tick", e.tickCount),
			horuslog.Uint32("tick_us", uint32(latency.Microseconds())),
			horuslog.Err(horuserr.ErrDeadlineMiss))
	}

	if tickErr != nil {
		if horuserr.KindOf(tickErr) != horuserr.KindOf(horuserr.ErrCircuitOpen) {
			s.log.Error("node tick failed",
				horuslog.String("node", e.cfg.Node.Name()),
				horuslog.Uint64("tick", e.tickCount),
				horuslog.Uint32("tick_us", uint32(latency.Microseconds())),
				horuslog.Err(tickErr))
		}
		if e.cfg.Heartbeat != nil {
			e.cfg.Heartbeat.RecordError(uint8(e.runtime.State()))
		}
		return
	}

	if e.breaker.Backoff() {
		e.breaker.Reset()
	}
	if e.cfg.Heartbeat != nil {
		e.cfg.Heartbeat.Beat(uint8(e.runtime.State()), latency)
	}
}

func (s *Scheduler) shutdownAll(ctx context.Context, timeout time.Duration) error {
	entries := s.snapshot()
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.runtime.Shutdown(shutdownCtx); err != nil {
				errs <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.log.Warn("shutdown timed out waiting for nodes")
	}
	close(errs)

	var first error
	for err := range errs {
		s.log.Error("node shutdown failed", horuslog.Err(err))
		if first == nil {
			first = err
		}
	}
	return first
}

// GetNodeStats returns the introspection snapshot for one node (spec
// §4.5 "get_node_stats").
func (s *Scheduler) GetNodeStats(name string) (NodeStats, error) {
	for _, e := range s.snapshot() {
		if e.cfg.Node.Name() != name {
			continue
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return NodeStats{
			Name:          name,
			State:         e.runtime.State(),
			TickCount:     e.tickCount,
			DeadlineMiss:  e.deadlineMiss,
			WatchdogTrips: e.watchdogTrips,
			LastLatency:   e.lastLatency,
			BreakerState:  e.breaker.State(),
		}, nil
	}
	return NodeStats{}, horuserr.Wrapf(horuserr.ErrTopicNotFound, "node %s", name)
}

// GetAllNodes returns the introspection snapshot for every node (spec
// §4.5 "get_all_nodes").
func (s *Scheduler) GetAllNodes() []NodeStats {
	entries := s.snapshot()
	out := make([]NodeStats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, NodeStats{
			Name:          e.cfg.Node.Name(),
			State:         e.runtime.State(),
			TickCount:     e.tickCount,
			DeadlineMiss:  e.deadlineMiss,
			WatchdogTrips: e.watchdogTrips,
			LastLatency:   e.lastLatency,
			BreakerState:  e.breaker.State(),
		})
		e.mu.Unlock()
	}
	return out
}

// GetNodeNames returns every registered node's name in schedule order
// (spec §4.5 "get_node_names").
func (s *Scheduler) GetNodeNames() []string {
	entries := s.snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.cfg.Node.Name()
	}
	return names
}

// SetNodeRate updates a node's tick rate at runtime (spec §4.5
// "set_node_rate").
func (s *Scheduler) SetNodeRate(name string, rateHz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.cfg.Node.Name() != name {
			continue
		}
		e.cfg.RateHz = rateHz
		if rateHz > 0 {
			e.period = time.Duration(float64(time.Second) / rateHz)
		} else {
			e.period = 0
		}
		e.nextTick = time.Time{}
		return nil
	}
	return horuserr.Wrapf(horuserr.ErrTopicNotFound, "node %s", name)
}

// SetNodeDeadline updates a node's deadline at runtime (spec §4.5
// "set_node_deadline").
func (s *Scheduler) SetNodeDeadline(name string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.cfg.Node.Name() != name {
			continue
		}
		e.cfg.Deadline = d
		return nil
	}
	return horuserr.Wrapf(horuserr.ErrTopicNotFound, "node %s", name)
}

// SetNodeWatchdog updates a node's watchdog timeout at runtime (spec
// §4.5 "set_node_watchdog").
func (s *Scheduler) SetNodeWatchdog(name string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.cfg.Node.Name() != name {
			continue
		}
		e.cfg.Watchdog = d
		return nil
	}
	return horuserr.Wrapf(horuserr.ErrTopicNotFound, "node %s", name)
}
