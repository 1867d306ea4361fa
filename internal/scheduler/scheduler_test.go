package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/node"
	"github.com/stretchr/testify/require"
)

type countingNode struct {
	name  string
	mu    sync.Mutex
	ticks int
	fail  bool
}

func (n *countingNode) Name() string                      { return n.name }
func (n *countingNode) Init(ctx context.Context) error     { return nil }
func (n *countingNode) Shutdown(ctx context.Context) error { return nil }
func (n *countingNode) Tick(tc *node.TickContext) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ticks++
	if n.fail {
		return context.DeadlineExceeded
	}
	return nil
}
func (n *countingNode) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ticks
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(Config{Node: &countingNode{name: "a"}}))
	err := s.Register(Config{Node: &countingNode{name: "a"}})
	require.Equal(t, horuserr.KindOf(horuserr.ErrNodeNameConflict), horuserr.KindOf(err))
}

func TestPriorityOrdering(t *testing.T) {
	s := New()
	_ = s.Register(Config{Node: &countingNode{name: "low"}, Priority: 10})
	_ = s.Register(Config{Node: &countingNode{name: "high"}, Priority: 0})
	_ = s.Register(Config{Node: &countingNode{name: "mid"}, Priority: 5})

	require.Equal(t, []string{"high", "mid", "low"}, s.GetNodeNames())
}

func TestRunTicksRegisteredNodes(t *testing.T) {
	s := New()
	n := &countingNode{name: "n"}
	require.NoError(t, s.Register(Config{Node: n}))
	require.NoError(t, s.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx, time.Millisecond))
	require.NotZero(t, n.count(), "expected node to have ticked at least once")
}

func TestGetNodeStatsUnknownNode(t *testing.T) {
	s := New()
	_, err := s.GetNodeStats("missing")
	require.Equal(t, horuserr.KindOf(horuserr.ErrTopicNotFound), horuserr.KindOf(err))
}

func TestSetNodeRateRejectsUnknownNode(t *testing.T) {
	s := New()
	err := s.SetNodeRate("missing", 10)
	require.Equal(t, horuserr.KindOf(horuserr.ErrTopicNotFound), horuserr.KindOf(err))
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	s := New()
	n := &countingNode{name: "flaky", fail: true}
	_ = s.Register(Config{Node: n, BreakerMin: time.Millisecond, BreakerMax: time.Millisecond})
	_ = s.Init(context.Background())

	for i := 0; i < DefaultBreakerFailThreshold+2; i++ {
		s.tickOne(context.Background(), s.entries[0], time.Now())
	}

	stats, err := s.GetNodeStats("flaky")
	require.NoError(t, err)
	tripped := stats.State == node.StateError || stats.BreakerState.String() != "closed"
	require.True(t, tripped, "expected breaker to have tripped or node to be in error, got state=%s breaker=%s", stats.State, stats.BreakerState)
}
