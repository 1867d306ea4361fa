package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	name           string
	initErr        error
	tickErr        error
	panicTick      bool
	shutdownCalled bool
}

func (f *fakeNode) Name() string                   { return f.name }
func (f *fakeNode) Init(ctx context.Context) error { return f.initErr }
func (f *fakeNode) Tick(tc *TickContext) error {
	if f.panicTick {
		panic("boom")
	}
	return f.tickErr
}
func (f *fakeNode) Shutdown(ctx context.Context) error {
	f.shutdownCalled = true
	return nil
}

func TestLifecycleHappyPath(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1"}, 1)
	require.Equal(t, StateUninitialized, rt.State())
	require.NoError(t, rt.Init(context.Background()))
	require.Equal(t, StateRunning, rt.State())
	require.NoError(t, rt.Tick(context.Background(), 0, time.Now()))
	require.NoError(t, rt.Shutdown(context.Background()))
	require.Equal(t, StateStopped, rt.State())
}

func TestInitFailureTransitionsToError(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1", initErr: errors.New("boom")}, 1)
	require.Error(t, rt.Init(context.Background()))
	require.Equal(t, StateError, rt.State())
}

func TestTickBeforeInitFails(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1"}, 1)
	err := rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, horuserr.KindOf(horuserr.ErrNodeTickFailed), horuserr.KindOf(err))
}

func TestPanicInTickConvertsToTickFailed(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1", panicTick: true}, 1)
	_ = rt.Init(context.Background())

	err := rt.Tick(context.Background(), 0, time.Now())
	var tf *TickFailed
	require.ErrorAs(t, err, &tf)
	require.True(t, tf.Panicked)
	require.Equal(t, StateError, rt.State(), "maxFailures=1 trips Error on the first panic")
}

func TestFailureStreakBelowThresholdStaysRunning(t *testing.T) {
	fn := &fakeNode{name: "n1", tickErr: errors.New("fail")}
	rt := NewRuntime(fn, 3)
	_ = rt.Init(context.Background())

	_ = rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, StateRunning, rt.State(), "one failure below maxFailures=3 should not trip Error")
	_ = rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, StateRunning, rt.State(), "two failures below maxFailures=3 should not trip Error")

	fn.tickErr = nil
	require.NoError(t, rt.Tick(context.Background(), 0, time.Now()), "a success in between resets the streak")

	fn.tickErr = errors.New("fail")
	_ = rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, StateRunning, rt.State(), "streak was reset by the intervening success")
}

func TestRecoverFromError(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1", tickErr: errors.New("fail")}, 2)
	_ = rt.Init(context.Background())

	_ = rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, StateRunning, rt.State(), "first failure below maxFailures=2 should not trip Error")

	_ = rt.Tick(context.Background(), 0, time.Now())
	require.Equal(t, StateError, rt.State(), "second consecutive failure reaches maxFailures=2")

	require.True(t, rt.Recover(), "expected Recover to succeed from Error")
	require.Equal(t, StateRunning, rt.State())
}

func TestPauseResume(t *testing.T) {
	rt := NewRuntime(&fakeNode{name: "n1"}, 1)
	_ = rt.Init(context.Background())
	require.NoError(t, rt.Pause())
	require.Equal(t, StatePaused, rt.State())
	require.NoError(t, rt.Resume())
	require.Equal(t, StateRunning, rt.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	fn := &fakeNode{name: "n1"}
	rt := NewRuntime(fn, 1)
	_ = rt.Init(context.Background())
	require.NoError(t, rt.Shutdown(context.Background()), "first Shutdown")
	require.NoError(t, rt.Shutdown(context.Background()), "second Shutdown")
}
