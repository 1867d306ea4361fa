package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNeverBeatenIsNotAlive(t *testing.T) {
	c := OpenAnonymous("n1")
	defer c.Close()

	require.False(t, c.Alive(time.Hour), "expected a never-beaten cell to not be alive")
	require.EqualValues(t, 0, c.Read().TickCount)
}

func TestBeatUpdatesStatus(t *testing.T) {
	c := OpenAnonymous("n1")
	defer c.Close()

	c.Beat(1, time.Millisecond)
	c.Beat(1, 3*time.Millisecond)
	c.Beat(1, 2*time.Millisecond)

	s := c.Read()
	require.EqualValues(t, 3, s.TickCount)
	require.EqualValues(t, 1, s.State)
	require.EqualValues(t, "n1", s.NodeName)
	require.True(t, c.Alive(time.Minute), "expected recently beaten cell to be alive")
	require.NotZero(t, s.PID)
	require.NotZero(t, s.AvgTickUs)
}

func TestAliveRespectsMaxAge(t *testing.T) {
	c := OpenAnonymous("n1")
	defer c.Close()
	c.Beat(1, time.Millisecond)

	require.False(t, c.Alive(0), "expected cell to be stale with a zero max age")
}

func TestRecordErrorBumpsCount(t *testing.T) {
	c := OpenAnonymous("n1")
	defer c.Close()

	c.RecordError(3)
	c.RecordError(3)

	s := c.Read()
	require.EqualValues(t, 2, s.ErrorCount)
	require.EqualValues(t, 3, s.State)
	require.Zero(t, s.TickCount, "RecordError must not touch tick_count")
}
