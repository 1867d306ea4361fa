package logbuffer

import (
	"errors"
	"testing"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/horuslog"
	"github.com/stretchr/testify/require"
)

func TestWriteLogAndTail(t *testing.T) {
	buf, err := OpenAnonymous(8)
	require.NoError(t, err)
	defer buf.Close()

	buf.WriteLog(horuslog.Info, "scheduler", "node started", nil)
	buf.WriteLog(horuslog.Error, "scheduler", "node tick failed", []horuslog.Field{horuslog.Err(errors.New("boom"))})

	cur := buf.Tail()
	r1, err := cur.Next()
	require.NoError(t, err)
	require.Equal(t, "scheduler", r1.NodeName)
	require.Equal(t, "node started", r1.Message)
	require.EqualValues(t, 1, r1.Seq)

	r2, err := cur.Next()
	require.NoError(t, err)
	require.Equal(t, horuslog.Error, r2.Kind)
	require.EqualValues(t, 2, r2.Seq)
}

func TestFollowOnlySeesFutureRecords(t *testing.T) {
	buf, err := OpenAnonymous(8)
	require.NoError(t, err)
	defer buf.Close()

	buf.WriteLog(horuslog.Info, "a", "before follow", nil)
	cur := buf.Follow()
	_, err = cur.Next()
	require.ErrorIs(t, err, horuserr.ErrNoUpdate)

	buf.WriteLog(horuslog.Info, "a", "after follow", nil)
	rec, err := cur.Next()
	require.NoError(t, err)
	require.Equal(t, "after follow", rec.Message)
}

func TestWriteLogCarriesTickContextFields(t *testing.T) {
	buf, err := OpenAnonymous(8)
	require.NoError(t, err)
	defer buf.Close()

	buf.WriteLog(horuslog.Warn, "heavy", "missed tick deadline", []horuslog.Field{
		horuslog.Uint64("tick", 42),
		horuslog.String("topic", "sensor.imu"),
		horuslog.Uint32("tick_us", 1500),
	})

	rec, err := buf.Tail().Next()
	require.NoError(t, err)
	require.EqualValues(t, 42, rec.Tick)
	require.Equal(t, "sensor.imu", rec.Topic)
	require.EqualValues(t, 1500, rec.TickUs)
}

func TestBufferNeverBlocksOnOverwrite(t *testing.T) {
	buf, err := OpenAnonymous(4)
	require.NoError(t, err)
	defer buf.Close()

	for i := 0; i < 100; i++ {
		buf.WriteLog(horuslog.Debug, "spam", "message", nil)
	}
}
