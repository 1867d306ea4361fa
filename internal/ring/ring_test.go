package ring

import (
	"testing"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/stretchr/testify/require"
)

func TestPublishAndConsumeInOrder(t *testing.T) {
	r, err := OpenAnonymous(8, 32, 1)
	require.NoError(t, err)
	defer r.Close()

	cur := r.NewCursor()

	_, err = cur.Next(make([]byte, 32))
	require.ErrorIs(t, err, horuserr.ErrNoUpdate, "expected ErrNoUpdate before any publish")

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range msgs {
		require.NoError(t, r.Publish(m))
	}

	buf := make([]byte, 32)
	for i, want := range msgs {
		n, err := cur.Next(buf)
		require.NoError(t, err, "Next(%d)", i)
		require.Equal(t, string(want), string(buf[:n]))
	}

	_, err = cur.Next(buf)
	require.ErrorIs(t, err, horuserr.ErrNoUpdate, "expected ErrNoUpdate after draining")
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	r, err := OpenAnonymous(4, 8, 1)
	require.NoError(t, err)
	defer r.Close()

	err = r.Publish(make([]byte, 9))
	require.Equal(t, horuserr.KindOf(horuserr.ErrCapacityMismatch), horuserr.KindOf(err))
}

func TestOverrunDetectionAndResync(t *testing.T) {
	const capacity = 4
	r, err := OpenAnonymous(capacity, 8, 1)
	require.NoError(t, err)
	defer r.Close()

	cur := r.NewCursor()

	// Publish far more than capacity without the cursor ever reading, so
	// the cursor's next expected slot gets overwritten multiple times.
	for i := 0; i < capacity*3; i++ {
		require.NoError(t, r.Publish([]byte{byte(i)}))
	}

	buf := make([]byte, 8)
	_, err = cur.Next(buf)
	require.ErrorIs(t, err, horuserr.ErrOverrun)
	require.EqualValues(t, 1, cur.Stats().MessagesDroppedByOverrun)

	// After resync the cursor should be able to make forward progress
	// again without repeatedly erroring.
	n, err := cur.Next(buf)
	require.NoError(t, err, "Next after resync")
	require.Equal(t, 1, n)
}

func TestMultipleIndependentConsumers(t *testing.T) {
	r, err := OpenAnonymous(8, 16, 1)
	require.NoError(t, err)
	defer r.Close()

	slow := r.NewCursor()
	fast := r.NewCursor()

	require.NoError(t, r.Publish([]byte("a")))
	require.NoError(t, r.Publish([]byte("b")))

	buf := make([]byte, 16)
	n, err := fast.Next(buf)
	require.NoError(t, err)
	require.Equal(t, "a", string(buf[:n]))

	n, err = fast.Next(buf)
	require.NoError(t, err)
	require.Equal(t, "b", string(buf[:n]))

	// The slow consumer hasn't read anything yet and should still see both
	// messages from the start, independent of fast's progress.
	n, err = slow.Next(buf)
	require.NoError(t, err)
	require.Equal(t, "a", string(buf[:n]))
}

func TestPendingReportsBacklogSize(t *testing.T) {
	r, err := OpenAnonymous(8, 8, 1)
	require.NoError(t, err)
	defer r.Close()

	cur := r.NewCursor()
	require.EqualValues(t, 0, cur.Pending())
	_ = r.Publish([]byte{1})
	_ = r.Publish([]byte{2})
	require.EqualValues(t, 2, cur.Pending())
}
