package link

import (
	"testing"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/stretchr/testify/require"
)

func TestReadNeverFailsBeforePublish(t *testing.T) {
	l := OpenAnonymous(16, 1)
	defer l.Close()

	buf := make([]byte, 16)
	n, gen, err := l.Read(buf)
	require.NoError(t, err, "Read before publish should never fail")
	require.EqualValues(t, 0, gen, "expected generation 0 before any publish")
	require.Equal(t, 16, n, "expected n=16 (zeroed slot)")
}

func TestPublishThenReadLatestValue(t *testing.T) {
	l := OpenAnonymous(16, 1)
	defer l.Close()

	require.NoError(t, l.Publish(100, []byte("pose-1")))
	require.NoError(t, l.Publish(100, []byte("pose-2")))

	buf := make([]byte, 16)
	n, gen, err := l.Read(buf)
	require.NoError(t, err)
	require.EqualValues(t, 2, gen, "expected generation 2 after two publishes")
	require.Equal(t, "pose-2", string(buf[:n])[:6], "expected latest value pose-2 prefix")
}

func TestSecondProducerRejected(t *testing.T) {
	l := OpenAnonymous(8, 1)
	defer l.Close()

	require.NoError(t, l.Publish(1, []byte("a")), "first producer Publish")
	err := l.Publish(2, []byte("b"))
	require.Equal(t, horuserr.KindOf(horuserr.ErrMultipleProducers), horuserr.KindOf(err))
}

func TestSameProducerCanRepublish(t *testing.T) {
	l := OpenAnonymous(8, 1)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Publish(42, []byte{byte(i)}))
	}
	require.EqualValues(t, 5, l.Generation())
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	l := OpenAnonymous(4, 1)
	defer l.Close()

	err := l.Publish(1, make([]byte, 5))
	require.Equal(t, horuserr.KindOf(horuserr.ErrCapacityMismatch), horuserr.KindOf(err))
}
