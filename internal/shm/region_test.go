package shm

import (
	"path/filepath"
	"testing"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/stretchr/testify/require"
)

func TestAnonymousRegionCreation(t *testing.T) {
	r := Anonymous(Options{
		Kind:            KindLink,
		PayloadSize:     256,
		TypeFingerprint: 42,
		Capacity:        1,
		SlotSize:        256,
	})
	defer r.Close()

	require.True(t, r.Owner, "Anonymous region should always be Owner")
	require.Len(t, r.Data(), HeaderSize+256)
	require.Len(t, r.Payload(), 256)
	h := r.Header()
	require.EqualValues(t, 42, h.TypeFingerprint)
	require.Equal(t, KindLink, h.Kind)
}

func TestCreateOrAttachFileBacked(t *testing.T) {
	dir := t.TempDir()

	opts := Options{Kind: KindRing, PayloadSize: 512, TypeFingerprint: 7, Capacity: 8, SlotSize: 64}

	r1, err := CreateOrAttach(dir, SubdirTopics, "sensor.imu", opts)
	require.NoError(t, err)
	require.True(t, r1.Owner, "first opener should be Owner")
	require.Equal(t, filepath.Join(dir, SubdirTopics, "sensor.imu"), r1.Path)
	r1.Close()

	r2, err := CreateOrAttach(dir, SubdirTopics, "sensor.imu", opts)
	require.NoError(t, err)
	defer r2.Close()
	require.False(t, r2.Owner, "second opener should not be Owner")
	require.EqualValues(t, 7, r2.Header().TypeFingerprint)
}

func TestCreateOrAttachTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Kind: KindRing, PayloadSize: 512, TypeFingerprint: 7, Capacity: 8, SlotSize: 64}

	r1, err := CreateOrAttach(dir, SubdirTopics, "t", opts)
	require.NoError(t, err)
	r1.Close()

	mismatched := opts
	mismatched.TypeFingerprint = 999
	_, err = CreateOrAttach(dir, SubdirTopics, "t", mismatched)
	require.Equal(t, horuserr.KindOf(horuserr.ErrTypeMismatch), horuserr.KindOf(err))
}

func TestCreateOrAttachCapacityMismatch(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Kind: KindRing, PayloadSize: 512, TypeFingerprint: 7, Capacity: 8, SlotSize: 64}

	r1, err := CreateOrAttach(dir, SubdirTopics, "t", opts)
	require.NoError(t, err)
	r1.Close()

	mismatched := opts
	mismatched.Capacity = 16
	_, err = CreateOrAttach(dir, SubdirTopics, "t", mismatched)
	require.Equal(t, horuserr.KindOf(horuserr.ErrCapacityMismatch), horuserr.KindOf(err))
}

func TestSessionDirsAndCleanup(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session-1")
	require.NoError(t, EnsureSessionDirs(root))
	require.True(t, SessionExists(root))
	for _, sub := range sessionSubdirs {
		require.True(t, SessionExists(filepath.Join(root, sub)), "expected subdir %s to exist", sub)
	}
	require.NoError(t, CleanupSession(root))
	require.False(t, SessionExists(root), "expected session root to be removed after cleanup")
}

func TestCleanupSessionRefusesEmptyPath(t *testing.T) {
	require.Error(t, CleanupSession(""))
	require.Error(t, CleanupSession("/"))
}
