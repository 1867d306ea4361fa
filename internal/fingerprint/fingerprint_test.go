package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func imuSchema() Schema {
	return Schema{
		Name: "IMUSample",
		Fields: []Field{
			{Name: "timestamp_ns", Type: Uint64},
			{Name: "accel", Type: Float32, Repeated: true},
			{Name: "gyro", Type: Float32, Repeated: true},
		},
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute(imuSchema())
	require.NoError(t, err)
	b, err := Compute(imuSchema())
	require.NoError(t, err)
	require.Equal(t, a, b, "fingerprint not deterministic")
}

func TestComputeIgnoresFieldOrder(t *testing.T) {
	s1 := imuSchema()
	s2 := Schema{
		Name: s1.Name,
		Fields: []Field{
			s1.Fields[2],
			s1.Fields[0],
			s1.Fields[1],
		},
	}

	a, err := Compute(s1)
	require.NoError(t, err)
	b, err := Compute(s2)
	require.NoError(t, err)
	require.Equal(t, a, b, "fingerprint should be order-independent")
}

func TestComputeDiffersOnTypeChange(t *testing.T) {
	s1 := imuSchema()
	s2 := imuSchema()
	s2.Fields[0].Type = Uint32

	a, err := Compute(s1)
	require.NoError(t, err)
	b, err := Compute(s2)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "expected fingerprint to change when a field's type changes")
}

func TestComputeDiffersOnFieldRename(t *testing.T) {
	s1 := imuSchema()
	s2 := imuSchema()
	s2.Fields[0].Name = "ts_ns"

	a, _ := Compute(s1)
	b, _ := Compute(s2)
	require.NotEqual(t, a, b, "expected fingerprint to change when a field is renamed")
}

func TestMustComputeDoesNotPanicOnValidSchema(t *testing.T) {
	require.NotPanics(t, func() {
		_ = MustCompute(imuSchema())
	})
}
