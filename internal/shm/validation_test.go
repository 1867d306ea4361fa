package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatorSlotLayout(t *testing.T) {
	v := NewValidator(1024)

	require.NoError(t, v.CheckSlotLayout(0, 8, 64), "expected 8*64=512 to fit in 1024")
	require.Error(t, v.CheckSlotLayout(0, 32, 64), "expected 32*64=2048 to overflow 1024")
	require.Len(t, v.Violations(), 1)
}

func TestValidatorBounds(t *testing.T) {
	v := NewValidator(128)
	require.NoError(t, v.CheckBounds(64, 64), "expected [64,128) to fit")
	require.Error(t, v.CheckBounds(64, 65), "expected [64,129) to overflow")
}
