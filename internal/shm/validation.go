package shm

import (
	"fmt"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// Validator accumulates layout violations for one region. Where the
// teacher's SABValidator checked overlaps between many regions packed into
// one monolithic arena, HORUS gives every topic/link/log/heartbeat its own
// region file, so the only layout hazard left is a single region's internal
// geometry: does the requested slot count and slot size actually fit in the
// payload that was mapped.
//
// Grounded on kernel/threads/sab/validation.go's SABValidator, narrowed to
// single-region bounds checking.
type Validator struct {
	PayloadSize uint64
	violations  []Violation
}

// Violation records one failed check for diagnostics/introspection.
type Violation struct {
	Message string
	Offset  uint64
	Size    uint64
}

// NewValidator builds a Validator against a region's payload size.
func NewValidator(payloadSize uint64) *Validator {
	return &Validator{PayloadSize: payloadSize}
}

// CheckSlotLayout verifies that slotCount slots of slotSize bytes each,
// starting at offset, fit entirely within the payload. Every caller that
// computes ring/log/heartbeat slot geometry should call this once up front
// rather than discovering an out-of-bounds index at runtime.
func (v *Validator) CheckSlotLayout(offset, slotCount, slotSize uint64) error {
	need := slotCount * slotSize
	if offset+need > v.PayloadSize {
		v.record(fmt.Sprintf("slot layout needs %d bytes at offset %d, payload is %d bytes", need, offset, v.PayloadSize), offset, need)
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "slot layout overflows payload (%d+%d > %d)", offset, need, v.PayloadSize)
	}
	return nil
}

// CheckBounds verifies a single [offset, offset+size) range fits the payload.
func (v *Validator) CheckBounds(offset, size uint64) error {
	if offset+size > v.PayloadSize {
		v.record(fmt.Sprintf("access at %d size %d exceeds payload %d", offset, size, v.PayloadSize), offset, size)
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "out of bounds access (%d+%d > %d)", offset, size, v.PayloadSize)
	}
	return nil
}

func (v *Validator) record(msg string, offset, size uint64) {
	v.violations = append(v.violations, Violation{Message: msg, Offset: offset, Size: size})
}

// Violations returns every recorded violation so far, for introspection.
func (v *Validator) Violations() []Violation {
	return v.violations
}
