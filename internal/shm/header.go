// Package shm implements named, page-aligned, process-attachable shared
// memory regions per spec §4.1 and the binary header layout in spec §6.
//
// Grounded on the teacher's kernel/threads/sab/hal_native.go (POSIX mmap
// provider) and kernel/threads/sab/hal_memory.go (in-memory provider used
// here for anonymous/test regions), generalized from one monolithic SAB
// blob into many small named regions (one per topic/link/log/heartbeat).
package shm

import (
	"encoding/binary"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// Kind identifies which subsystem owns a region, per spec §6 header table.
type Kind uint16

const (
	KindRing      Kind = 1
	KindLink      Kind = 2
	KindLog       Kind = 3
	KindHeartbeat Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindRing:
		return "ring"
	case KindLink:
		return "link"
	case KindLog:
		return "log"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

const (
	// Magic identifies a HORUS region: 0x484F5253 ("HORS").
	Magic uint32 = 0x484F5253

	// LayoutVersion is the only header layout this implementation speaks.
	LayoutVersion uint16 = 1

	// HeaderSize is the fixed header size in bytes (spec §6 table, offset 128).
	HeaderSize = 128

	// AtomicsOffset/AtomicsSize locate the 64-byte subsystem atomics area.
	AtomicsOffset = 64
	AtomicsSize   = 64

	// CacheLineSize is the alignment used for ring slots (spec §4.2, §6).
	CacheLineSize = 64
)

// Header is the fixed, little-endian, packed region header (spec §6).
// Offsets 48 "reserved" (16 bytes) and 64 "subsystem atomics" (64 bytes)
// are not modeled as Go fields here: reserved is write-once zero, and the
// atomics area is mutated in place by each subsystem directly on the raw
// byte slice (spec invariant I-SHM-1: header written once, then only
// designated atomic fields mutate).
type Header struct {
	Magic           uint32
	LayoutVersion   uint16
	Kind            Kind
	TypeFingerprint uint64
	Capacity        uint64
	SlotSize        uint64
	CreatorPID      uint64
	CreationNs      uint64
}

// Encode writes h into a HeaderSize-byte buffer using the exact field
// offsets from spec §6. The reserved and atomics regions are left zeroed.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.LayoutVersion)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Kind))
	binary.LittleEndian.PutUint64(buf[8:16], h.TypeFingerprint)
	binary.LittleEndian.PutUint64(buf[16:24], h.Capacity)
	binary.LittleEndian.PutUint64(buf[24:32], h.SlotSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.CreatorPID)
	binary.LittleEndian.PutUint64(buf[40:48], h.CreationNs)
	return buf
}

// DecodeHeader reads a Header back out of at least HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, horuserr.Wrap(horuserr.ErrLayoutMismatch, "short header")
	}
	return Header{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		LayoutVersion:   binary.LittleEndian.Uint16(buf[4:6]),
		Kind:            Kind(binary.LittleEndian.Uint16(buf[6:8])),
		TypeFingerprint: binary.LittleEndian.Uint64(buf[8:16]),
		Capacity:        binary.LittleEndian.Uint64(buf[16:24]),
		SlotSize:        binary.LittleEndian.Uint64(buf[24:32]),
		CreatorPID:      binary.LittleEndian.Uint64(buf[32:40]),
		CreationNs:      binary.LittleEndian.Uint64(buf[40:48]),
	}, nil
}

// roundUp64 rounds n up to the next multiple of 64 (cache-line alignment),
// per spec §4.1 "slot sizes round up to 64 bytes".
func roundUp64(n uint64) uint64 {
	if n%CacheLineSize == 0 {
		return n
	}
	return (n/CacheLineSize + 1) * CacheLineSize
}

// RoundSlotSize exports roundUp64 for callers sizing ring/log/heartbeat slots.
func RoundSlotSize(n uint64) uint64 { return roundUp64(n) }
