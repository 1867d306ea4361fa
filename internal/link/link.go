// Package link implements the single-slot SPSC link, HORUS's
// overwrite-safe "latest value" channel (spec §4.3): one producer
// continuously overwrites a single slot, any number of readers always get
// the most recent value without ever blocking or failing, and readers can
// tell whether the value changed since their last read via its generation.
//
// Grounded on kernel/threads/foundation/epoch.go's seqlock-style atomic
// generation counter over a shared byte slice, narrowed from "notify on
// any change" (epoch's channel-based waiters) to "always return latest,
// tell me if it's new" since links are polled from the scheduler's tick
// loop rather than awaited.
package link

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/shm"
)

// torn-read retry budget before giving up and returning whatever was read.
// A writer would have to hold the odd (in-progress) state for this many
// iterations in a row for a reader to ever observe a torn value, which
// does not happen under the single-producer, bounded-copy writes this
// package performs.
const maxReadAttempts = 64

// seqOffset/pidOffset locate the seqlock generation counter and the
// registered producer pid within the region's atomics area.
const (
	seqOffset = 0
	pidOffset = 8
)

// Link is a single-slot SPSC overwrite channel backed by a shm.Region.
type Link struct {
	region   *shm.Region
	payload  []byte
	slotSize uint64
}

// Open creates a new link-backed region under sessionDir/links/name, or
// attaches to and validates an existing one.
func Open(sessionDir, name string, slotSize, fingerprint uint64) (*Link, error) {
	r, err := shm.CreateOrAttach(sessionDir, shm.SubdirLinks, name, shm.Options{
		Kind:            shm.KindLink,
		PayloadSize:     uint32(shm.RoundSlotSize(slotSize)),
		TypeFingerprint: fingerprint,
		Capacity:        1,
		SlotSize:        slotSize,
	})
	if err != nil {
		return nil, err
	}
	return &Link{region: r, payload: r.Payload(), slotSize: slotSize}, nil
}

// OpenAnonymous creates an in-process-only link, for single-process use
// and tests.
func OpenAnonymous(slotSize, fingerprint uint64) *Link {
	r := shm.Anonymous(shm.Options{
		Kind:            shm.KindLink,
		PayloadSize:     uint32(shm.RoundSlotSize(slotSize)),
		TypeFingerprint: fingerprint,
		Capacity:        1,
		SlotSize:        slotSize,
	})
	return &Link{region: r, payload: r.Payload(), slotSize: slotSize}
}

func (l *Link) seqWord() *uint64 {
	return (*uint64)(unsafe.Pointer(&l.region.Atomics()[seqOffset]))
}

func (l *Link) pidWord() *uint64 {
	return (*uint64)(unsafe.Pointer(&l.region.Atomics()[pidOffset]))
}

// claimProducer registers the caller as this link's sole producer, as
// identified by pid. A link whose producer pid is already set to a
// different value refuses the write (spec §4.3 "single producer").
func (l *Link) claimProducer(pid uint64) error {
	for {
		cur := atomic.LoadUint64(l.pidWord())
		if cur == pid {
			return nil
		}
		if cur == 0 {
			if atomic.CompareAndSwapUint64(l.pidWord(), 0, pid) {
				return nil
			}
			continue
		}
		return horuserr.Wrapf(horuserr.ErrMultipleProducers, "link already has producer pid %d, got %d", cur, pid)
	}
}

// Publish overwrites the link's value. data must fit within the slot's
// capacity. Publishing never blocks on readers.
func (l *Link) Publish(pid uint64, data []byte) error {
	if uint64(len(data)) > l.slotSize {
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "payload %d exceeds slot size %d", len(data), l.slotSize)
	}
	if err := l.claimProducer(pid); err != nil {
		return err
	}

	seq := atomic.LoadUint64(l.seqWord())
	atomic.StoreUint64(l.seqWord(), seq+1) // odd: write in progress
	copy(l.payload, data)
	atomic.StoreUint64(l.seqWord(), seq+2) // even: stable, new generation
	return nil
}

// Read copies the link's current value into buf and returns the number of
// bytes written along with the generation (the seqlock counter at the
// time of the read, halved). Read never blocks and never fails on a
// concurrent write: at worst it retries internally a bounded number of
// times to avoid returning a torn value, then returns whatever the last
// attempt produced.
func (l *Link) Read(buf []byte) (n int, generation uint64, err error) {
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		before := atomic.LoadUint64(l.seqWord())
		if before%2 != 0 {
			runtime.Gosched()
			continue
		}
		n = copy(buf, l.payload)
		after := atomic.LoadUint64(l.seqWord())
		if after == before {
			return n, before / 2, nil
		}
	}
	// Extremely persistent writer contention: return the last snapshot
	// anyway rather than ever failing the read.
	n = copy(buf, l.payload)
	return n, atomic.LoadUint64(l.seqWord()) / 2, nil
}

// Generation returns the current seqlock generation without copying the
// payload, for callers that only want to know whether the value changed.
func (l *Link) Generation() uint64 {
	return atomic.LoadUint64(l.seqWord()) / 2
}

// Close releases this process's mapping of the link's region.
func (l *Link) Close() error { return l.region.Close() }
