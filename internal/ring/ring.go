// Package ring implements the MPMC ring topic, HORUS's bounded, lock-free,
// zero-copy publish/subscribe channel (spec §4.2). Any number of producers
// publish into one fixed-capacity ring; any number of consumers each track
// their own read cursor and see every message in order, or detect and
// resync past an overrun if they fall too far behind.
//
// Grounded on kernel/threads/foundation/message_queue.go's atomic
// head/tail ring (generalized here from single-consumer head/tail to
// per-slot generation sequence numbers so many independent consumers can
// each make progress without coordinating with each other) and
// kernel/threads/foundation/epoch.go's pattern of atomics applied directly
// to a shared byte slice via unsafe.Pointer.
package ring

import (
	"sync/atomic"
	"unsafe"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/shm"
)

// seqPrefixSize is the slot prefix stored ahead of the payload bytes: the
// 8-byte generation-sequence word, then (at lenOffset) an 8-byte word
// holding the published message's length.
const (
	seqPrefixSize = 16
	lenOffset     = 8
)

// Ring is an MPMC bounded ring topic backed by a shm.Region.
type Ring struct {
	region   *shm.Region
	capacity uint64
	slotSize uint64
	stride   uint64
	payload  []byte
}

// Stats exposes the counters spec §4.2 requires every topic to publish.
type Stats struct {
	MessagesSent            uint64
	MessagesDroppedByOverrun uint64
}

// Open creates a new ring-backed region of the given capacity (must be a
// power of two) and per-message slot size under sessionDir/topics/name, or
// attaches to and validates an existing one (spec §4.2, §4.1).
func Open(sessionDir, name string, capacity, slotSize, fingerprint uint64) (*Ring, error) {
	return OpenIn(sessionDir, shm.SubdirTopics, name, capacity, slotSize, fingerprint)
}

// OpenIn is Open with an explicit session subdirectory, for callers that
// layer their own ring-shaped structure on top of this package outside
// the topics/ namespace (the log buffer uses this to live under logs/).
func OpenIn(sessionDir, subdir, name string, capacity, slotSize, fingerprint uint64) (*Ring, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, horuserr.Wrapf(horuserr.ErrCapacityMismatch, "ring capacity %d is not a power of two", capacity)
	}
	stride := shm.RoundSlotSize(seqPrefixSize + slotSize)
	payloadBytes := stride * capacity

	r, err := shm.CreateOrAttach(sessionDir, subdir, name, shm.Options{
		Kind:            shm.KindRing,
		PayloadSize:     uint32(payloadBytes),
		TypeFingerprint: fingerprint,
		Capacity:        capacity,
		SlotSize:        slotSize,
	})
	if err != nil {
		return nil, err
	}

	return newRing(r, capacity, slotSize, stride), nil
}

// OpenAnonymous creates an in-process-only ring with no backing file, for
// single-process fan-out and for tests that don't need cross-process
// visibility.
func OpenAnonymous(capacity, slotSize, fingerprint uint64) (*Ring, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, horuserr.Wrapf(horuserr.ErrCapacityMismatch, "ring capacity %d is not a power of two", capacity)
	}
	stride := shm.RoundSlotSize(seqPrefixSize + slotSize)
	payloadBytes := stride * capacity

	r := shm.Anonymous(shm.Options{
		Kind:            shm.KindRing,
		PayloadSize:     uint32(payloadBytes),
		TypeFingerprint: fingerprint,
		Capacity:        capacity,
		SlotSize:        slotSize,
	})

	return newRing(r, capacity, slotSize, stride), nil
}

func newRing(r *shm.Region, capacity, slotSize, stride uint64) *Ring {
	ring := &Ring{region: r, capacity: capacity, slotSize: slotSize, stride: stride}
	ring.payload = r.Payload()
	return ring
}

// cursorOffset locates the shared publish counter every producer claims
// slots from within the region's atomics area (spec §6 offset 64),
// matching internal/link's seqOffset/pidOffset convention rather than
// stealing bytes from the front of the payload area.
const cursorOffset = 0

func (r *Ring) cursorWord() *uint64 {
	return (*uint64)(unsafe.Pointer(&r.region.Atomics()[cursorOffset]))
}

// Publish claims the next slot and writes data into it. data must fit in
// slotSize bytes; publishing never blocks and never fails due to backlog —
// slow consumers fall behind and discover an overrun on their own cursor,
// not the producer (spec §4.2 "never blocks a producer").
func (r *Ring) Publish(data []byte) error {
	if uint64(len(data)) > r.slotSize {
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "payload %d exceeds slot size %d", len(data), r.slotSize)
	}

	k := atomic.AddUint64(r.cursorWord(), 1) - 1
	slot := r.slotBytes(k)
	seqWord := (*uint64)(unsafe.Pointer(&slot[0]))

	atomic.StoreUint64(seqWord, 2*k)
	copy(slot[seqPrefixSize:], data)
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&slot[lenOffset])), uint64(len(data)))
	atomic.StoreUint64(seqWord, 2*k+1)
	return nil
}

func (r *Ring) slotBytes(k uint64) []byte {
	idx := k & (r.capacity - 1)
	off := idx * r.stride
	return r.payload[off : off+r.stride]
}

// WriteCursor is the number of messages published so far.
func (r *Ring) WriteCursor() uint64 {
	return atomic.LoadUint64(r.cursorWord())
}

// Close releases this process's mapping of the ring's region.
func (r *Ring) Close() error { return r.region.Close() }

// NewCursor returns a consumer cursor starting at the ring's current write
// position: it will only see messages published from this point forward.
func (r *Ring) NewCursor() *Cursor {
	return &Cursor{ring: r, next: r.WriteCursor()}
}

// NewCursorFromBacklog returns a cursor that starts as far back as the
// ring currently holds (up to capacity messages of history), for
// consumers that want whatever backlog is still available rather than
// only future messages.
func (r *Ring) NewCursorFromBacklog() *Cursor {
	write := r.WriteCursor()
	start := uint64(0)
	if write > r.capacity {
		start = write - r.capacity
	}
	return &Cursor{ring: r, next: start}
}

// Cursor tracks one consumer's read position in a Ring.
type Cursor struct {
	ring  *Ring
	next  uint64
	stats Stats
}

// Next reads the next message into buf (which must be at least slotSize
// bytes) and returns the number of bytes written.
//
// Returns horuserr.ErrNoUpdate if no new message has been published since
// the last call (not an error condition — callers poll). Returns
// horuserr.ErrOverrun if this cursor fell far enough behind that its next
// expected message was already overwritten; the cursor resyncs itself to
// head-capacity+1 (one past the oldest message the ring still holds) before returning,
// so the next call to Next proceeds from there (spec §4.2 "gap detection").
func (c *Cursor) Next(buf []byte) (int, error) {
	k := c.next
	slot := c.ring.slotBytes(k)
	seqWord := (*uint64)(unsafe.Pointer(&slot[0]))
	seq := atomic.LoadUint64(seqWord)

	want := 2*k + 1
	switch {
	case seq == want:
		length := atomic.LoadUint64((*uint64)(unsafe.Pointer(&slot[lenOffset])))
		if length > c.ring.slotSize {
			length = c.ring.slotSize
		}
		n := copy(buf, slot[seqPrefixSize:seqPrefixSize+length])
		// Re-check after the copy: if the slot was overwritten mid-read the
		// sequence will have advanced past what we expected, and the bytes
		// we just copied may be torn between two messages. Treat that as
		// an overrun rather than returning corrupt data.
		if atomic.LoadUint64(seqWord) != want {
			return 0, c.handleOverrun()
		}
		c.next++
		c.stats.MessagesSent++ // messages this cursor has successfully consumed
		return n, nil
	case seq < want:
		return 0, horuserr.ErrNoUpdate
	default:
		return 0, c.handleOverrun()
	}
}

func (c *Cursor) handleOverrun() error {
	write := c.ring.WriteCursor()
	resync := uint64(0)
	if write > c.ring.capacity {
		resync = write - c.ring.capacity + 1
	}
	c.next = resync
	c.stats.MessagesDroppedByOverrun++
	return horuserr.ErrOverrun
}

// Stats returns this cursor's running counters.
func (c *Cursor) Stats() Stats { return c.stats }

// Pending reports how many messages are available to read right now
// without blocking.
func (c *Cursor) Pending() uint64 {
	write := c.ring.WriteCursor()
	if write <= c.next {
		return 0
	}
	return write - c.next
}
