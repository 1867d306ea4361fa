// Package heartbeat implements the heartbeat registry: one fixed
// 128-byte SHM cell per node, updated by the scheduler at the end of
// every successful tick, polled by liveness checks that never touch the
// node directly (spec §4.8, §6 "Heartbeat Cell").
package heartbeat

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/horus-robotics/horus/internal/shm"
)

// CellSize is the fixed size of one node's heartbeat cell (spec §6).
const CellSize = 128

// heartbeatFingerprint is fixed, like the log buffer's: the cell layout
// is internal to HORUS, not a user payload schema.
const heartbeatFingerprint = 0x484f52555348425a

// Field offsets within the cell's payload, per spec §6's Heartbeat Cell
// table: {seq, state, tick_count, last_tick_ns, avg_tick_us, error_count,
// pid, node_name}. Bytes 80..128 are reserved and left zeroed, the same
// convention shm.Header uses for its own unused tail bytes.
const (
	offSeq        = 0  // u64: bumped on every write, torn-read guard
	offState      = 8  // u8: node.State at last write
	offTickCount  = 16 // u64: successful ticks fed so far
	offLastTickNs = 24 // u64: UnixNano of the last fed tick
	offAvgTickUs  = 32 // u32: running average tick latency, microseconds
	offErrorCount = 36 // u32: failed ticks observed so far
	offPID        = 40 // u64: owning process id
	offNodeName   = 48 // [32]byte: NUL-padded node name
	nodeNameSize  = 32
)

// Cell is one node's heartbeat region, updated atomically on every tick.
type Cell struct {
	region *shm.Region
}

// Open creates or attaches to a node's heartbeat cell under
// sessionDir/heartbeats/<nodeName>, stamping the owning pid and node name
// if this process created it.
func Open(sessionDir, nodeName string) (*Cell, error) {
	r, err := shm.CreateOrAttach(sessionDir, shm.SubdirHeartbeats, nodeName, shm.Options{
		Kind:            shm.KindHeartbeat,
		PayloadSize:     CellSize,
		TypeFingerprint: heartbeatFingerprint,
		Capacity:        1,
		SlotSize:        CellSize,
	})
	if err != nil {
		return nil, err
	}
	c := &Cell{region: r}
	if r.Owner {
		c.stampIdentity(nodeName)
	}
	return c, nil
}

// OpenAnonymous creates an in-process-only heartbeat cell, for tests.
func OpenAnonymous(nodeName string) *Cell {
	r := shm.Anonymous(shm.Options{
		Kind:            shm.KindHeartbeat,
		PayloadSize:     CellSize,
		TypeFingerprint: heartbeatFingerprint,
		Capacity:        1,
		SlotSize:        CellSize,
	})
	c := &Cell{region: r}
	c.stampIdentity(nodeName)
	return c
}

func (c *Cell) stampIdentity(nodeName string) {
	p := c.region.Payload()
	binary.LittleEndian.PutUint64(p[offPID:offPID+8], uint64(os.Getpid()))
	var name [nodeNameSize]byte
	copy(name[:], nodeName)
	copy(p[offNodeName:offNodeName+nodeNameSize], name[:])
}

// Beat records a successful tick: bumps the tick counter, stamps the
// current time, folds tickLatency into the running average, and records
// state. A single writer (the scheduler, from its tick loop) ever
// calls Beat, so the seq word only needs to guard readers against a torn
// multi-field snapshot, not arbitrate between writers.
func (c *Cell) Beat(state uint8, tickLatency time.Duration) {
	p := c.region.Payload()

	seq := binary.LittleEndian.Uint64(p[offSeq:offSeq+8])
	binary.LittleEndian.PutUint64(p[offSeq:offSeq+8], seq+1) // odd: write in progress

	count := binary.LittleEndian.Uint64(p[offTickCount : offTickCount+8])
	avg := binary.LittleEndian.Uint32(p[offAvgTickUs : offAvgTickUs+4])
	newAvg := runningAverageUs(avg, count, tickLatency)

	p[offState] = state
	binary.LittleEndian.PutUint64(p[offTickCount:offTickCount+8], count+1)
	binary.LittleEndian.PutUint64(p[offLastTickNs:offLastTickNs+8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(p[offAvgTickUs:offAvgTickUs+4], newAvg)

	binary.LittleEndian.PutUint64(p[offSeq:offSeq+8], seq+2) // even: stable
}

// RecordError bumps the cell's error counter and stamps state, for a tick
// that failed rather than fed the heartbeat. Does not touch tick_count or
// avg_tick_us: those describe successful ticks only.
func (c *Cell) RecordError(state uint8) {
	p := c.region.Payload()
	seq := binary.LittleEndian.Uint64(p[offSeq:offSeq+8])
	binary.LittleEndian.PutUint64(p[offSeq:offSeq+8], seq+1)

	errs := binary.LittleEndian.Uint32(p[offErrorCount : offErrorCount+4])
	p[offState] = state
	binary.LittleEndian.PutUint32(p[offErrorCount:offErrorCount+4], errs+1)

	binary.LittleEndian.PutUint64(p[offSeq:offSeq+8], seq+2)
}

func runningAverageUs(prevAvg uint32, prevCount uint64, latest time.Duration) uint32 {
	latestUs := uint64(latest.Microseconds())
	if prevCount == 0 {
		return uint32(latestUs)
	}
	// Incremental mean: avg' = avg + (latest - avg) / (n+1).
	n := prevCount + 1
	delta := int64(latestUs) - int64(prevAvg)
	return uint32(int64(prevAvg) + delta/int64(n))
}

// Status is a liveness snapshot read from a Cell.
type Status struct {
	Seq        uint64
	State      uint8
	TickCount  uint64
	LastTick   time.Time
	AvgTickUs  uint32
	ErrorCount uint32
	PID        uint64
	NodeName   string
}

// Read returns the cell's current fields.
func (c *Cell) Read() Status {
	p := c.region.Payload()
	return Status{
		Seq:        binary.LittleEndian.Uint64(p[offSeq : offSeq+8]),
		State:      p[offState],
		TickCount:  binary.LittleEndian.Uint64(p[offTickCount : offTickCount+8]),
		LastTick:   time.Unix(0, int64(binary.LittleEndian.Uint64(p[offLastTickNs:offLastTickNs+8]))),
		AvgTickUs:  binary.LittleEndian.Uint32(p[offAvgTickUs : offAvgTickUs+4]),
		ErrorCount: binary.LittleEndian.Uint32(p[offErrorCount : offErrorCount+4]),
		PID:        binary.LittleEndian.Uint64(p[offPID : offPID+8]),
		NodeName:   cstr(p[offNodeName : offNodeName+nodeNameSize]),
	}
}

// Alive reports whether the cell's last beat is within maxAge of now. A
// cell that has never beaten (TickCount == 0) is never considered alive.
func (c *Cell) Alive(maxAge time.Duration) bool {
	s := c.Read()
	if s.TickCount == 0 {
		return false
	}
	return time.Since(s.LastTick) <= maxAge
}

// Close releases this process's mapping of the cell's region.
func (c *Cell) Close() error { return c.region.Close() }

func cstr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
