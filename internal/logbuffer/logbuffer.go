// Package logbuffer implements the Log Buffer: a fixed-size SHM ring of
// 512-byte structured log records that a dashboard/tail process can read
// without coordinating with the processes writing to it (spec §4.7).
//
// Every record HORUS's loggers emit is written here regardless of a
// node's enable_logging setting or console log level — those only gate
// what prints to a terminal, never what lands in the buffer (spec §4.7's
// resolved open question: the buffer stays dashboard-resilient even when
// console output is fully suppressed).
//
// Grounded on the same Vyukov-style overwrite ring internal/ring builds,
// narrowed from many independent consumer cursors to the specific
// 512-byte fixed record shape this buffer needs, and wired as a
// horuslog.Sink so it composes directly with every subsystem's existing
// logger rather than needing its own logging call sites.
package logbuffer

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/horus-robotics/horus/internal/horuslog"
	"github.com/horus-robotics/horus/internal/ring"
	"github.com/horus-robotics/horus/internal/shm"
)

// RecordSize is the fixed size of one log record, per spec §6's Log
// Record table.
const RecordSize = 512

// Field offsets within a record, per spec §6: {seq, ts_ns, tick, kind,
// node_name, topic, message, tick_us, ipc_ns}. Bytes 481..512 are
// reserved and left zeroed, matching shm.Header's reserved-tail
// convention.
const (
	offSeq      = 0   // u64
	offTsNs     = 8   // u64
	offTick     = 16  // u64
	offKind     = 24  // u8
	offNodeName = 25  // [32]byte
	offTopic    = 57  // [32]byte
	offMessage  = 89  // [384]byte
	offTickUs   = 473 // u32
	offIpcNs    = 477 // u32

	nodeNameSize = 32
	topicSize    = 32
	messageSize  = 384
)

// Record is one decoded entry from the buffer.
type Record struct {
	Seq       uint64
	Timestamp time.Time
	Tick      uint64
	Kind      horuslog.Level
	NodeName  string
	Topic     string
	Message   string
	TickUs    uint32
	IpcNs     uint32
}

// Buffer is a fixed-capacity, never-blocking, newest-wins log ring.
type Buffer struct {
	r   *ring.Ring
	seq uint64
}

// Open creates or attaches to the session's log buffer, capacity records
// deep.
func Open(sessionDir string, capacity uint64) (*Buffer, error) {
	r, err := ring.OpenIn(sessionDir, shm.SubdirLogs, "buffer", capacity, RecordSize, logBufferFingerprint)
	if err != nil {
		return nil, err
	}
	return &Buffer{r: r}, nil
}

// OpenAnonymous creates an in-process log buffer, for single-process use
// and tests.
func OpenAnonymous(capacity uint64) (*Buffer, error) {
	r, err := ring.OpenAnonymous(capacity, RecordSize, logBufferFingerprint)
	if err != nil {
		return nil, err
	}
	return &Buffer{r: r}, nil
}

// logBufferFingerprint is a fixed constant rather than a fingerprint.Compute
// result: the log record shape is part of HORUS itself, not a
// user-defined payload schema, so there is nothing to fingerprint against
// a caller's declared type.
const logBufferFingerprint = 0x484f5255534c4f47

// WriteLog implements horuslog.Sink: every logger in the process can
// SetSink(buffer) and every record it emits lands here, overwriting the
// oldest record once the ring wraps. component becomes the record's
// node_name; tick/topic/tick_us/ipc_ns are pulled out of fields when the
// caller supplied them (tick-context log lines from the scheduler/node
// runtime do; ambient subsystem logs that have no tick context don't, and
// those fields are left zero).
func (b *Buffer) WriteLog(level horuslog.Level, component, message string, fields []horuslog.Field) {
	var tick uint64
	var topic string
	var tickUs, ipcNs uint32
	for _, f := range fields {
		switch f.Key {
		case "tick":
			tick = asUint64(f.Value)
		case "topic":
			if s, ok := f.Value.(string); ok {
				topic = s
			}
		case "tick_us":
			tickUs = asUint32(f.Value)
		case "ipc_ns":
			ipcNs = asUint32(f.Value)
		}
	}

	seq := atomic.AddUint64(&b.seq, 1)
	rec := encode(seq, time.Now(), tick, level, component, topic, message, tickUs, ipcNs)
	_ = b.r.Publish(rec[:]) // never blocks, never fails: overwrites oldest on backlog
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	case time.Duration:
		return uint64(n)
	default:
		return 0
	}
}

func asUint32(v any) uint32 {
	return uint32(asUint64(v))
}

func encode(seq uint64, ts time.Time, tick uint64, kind horuslog.Level, nodeName, topic, message string, tickUs, ipcNs uint32) [RecordSize]byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint64(buf[offSeq:offSeq+8], seq)
	binary.LittleEndian.PutUint64(buf[offTsNs:offTsNs+8], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint64(buf[offTick:offTick+8], tick)
	buf[offKind] = byte(kind)
	copy(buf[offNodeName:offNodeName+nodeNameSize], nodeName)
	copy(buf[offTopic:offTopic+topicSize], topic)
	copy(buf[offMessage:offMessage+messageSize], message)
	binary.LittleEndian.PutUint32(buf[offTickUs:offTickUs+4], tickUs)
	binary.LittleEndian.PutUint32(buf[offIpcNs:offIpcNs+4], ipcNs)
	return buf
}

func decode(buf []byte) Record {
	return Record{
		Seq:       binary.LittleEndian.Uint64(buf[offSeq : offSeq+8]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(buf[offTsNs:offTsNs+8]))),
		Tick:      binary.LittleEndian.Uint64(buf[offTick : offTick+8]),
		Kind:      horuslog.Level(buf[offKind]),
		NodeName:  cstr(buf[offNodeName : offNodeName+nodeNameSize]),
		Topic:     cstr(buf[offTopic : offTopic+topicSize]),
		Message:   cstr(buf[offMessage : offMessage+messageSize]),
		TickUs:    binary.LittleEndian.Uint32(buf[offTickUs : offTickUs+4]),
		IpcNs:     binary.LittleEndian.Uint32(buf[offIpcNs : offIpcNs+4]),
	}
}

func cstr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// Tail returns a cursor positioned at the oldest record still available
// in the buffer, for a dashboard reading the full backlog on attach.
func (b *Buffer) Tail() *Cursor {
	return &Cursor{c: b.r.NewCursorFromBacklog()}
}

// Follow returns a cursor positioned at the current write position, for a
// dashboard that only wants records from now on.
func (b *Buffer) Follow() *Cursor {
	return &Cursor{c: b.r.NewCursor()}
}

// Close releases this process's mapping of the buffer's region.
func (b *Buffer) Close() error { return b.r.Close() }

// Cursor reads decoded Records out of a Buffer.
type Cursor struct {
	c *ring.Cursor
}

// Next returns the next available record, or horuserr.ErrNoUpdate if
// nothing new has been written, or horuserr.ErrOverrun (after resyncing
// itself) if this cursor fell behind far enough that records were
// overwritten before it could read them.
func (c *Cursor) Next() (Record, error) {
	var raw [RecordSize]byte
	n, err := c.c.Next(raw[:])
	if err != nil {
		return Record{}, err
	}
	return decode(raw[:n]), nil
}
