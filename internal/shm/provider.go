package shm

// provider abstracts the backing store of a Region's bytes: a real
// memory-mapped file (mmapFile) or an in-process buffer (anonymous
// regions, used for single-process tests and for the common case where a
// topic never needs cross-process visibility).
//
// Grounded on kernel/threads/sab/hal.go's MemoryProvider interface, narrowed
// to what Region actually needs (raw slice access; atomics are done by
// callers directly on that slice via sync/atomic + unsafe, exactly as the
// teacher's message_queue.go and epoch.go do).
type provider interface {
	Bytes() []byte
	Close() error
}
