package shm

// anonBuffer backs a Region with a plain in-process byte slice: no file, no
// cross-process visibility. Used for single-process topics/links/tests
// where the filesystem-backed session directory is unnecessary overhead.
//
// Grounded on kernel/threads/sab/hal_memory.go's InMemoryProvider.
type anonBuffer struct {
	data []byte
}

func newAnonBuffer(size uint32) *anonBuffer {
	return &anonBuffer{data: make([]byte, size)}
}

func (a *anonBuffer) Bytes() []byte { return a.data }

func (a *anonBuffer) Close() error {
	a.data = nil
	return nil
}
