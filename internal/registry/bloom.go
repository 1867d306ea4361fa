package registry

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// falsePositiveRate bounds how often MightContain wrongly answers "maybe"
// for a name that was never added; at this rate a session with thousands
// of topics still rarely pays the cost of a full map lookup for an
// actually-absent name.
const falsePositiveRate = 0.001

// presenceFilter wraps a bits-and-blooms filter with a mutex: the filter
// itself is not safe for concurrent Add/Test, and the registry's Register
// path (writer) and Lookup path (many readers) both touch it.
type presenceFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newPresenceFilter(expectedN uint) *presenceFilter {
	return &presenceFilter{filter: bloom.NewWithEstimates(expectedN, falsePositiveRate)}
}

func (p *presenceFilter) Add(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter.AddString(name)
}

// MightContain reports false only when name is definitely not registered.
// A true result still requires the caller to confirm against the real map.
func (p *presenceFilter) MightContain(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.TestString(name)
}
