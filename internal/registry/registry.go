// Package registry implements the topic/link registry: a name-keyed
// directory of every topic and link a session has created, consulted
// before a process registers or looks up a channel by name (spec §4.4).
//
// Grounded on kernel/threads/registry/loader.go's ModuleRegistry
// (name/hash-indexed in-memory maps guarded by a mutex, persisted
// metadata, dependency-style validation before a register succeeds),
// generalized from a single-process module table to a session-wide,
// file-persisted registry that many cooperating processes share.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/horus-robotics/horus/internal/horuserr"
	"github.com/horus-robotics/horus/internal/shm"
)

// Descriptor is everything the registry remembers about one named channel.
type Descriptor struct {
	Name            string  `json:"name"`
	Kind            shm.Kind `json:"kind"`
	TypeFingerprint uint64  `json:"type_fingerprint"`
	Capacity        uint64  `json:"capacity"`
	SlotSize        uint64  `json:"slot_size"`
	CreatorPID      uint64  `json:"creator_pid"`
}

const metadataFile = "registry.json"

// Registry tracks every topic/link descriptor in a session. The metadata
// file is read once, in Open; after that, Lookup and Names consult only the
// in-memory table, which this Registry's own Register calls extend.
// Registrations that other processes persist after Open are not seen. A
// bits-and-blooms Bloom filter sits in front of that table: a lookup that
// the filter reports as definitely absent returns without taking the lock.
type Registry struct {
	sessionDir string
	mu         sync.RWMutex
	entries    map[string]Descriptor
	present    *presenceFilter
}

// Open loads (or initializes) the registry for a session, reading its
// persisted metadata file if one already exists.
func Open(sessionDir string) (*Registry, error) {
	r := &Registry{
		sessionDir: sessionDir,
		entries:    make(map[string]Descriptor),
		present:    newPresenceFilter(1024),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) metadataPath() string {
	return filepath.Join(r.sessionDir, metadataFile)
}

func (r *Registry) load() error {
	path := r.metadataPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "read registry metadata: %v", err)
	}

	var list []Descriptor
	if err := json.Unmarshal(data, &list); err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "parse registry metadata: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range list {
		r.entries[d.Name] = d
		r.present.Add(d.Name)
	}
	return nil
}

// Register records a newly created topic/link's descriptor, failing with
// ErrTopicConflict if the name is already registered with an incompatible
// descriptor, or ErrTypeMismatch/ErrCapacityMismatch if it is registered
// with the same kind but different schema.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[d.Name]; ok {
		return compatDescriptor(existing, d)
	}

	r.entries[d.Name] = d
	r.present.Add(d.Name)
	return r.persistLocked()
}

func compatDescriptor(existing, incoming Descriptor) error {
	if existing.Kind != incoming.Kind {
		return horuserr.Wrapf(horuserr.ErrTopicConflict, "%s already registered as %s, not %s", existing.Name, existing.Kind, incoming.Kind)
	}
	if existing.TypeFingerprint != incoming.TypeFingerprint {
		return horuserr.Wrapf(horuserr.ErrTypeMismatch, "%s fingerprint %x != existing %x", existing.Name, incoming.TypeFingerprint, existing.TypeFingerprint)
	}
	if existing.Capacity != incoming.Capacity {
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "%s capacity %d != existing %d", existing.Name, incoming.Capacity, existing.Capacity)
	}
	return nil
}

// Lookup finds a previously registered descriptor by name. The Bloom
// filter is checked first: a negative result is returned immediately
// without taking the read lock. Lookup never reads the metadata file.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	if !r.present.MightContain(name) {
		return Descriptor{}, horuserr.Wrapf(horuserr.ErrTopicNotFound, "%s", name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	if !ok {
		return Descriptor{}, horuserr.Wrapf(horuserr.ErrTopicNotFound, "%s", name)
	}
	return d, nil
}

// Names returns every registered channel name, for introspection.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// persistLocked writes the full entry table to the session's metadata
// file. Callers must hold r.mu for writing.
func (r *Registry) persistLocked() error {
	list := make([]Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		list = append(list, d)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return horuserr.Wrapf(horuserr.ErrInternal, "marshal registry metadata: %v", err)
	}
	return writeFileGuarded(r.metadataPath(), data)
}
