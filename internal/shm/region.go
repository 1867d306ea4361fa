package shm

import (
	"os"
	"path/filepath"
	"time"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// Region is a named, page-aligned, process-attachable byte region: a fixed
// header followed by a payload area (spec §3 "SHM Region", §4.1).
//
// Identity is (session, subdir, name); Region itself only wraps the mapped
// bytes for one process's handle. The region file persists until explicit
// session teardown (CleanupSession) — closing a Region only releases this
// handle's mapping, per spec §3 "Ownership" (region persists; handles don't).
type Region struct {
	Path    string
	Owner   bool // true if this handle created the region
	header  Header
	prov    provider
}

// Options configures CreateOrAttach / Anonymous.
type Options struct {
	Kind            Kind
	PayloadSize     uint32
	TypeFingerprint uint64 // 0 means "don't check on attach"
	Capacity        uint64
	SlotSize        uint64
}

// CreateOrAttach opens the backing file at sessionDir/subdir/name, creating
// it (and writing the header) if it doesn't yet exist, or attaching to it
// and validating the header if it does (spec §4.1).
func CreateOrAttach(sessionDir, subdir, name string, opts Options) (*Region, error) {
	dir := filepath.Join(sessionDir, subdir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, horuserr.Wrapf(horuserr.ErrMappingFailed, "mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)

	total := uint32(HeaderSize) + opts.PayloadSize
	mf, created, err := openMmapFile(path, total, true)
	if err != nil {
		return nil, horuserr.Wrap(horuserr.ErrMappingFailed, err.Error())
	}

	r := &Region{Path: path, Owner: created, prov: mf}

	if created {
		if err := r.writeNewHeader(opts); err != nil {
			_ = mf.Close()
			return nil, err
		}
		return r, nil
	}

	if err := r.attachValidate(opts); err != nil {
		_ = mf.Close()
		return nil, err
	}
	return r, nil
}

// Anonymous creates an in-process-only region: no file, no cross-process
// sharing. Used for topics/links that never need to cross a process
// boundary and for fast unit tests.
func Anonymous(opts Options) *Region {
	total := uint32(HeaderSize) + opts.PayloadSize
	buf := newAnonBuffer(total)
	r := &Region{Path: "", Owner: true, prov: buf}
	_ = r.writeNewHeader(opts) // anonymous regions never fail to create
	return r
}

func (r *Region) writeNewHeader(opts Options) error {
	h := Header{
		Magic:           Magic,
		LayoutVersion:   LayoutVersion,
		Kind:            opts.Kind,
		TypeFingerprint: opts.TypeFingerprint,
		Capacity:        opts.Capacity,
		SlotSize:        roundUp64(opts.SlotSize),
		CreatorPID:      uint64(os.Getpid()),
		CreationNs:      uint64(time.Now().UnixNano()),
	}
	enc := h.Encode()
	copy(r.prov.Bytes()[:HeaderSize], enc[:])
	r.header = h
	return nil
}

func (r *Region) attachValidate(opts Options) error {
	h, err := DecodeHeader(r.prov.Bytes())
	if err != nil {
		return err
	}
	if h.Magic != Magic || h.LayoutVersion != LayoutVersion {
		return horuserr.Wrapf(horuserr.ErrLayoutMismatch, "region %s: magic/version mismatch", r.Path)
	}
	if opts.TypeFingerprint != 0 && h.TypeFingerprint != opts.TypeFingerprint {
		return horuserr.Wrapf(horuserr.ErrTypeMismatch, "region %s: fingerprint %x != expected %x", r.Path, h.TypeFingerprint, opts.TypeFingerprint)
	}
	if opts.Capacity != 0 && h.Capacity != opts.Capacity {
		return horuserr.Wrapf(horuserr.ErrCapacityMismatch, "region %s: capacity %d != expected %d", r.Path, h.Capacity, opts.Capacity)
	}
	r.header = h
	return nil
}

// Header returns the header as read at creation/attach time. Atomic
// subsystem fields mutate live in the underlying bytes and are read by
// callers directly off Data()/Payload(), not through this cached copy.
func (r *Region) Header() Header { return r.header }

// Data returns the full mapped region: header followed by payload.
func (r *Region) Data() []byte { return r.prov.Bytes() }

// Payload returns the bytes after the fixed header.
func (r *Region) Payload() []byte { return r.prov.Bytes()[HeaderSize:] }

// Atomics returns the 64-byte subsystem atomics area (spec §6 offset 64).
func (r *Region) Atomics() []byte {
	return r.prov.Bytes()[AtomicsOffset : AtomicsOffset+AtomicsSize]
}

// Close unmaps/releases this handle. The region itself persists on disk
// (or, for Anonymous regions, simply stops existing once unreferenced)
// until CleanupSession runs.
func (r *Region) Close() error {
	return r.prov.Close()
}
