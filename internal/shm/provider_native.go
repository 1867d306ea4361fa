package shm

import (
	"fmt"
	"os"
	"syscall"
)

// mmapFile memory-maps an on-disk file for a Region backed by real shared
// memory (/dev/shm or /tmp per session.resolveRoot). Grounded on
// kernel/threads/sab/hal_native.go's SharedMemoryProvider.
type mmapFile struct {
	file *os.File
	data []byte
}

// openMmapFile opens (creating if needed) path and maps it: exactly size
// bytes for a file it creates, the file's whole length when attaching.
//
// When create is true, it first attempts an exclusive create
// (O_CREATE|O_EXCL): the process that wins this race is the sole writer of
// the fresh header, eliminating the two-creator clobber spec §4.1 calls
// out. A loser (EEXIST) falls back to a plain attach of the file the winner
// just created, the same path taken when create is false. An attaching
// process requires the existing file's size to be >= size (attaching to a
// smaller-than-required file is a hard failure per spec §4.1).
func openMmapFile(path string, size uint32, create bool) (*mmapFile, bool, error) {
	var file *os.File
	var created bool

	if create {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		switch {
		case err == nil:
			file = f
			created = true
		case os.IsExist(err):
			// Lost the creation race: attach to whatever the winner made.
		default:
			return nil, false, fmt.Errorf("create shm file %s: %w", path, err)
		}
	}

	if file == nil {
		f, err := os.OpenFile(path, os.O_RDWR, 0o600)
		if err != nil {
			return nil, false, fmt.Errorf("open shm file %s: %w", path, err)
		}
		file = f
	}

	if created {
		if err := file.Truncate(int64(size)); err != nil {
			_ = file.Close()
			return nil, false, fmt.Errorf("truncate shm file %s: %w", path, err)
		}
	} else {
		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, false, fmt.Errorf("stat shm file %s: %w", path, err)
		}
		if info.Size() < int64(size) {
			_ = file.Close()
			return nil, false, fmt.Errorf("shm file %s is smaller than required (%d < %d)", path, info.Size(), size)
		}
		size = uint32(info.Size())
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, false, fmt.Errorf("mmap shm file %s: %w", path, err)
	}

	return &mmapFile{file: file, data: data}, created, nil
}

func (m *mmapFile) Bytes() []byte { return m.data }

func (m *mmapFile) Close() error {
	var err error
	if m.data != nil {
		if e := syscall.Munmap(m.data); e != nil {
			err = e
		}
		m.data = nil
	}
	if m.file != nil {
		if e := m.file.Close(); e != nil && err == nil {
			err = e
		}
		m.file = nil
	}
	return err
}
