package registry

import (
	"os"
	"syscall"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// writeFileGuarded writes data to path under an exclusive advisory flock,
// so two processes racing to register topics in the same session don't
// interleave writes to the shared metadata file. Grounded on the
// teacher's direct syscall use in kernel/threads/sab/hal_native.go for
// POSIX primitives the standard library doesn't wrap at a high level.
func writeFileGuarded(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "open registry metadata for write: %v", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "lock registry metadata: %v", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if err := f.Truncate(0); err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "truncate registry metadata: %v", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "write registry metadata: %v", err)
	}
	return nil
}
