package shm

import (
	"os"
	"path/filepath"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// Session subdirectory names (spec §6 GLOSSARY: topics/, links/, logs/, heartbeats/).
const (
	SubdirTopics     = "topics"
	SubdirLinks      = "links"
	SubdirLogs       = "logs"
	SubdirHeartbeats = "heartbeats"
)

var sessionSubdirs = []string{SubdirTopics, SubdirLinks, SubdirLogs, SubdirHeartbeats}

// EnsureSessionDirs creates the session's topics/links/logs/heartbeats
// subdirectories under root, if they don't already exist. Safe to call
// repeatedly and from multiple cooperating processes.
func EnsureSessionDirs(root string) error {
	for _, sub := range sessionSubdirs {
		dir := filepath.Join(root, sub)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return horuserr.Wrapf(horuserr.ErrMappingFailed, "mkdir %s: %v", dir, err)
		}
	}
	return nil
}

// CleanupSession removes every region file under a session's root. Intended
// for the process that owns the session lifecycle (typically the scheduler's
// graceful-shutdown path) once every node has stopped; attaching processes
// must never call this while peers may still be running.
func CleanupSession(root string) error {
	if root == "" || root == "/" {
		return horuserr.Wrap(horuserr.ErrSessionCorrupt, "refusing to clean empty/root path")
	}
	if err := os.RemoveAll(root); err != nil {
		return horuserr.Wrapf(horuserr.ErrSessionCorrupt, "cleanup %s: %v", root, err)
	}
	return nil
}

// SessionExists reports whether a session root has been bootstrapped.
func SessionExists(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}
