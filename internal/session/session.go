// Package session resolves the HORUS session namespace shared by every
// cooperating process: the session id, the SHM root, and the log level —
// all inherited through environment variables per spec §6.
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/horus-robotics/horus/internal/horuslog"
)

const (
	EnvSession      = "HORUS_SESSION"
	EnvSHMRoot      = "HORUS_SHM_ROOT"
	EnvLogLevel     = "HORUS_LOG_LEVEL"
	EnvNoTelemetry  = "HORUS_NO_TELEMETRY"
	defaultShmDev   = "/dev/shm"
	defaultRootName = "horus"
)

// Session identifies a namespace uniting cooperating processes' topics,
// links, log buffer, and heartbeats (spec §6, GLOSSARY).
type Session struct {
	ID      string
	ShmRoot string // e.g. /dev/shm/horus/<id> or /tmp/horus/<id>
	LogLevel horuslog.Level
}

// New resolves a Session from the process environment, generating a fresh
// session id (grounded on kernel/utils/id.go's GenerateID, upgraded to a
// real UUID via the google/uuid dependency already in the teacher's tree)
// when HORUS_SESSION is unset.
func New() *Session {
	id := os.Getenv(EnvSession)
	if id == "" {
		id = uuid.NewString()
	}

	level, _ := horuslog.ParseLevel(os.Getenv(EnvLogLevel))

	return &Session{
		ID:       id,
		ShmRoot:  resolveRoot(id),
		LogLevel: level,
	}
}

// resolveRoot picks /dev/shm/horus/<id> when /dev/shm exists and is a
// directory, falling back to $TMPDIR/horus/<id> otherwise (spec §4.1).
// Whether /dev/shm is writable is not checked.
func resolveRoot(id string) string {
	base := os.Getenv(EnvSHMRoot)
	if base == "" {
		if info, err := os.Stat(defaultShmDev); err == nil && info.IsDir() {
			base = defaultShmDev
		} else {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, defaultRootName, id)
}

// NoTelemetry reports whether HORUS_NO_TELEMETRY is set truthy.
func (s *Session) NoTelemetry() bool {
	v := os.Getenv(EnvNoTelemetry)
	return v == "1" || v == "true"
}

// Subdir returns the path of a named subdirectory (topics/links/logs/heartbeats)
// under this session's SHM root.
func (s *Session) Subdir(name string) string {
	return filepath.Join(s.ShmRoot, name)
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s @ %s)", s.ID, s.ShmRoot)
}
