// Package lock provides the exclusive, process-level file lock that
// serializes install-pipeline invocations for a single app. Acquisition
// blocks until the lock is available; there is no timeout by design.
//
// Grounded on the single-instance flock used by the teacher's
// cmd/nebo/lock_unix.go, generalized from a hardcoded "nebo.lock" path
// to "<lock-dir>/<app>.lock" and from non-blocking to blocking
// acquisition per the install pipeline's ordering requirement.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Guard represents a held exclusive lock. Release must be called on
// every exit path; it is safe to call more than once.
type Guard struct {
	file     *os.File
	released bool
}

// Path returns the lock file's path.
func (g *Guard) Path() string {
	if g.file == nil {
		return ""
	}
	return g.file.Name()
}

// Release drops the lock and closes the underlying file descriptor.
// It never fails loudly: releasing an already-released or nil guard
// is a no-op, matching "the guard releases the lock on scope exit on
// every path including failure."
func (g *Guard) Release() {
	if g == nil || g.released || g.file == nil {
		return
	}
	_ = syscall.Flock(int(g.file.Fd()), syscall.LOCK_UN)
	_ = g.file.Close()
	g.released = true
}

// Acquire takes an exclusive advisory lock on <lockDir>/<app>.lock,
// creating the directory and file as needed. It blocks until the lock
// is available; there is no contention timeout in normal operation.
func Acquire(lockDir, app string) (*Guard, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Lock, "create lock directory", err)
	}

	path := filepath.Join(lockDir, app+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errkind.Wrap(errkind.Lock, "open lock file", err)
	}

	// Blocking exclusive lock: no LOCK_NB. Contention is expected to
	// resolve when the holder finishes; there is no timeout.
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, errkind.Wrap(errkind.Lock, "acquire flock", err)
	}

	if err := file.Truncate(0); err == nil {
		_, _ = file.Seek(0, 0)
		fmt.Fprintf(file, "%d\n", os.Getpid())
		_ = file.Sync()
	}

	return &Guard{file: file}, nil
}

// ForceRelease removes the lock file unconditionally. It is a
// diagnostic operation for cleaning up a stale lock and is never
// called as part of the install pipeline itself.
func ForceRelease(lockDir, app string) error {
	path := filepath.Join(lockDir, app+".lock")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap(errkind.Lock, "force release", err)
	}
	return nil
}

// HeldByPID reads the diagnostic PID stamp left in the lock file by
// Acquire, if any. It returns 0 if the file does not exist or does
// not contain a stamp.
func HeldByPID(lockDir, app string) int {
	path := filepath.Join(lockDir, app+".lock")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0
	}
	return pid
}
