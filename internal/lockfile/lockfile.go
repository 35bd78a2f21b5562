// Package lockfile serializes mutating commands against one card store.
// The engine issues sequential store calls within a single operation; this
// lock provides the cross-process serialization the engine assumes, so two
// simultaneous imports cannot interleave.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked indicates another process holds the store lock
var ErrLocked = errors.New("store lock already held by another process")

// Lock is an acquired exclusive lock on a store directory
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive non-blocking lock on the store directory.
// The lock file records the holder's PID for staleness diagnostics.
func Acquire(storeDir string) (*Lock, error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	path := filepath.Join(storeDir, "card.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 - path derived from store dir
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
	return err
}

// HolderPID reads the PID recorded in a lock file, if any
func HolderPID(storeDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(storeDir, "card.lock")) // #nosec G304
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// IsStale reports whether a lock file exists whose holder is no longer running
func IsStale(storeDir string) bool {
	pid, ok := HolderPID(storeDir)
	if !ok {
		return false
	}
	return !isProcessRunning(pid)
}

// Clear removes a lock file without acquiring it. Callers must first
// establish that the recorded holder is gone, e.g. via IsStale.
func Clear(storeDir string) error {
	return os.Remove(filepath.Join(storeDir, "card.lock"))
}
