package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireRecordsHolder(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	pid, ok := HolderPID(dir)
	if !ok {
		t.Fatal("no holder recorded")
	}
	if pid != os.Getpid() {
		t.Errorf("recorded pid = %d, want %d", pid, os.Getpid())
	}
	if IsStale(dir) {
		t.Error("a lock held by the running process is not stale")
	}
}

func TestReleaseRemovesLockFile(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}

	if _, ok := HolderPID(dir); ok {
		t.Error("lock file survived release")
	}
	// Double release is harmless
	if err := lock.Release(); err != nil {
		t.Errorf("second release: %v", err)
	}

	// The directory is lockable again
	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if _, err := Acquire(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire: got %v, want ErrLocked", err)
	}
	if IsStale(dir) {
		t.Error("contended lock with a live holder must not be stale")
	}
}

func TestStaleLockCleared(t *testing.T) {
	dir := t.TempDir()

	// A lock file from a process that no longer exists: no flock is held,
	// only the stale PID record remains
	deadPID := 1 << 30
	path := filepath.Join(dir, "card.lock")
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatal(err)
	}

	if !IsStale(dir) {
		t.Fatal("lock file with a dead holder should be stale")
	}
	if err := Clear(dir); err != nil {
		t.Fatal(err)
	}
	if IsStale(dir) {
		t.Error("cleared directory still reports stale")
	}

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("acquire after clearing stale lock: %v", err)
	}
	_ = lock.Release()
}

func TestIsStaleWithoutLockFile(t *testing.T) {
	if IsStale(t.TempDir()) {
		t.Error("missing lock file reported as stale")
	}
}

func TestHolderPIDGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "card.lock"), []byte("not a pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := HolderPID(dir); ok {
		t.Error("garbage lock file produced a holder pid")
	}
	if IsStale(dir) {
		t.Error("unreadable holder must not be treated as stale")
	}
}
