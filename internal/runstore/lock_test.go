package runstore

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireDirLock_BlocksConcurrentAcquire(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")

	lock, err := AcquireDirLock(dir, "run-a")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireDirLock(dir, "run-b")
	if err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	owner, err := ReadLockOwner(dir)
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if owner.RunID != "run-a" || owner.PID <= 0 {
		t.Fatalf("unexpected owner: %+v", owner)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireDirLock(dir, "run-b")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireDirLock_RequiresDir(t *testing.T) {
	if _, err := AcquireDirLock("  ", "x"); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
