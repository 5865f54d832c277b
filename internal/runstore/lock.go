package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	dirLockName      = ".favesave.lock"
	dirLockOwnerFile = "owner.json"
)

// ErrLocked is returned when another orchestrator already owns the directory.
var ErrLocked = errors.New("destination directory is locked by another run")

// DirLock marks a destination directory as owned by one orchestrator. The
// session record is read-modify-written without coordination, so two runs
// against the same directory would lose each other's classifications.
type DirLock struct {
	lockDir string
}

type LockOwner struct {
	PID       int    `json:"pid"`
	RunID     string `json:"run_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireDirLock(dir, runID string) (DirLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return DirLock{}, fmt.Errorf("destination directory is required")
	}
	if err := Mkdir(target); err != nil {
		return DirLock{}, err
	}

	lockDir := filepath.Join(target, dirLockName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			if owner, readErr := ReadLockOwner(target); readErr == nil && owner.PID > 0 {
				return DirLock{}, fmt.Errorf("%w: %s (pid=%d run=%s created_at=%s host=%s)",
					ErrLocked, target, owner.PID, owner.RunID, owner.CreatedAt, owner.Hostname)
			}
			return DirLock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		return DirLock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := LockOwner{
		PID:       os.Getpid(),
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, dirLockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return DirLock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}
	return DirLock{lockDir: lockDir}, nil
}

// ReadLockOwner returns the owner of an existing lock on dir.
func ReadLockOwner(dir string) (LockOwner, error) {
	var owner LockOwner
	err := ReadJSON(filepath.Join(dir, dirLockName, dirLockOwnerFile), &owner)
	return owner, err
}

func (l DirLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, dirLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

// IsLockEntry reports whether a directory entry name belongs to the lock.
func IsLockEntry(name string) bool {
	return name == dirLockName
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
