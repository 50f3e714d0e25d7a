// Package lock provides an advisory per-root lock so two concurrent
// mutating invocations cannot race on the manifest write or the staging
// swap. The lock is a file created with O_EXCL inside the bundle-owned
// metadata directory; stale locks (dead process or old age) are reclaimed.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// Info is the metadata stored in a lock file.
type Info struct {
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
	Cmd       string    `json:"cmd,omitempty"`
}

// RootLock locks one installation root.
type RootLock struct {
	Root       string
	StaleAfter time.Duration
	Now        func() time.Time
	IsPIDAlive func(pid int) bool
}

// New returns a RootLock with defaults: stale after 2h, real clock,
// best-effort PID liveness.
func New(root string) RootLock {
	return RootLock{
		Root:       root,
		StaleAfter: 2 * time.Hour,
		Now:        time.Now,
		IsPIDAlive: isPIDAlive,
	}
}

// Acquire takes the lock and returns an unlock function. cmd is stored
// in the lock file for debugging. If the root is already locked by a
// live process, an E_LOCKED error is returned.
func (l RootLock) Acquire(cmd string) (unlock func() error, err error) {
	lockPath := pathscope.LockPath(l.Root)
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := os.MkdirAll(filepath.Dir(lockPath), pathscope.DirPermNormal); err != nil {
			return nil, fmt.Errorf("creating lock directory: %w", err)
		}

		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			info := Info{PID: os.Getpid(), CreatedAt: l.Now(), Cmd: cmd}
			data, _ := json.Marshal(info)
			if _, writeErr := f.Write(data); writeErr != nil {
				f.Close()
				os.Remove(lockPath)
				return nil, fmt.Errorf("writing lock file: %w", writeErr)
			}
			if closeErr := f.Close(); closeErr != nil {
				os.Remove(lockPath)
				return nil, fmt.Errorf("closing lock file: %w", closeErr)
			}
			return func() error {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		info, readErr := l.readInfo(lockPath)
		if readErr != nil {
			// Unreadable lock file: fall back to mtime for staleness.
			stat, statErr := os.Stat(lockPath)
			if statErr != nil || l.Now().Sub(stat.ModTime()) <= l.StaleAfter {
				return nil, lockedErr(l.Root, nil, lockPath)
			}
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, lockedErr(l.Root, nil, lockPath)
			}
			continue
		}

		if l.isStale(info) {
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, lockedErr(l.Root, info, lockPath)
			}
			continue
		}

		return nil, lockedErr(l.Root, info, lockPath)
	}

	return nil, lockedErr(l.Root, nil, pathscope.LockPath(l.Root))
}

func lockedErr(root string, info *Info, path string) error {
	if info != nil {
		return errdefs.Newf(errdefs.ELocked,
			"%s is locked by pid %d since %s (lock file: %s)",
			root, info.PID, info.CreatedAt.Format(time.RFC3339), path)
	}
	return errdefs.Newf(errdefs.ELocked, "%s is locked (lock file: %s)", root, path)
}

func (l RootLock) readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (l RootLock) isStale(info *Info) bool {
	if !l.IsPIDAlive(info.PID) {
		return true
	}
	return l.Now().Sub(info.CreatedAt) > l.StaleAfter
}

// isPIDAlive uses the Unix signal-0 trick: signaling 0 succeeds when the
// process exists and we may signal it. EPERM means it exists but belongs
// to someone else; treat as alive.
func isPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
