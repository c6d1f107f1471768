package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockContention means another generation run holds the lock
var ErrLockContention = errors.New("cache generation already in progress")

// Lock is a held generation lock. The lock file is created exclusively and
// additionally flocked, so a lock left behind by a dead holder can be told
// apart from a live one.
type Lock struct {
	path string
	fl   *flock.Flock
}

// AcquireLock creates path exclusively. It never waits: an existing lock
// yields ErrLockContention, unless it is older than staleAfter and nobody
// holds its flock, in which case it is removed and acquisition is retried
// once.
func AcquireLock(path string, staleAfter time.Duration, now time.Time) (*Lock, error) {
	l, err := createLock(path)
	if !errors.Is(err, ErrLockContention) || staleAfter <= 0 {
		return l, err
	}
	if !breakStaleLock(path, staleAfter, now) {
		return nil, err
	}
	return createLock(path)
}

func createLock(path string) (*Lock, error) {
	//nolint:gosec // lock path is derived from the configured cache root
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLockContention
		}
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}
	_ = f.Close()

	fl := flock.New(path, flock.SetFlag(os.O_RDWR))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		// Only a stale lock breaker can hold it; it will remove the file
		_ = fl.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		return nil, ErrLockContention
	}
	return &Lock{path: path, fl: fl}, nil
}

// breakStaleLock removes a lock file whose holder is gone and reports
// whether it did
func breakStaleLock(path string, staleAfter time.Duration, now time.Time) bool {
	before, err := os.Stat(path)
	if err != nil || now.Sub(before.ModTime()) <= staleAfter {
		return false
	}

	fl := flock.New(path, flock.SetFlag(os.O_RDONLY))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		_ = fl.Close()
		return false
	}
	defer func() { _ = fl.Unlock() }()

	// The file may have been replaced by a new holder after the stat
	after, err := os.Stat(path)
	if err != nil || !os.SameFile(before, after) {
		return false
	}
	return os.Remove(path) == nil
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file and drops the flock
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if unlockErr := l.fl.Unlock(); err == nil {
		err = unlockErr
	}
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}
