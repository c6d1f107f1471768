package cache

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"
)

const (
	filePrefix = "rc-"
	lockSuffix = ".lock"
	tmpSuffix  = ".tmp-"
)

// Key identifies the cache file of one scan root
type Key uint32

// KeyFor hashes the scan root and, when set, the project-list path. The two
// hashes are summed modulo 2^32, so keys are the same on every platform.
// They do not match cgit's, which hashes into an unsigned long.
func KeyFor(root, projectList string) Key {
	k := hashString(root)
	if projectList != "" {
		k += hashString(projectList)
	}
	return k
}

// hashString is 32-bit FNV-1
func hashString(s string) Key {
	h := fnv.New32()
	_, _ = h.Write([]byte(s))
	return Key(h.Sum32())
}

func (k Key) String() string {
	return fmt.Sprintf("%08x", uint32(k))
}

// Entry is the on-disk state of one cache key
type Entry struct {
	Key  Key
	Path string

	// TTL in minutes
	TTL int

	// ModTime is the publish time, zero when the file does not exist
	ModTime time.Time
}

// NewEntry locates the cache file for root below cacheRoot and stats it
func NewEntry(cacheRoot, root, projectList string, ttl int) (*Entry, error) {
	key := KeyFor(root, projectList)
	e := &Entry{
		Key:  key,
		Path: filepath.Join(cacheRoot, filePrefix+key.String()),
		TTL:  ttl,
	}
	if err := e.Stat(); err != nil {
		return nil, err
	}
	return e, nil
}

// Stat refreshes ModTime. A missing file is not an error.
func (e *Entry) Stat() error {
	fi, err := os.Stat(e.Path)
	switch {
	case err == nil:
		e.ModTime = fi.ModTime()
		return nil
	case errors.Is(err, os.ErrNotExist):
		e.ModTime = time.Time{}
		return nil
	default:
		return fmt.Errorf("failed to stat cache file %s: %w", e.Path, err)
	}
}

// Exists reports whether a published file was found
func (e *Entry) Exists() bool {
	return !e.ModTime.IsZero()
}

// Age returns the whole seconds since the file was published
func (e *Entry) Age(now time.Time) int64 {
	return now.Unix() - e.ModTime.Unix()
}

// Fresh reports whether the published file is still within its TTL
func (e *Entry) Fresh(now time.Time) bool {
	return e.Age(now) <= int64(e.TTL)*60
}

// LockPath is the lock file guarding generation of this entry
func (e *Entry) LockPath() string {
	return e.Path + lockSuffix
}

// LockHeld reports whether a lock file is present
func (e *Entry) LockHeld() bool {
	_, err := os.Lstat(e.LockPath())
	return err == nil
}
