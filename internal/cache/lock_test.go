package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rc-00000001.lock")

	lock, err := AcquireLock(path, 5*time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, path, lock.Path())
	assert.FileExists(t, path)

	_, err = AcquireLock(path, 5*time.Minute, time.Now())
	require.ErrorIs(t, err, ErrLockContention)

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, path)

	lock, err = AcquireLock(path, 5*time.Minute, time.Now())
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireLock_StaleLock(t *testing.T) {
	t.Parallel()

	now := time.Now()
	old := now.Add(-10 * time.Minute)

	tests := []struct {
		name       string
		mtime      time.Time
		staleAfter time.Duration
		holdFlock  bool
		expectErr  error
	}{
		{name: "dead holder is replaced", mtime: old, staleAfter: 5 * time.Minute},
		{name: "live holder keeps the lock", mtime: old, staleAfter: 5 * time.Minute, holdFlock: true, expectErr: ErrLockContention},
		{name: "recent lock is contention", mtime: now, staleAfter: 5 * time.Minute, expectErr: ErrLockContention},
		{name: "recovery disabled", mtime: old, staleAfter: 0, expectErr: ErrLockContention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "rc-00000002.lock")
			require.NoError(t, os.WriteFile(path, nil, 0600))
			require.NoError(t, os.Chtimes(path, tt.mtime, tt.mtime))

			if tt.holdFlock {
				holder := flock.New(path)
				locked, err := holder.TryLock()
				require.NoError(t, err)
				require.True(t, locked)
				defer func() { _ = holder.Unlock() }()
			}

			lock, err := AcquireLock(path, tt.staleAfter, now)
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				assert.FileExists(t, path)
				return
			}
			require.NoError(t, err)
			defer func() { _ = lock.Release() }()

			fi, err := os.Stat(path)
			require.NoError(t, err)
			assert.True(t, fi.ModTime().After(old))
		})
	}
}

func TestAcquireLock_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := AcquireLock(filepath.Join(t.TempDir(), "missing", "rc.lock"), time.Minute, time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockContention)
}

func TestPublish(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rc-00000003")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	require.NoError(t, publish(path, []byte("repo.url=a\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "repo.url=a\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	err = publish(filepath.Join(dir, "missing", "rc-00000004"), []byte("x"))
	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, filepath.Join(dir, "missing", "rc-00000004"), publishErr.Path)
}
