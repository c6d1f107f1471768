package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		root        string
		projectList string
		expected    string
	}{
		{name: "root only", root: "/srv/git", expected: "c726e762"},
		{name: "root and project list", root: "/srv/git", projectList: "/etc/projects.list", expected: "85629f55"},
		{name: "empty root", root: "", expected: "811c9dc5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, KeyFor(tt.root, tt.projectList).String())
		})
	}
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	cacheRoot := t.TempDir()
	entry, err := NewEntry(cacheRoot, "/srv/git", "", 15)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cacheRoot, "rc-c726e762"), entry.Path)
	assert.Equal(t, entry.Path+".lock", entry.LockPath())
	assert.False(t, entry.Exists())
	assert.False(t, entry.LockHeld())

	require.NoError(t, os.WriteFile(entry.Path, nil, 0600))
	require.NoError(t, os.WriteFile(entry.LockPath(), nil, 0600))
	require.NoError(t, entry.Stat())
	assert.True(t, entry.Exists())
	assert.True(t, entry.LockHeld())
}

func TestEntry_Fresh(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ttl      int
		age      time.Duration
		expected bool
	}{
		{name: "just published", ttl: 15, age: 0, expected: true},
		{name: "at ttl", ttl: 15, age: 15 * time.Minute, expected: true},
		{name: "one second past ttl", ttl: 15, age: 15*time.Minute + time.Second, expected: false},
		{name: "sub second past ttl", ttl: 15, age: 15*time.Minute + 500*time.Millisecond, expected: true},
		{name: "zero ttl", ttl: 0, age: time.Second, expected: false},
		{name: "negative ttl", ttl: -1, age: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &Entry{TTL: tt.ttl, ModTime: published}
			assert.Equal(t, tt.expected, e.Fresh(published.Add(tt.age)))
		})
	}
}
