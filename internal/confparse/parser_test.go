package confparse

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) []Entry {
	t.Helper()
	var entries []Entry
	err := Parse(strings.NewReader(input), func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	return entries
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []Entry
	}{
		{
			name:  "simple pairs",
			input: "cache-size=1000\nscan-path=/srv/git\n",
			expected: []Entry{
				{Name: "cache-size", Value: "1000", Line: 1},
				{Name: "scan-path", Value: "/srv/git", Line: 2},
			},
		},
		{
			name:  "comments and blank lines are skipped",
			input: "# comment\n\n; other comment\n   \nroot-title=Git\n",
			expected: []Entry{
				{Name: "root-title", Value: "Git", Line: 5},
			},
		},
		{
			name:  "value keeps everything after first equals",
			input: "repo.desc=a=b c \n",
			expected: []Entry{
				{Name: "repo.desc", Value: "a=b c ", Line: 1},
			},
		},
		{
			name:  "leading whitespace and CRLF",
			input: "  repo.url = foo\r\n",
			expected: []Entry{
				{Name: "repo.url", Value: " foo", Line: 1},
			},
		},
		{
			name:     "lines without equals are ignored",
			input:    "garbage\n=novalue\n",
			expected: nil,
		},
		{
			name:  "empty value",
			input: "repo.readme=\n",
			expected: []Entry{
				{Name: "repo.readme", Value: "", Line: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, collect(t, tt.input))
		})
	}
}

func TestParse_CallbackError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	err := Parse(strings.NewReader("a=1\nb=2\n"), func(Entry) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestParse_Stop(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Parse(strings.NewReader("a=1\nb=2\n"), func(Entry) error {
		calls++
		return ErrStop
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cgitrc")
	require.NoError(t, os.WriteFile(path, []byte("virtual-root=/\n"), 0600))

	var got []Entry
	err := ParseFile(path, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, path, got[0].Source)
	assert.Equal(t, path+":1", got[0].Position())

	err = ParseFile(filepath.Join(t.TempDir(), "missing"), func(Entry) error { return nil })
	assert.True(t, os.IsNotExist(err))
}
