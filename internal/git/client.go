// Package git inspects repositories on the local filesystem
package git

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Setting is one cgit.* key read from the repository configuration
type Setting struct {
	Key   string
	Value string
}

// RepositoryInfo holds the metadata discovery needs about one repository
type RepositoryInfo struct {
	// GitDir is the directory holding HEAD, objects and refs
	GitDir string

	// DefaultBranch is the branch HEAD points to, empty when HEAD is detached
	DefaultBranch string

	// Owner, Description and Category come from the gitweb section
	Owner       string
	Description string
	Category    string

	// Settings are the cgit.* options in file order
	Settings []Setting
}

// Client defines the interface for Git operations
type Client interface {
	// Inspect reads metadata of the repository stored in gitDir
	Inspect(gitDir string) (*RepositoryInfo, error)
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// IsGitDir reports whether path looks like a git directory: a HEAD file
// next to objects and refs directories.
func IsGitDir(path string) bool {
	head, err := os.Stat(filepath.Join(path, "HEAD"))
	if err != nil || !head.Mode().IsRegular() {
		return false
	}
	for _, dir := range []string{"objects", "refs"} {
		fi, err := os.Stat(filepath.Join(path, dir))
		if err != nil || !fi.IsDir() {
			return false
		}
	}
	return true
}

// Inspect opens the git directory without a worktree and reads HEAD and
// the repository configuration
func (*defaultGitClient) Inspect(gitDir string) (*RepositoryInfo, error) {
	storer := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	repo, err := git.Open(storer, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", gitDir, err)
	}

	info := &RepositoryInfo{GitDir: gitDir}

	// Unborn branches still have a symbolic HEAD, so read it unresolved
	head, err := repo.Reference(plumbing.HEAD, false)
	if err == nil && head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		info.DefaultBranch = head.Target().Short()
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to read config of %s: %w", gitDir, err)
	}
	if cfg.Raw != nil {
		gitweb := cfg.Raw.Section("gitweb")
		info.Owner = gitweb.Option("owner")
		info.Description = gitweb.Option("description")
		info.Category = gitweb.Option("category")

		for _, opt := range cfg.Raw.Section("cgit").Options {
			info.Settings = append(info.Settings, Setting{Key: opt.Key, Value: opt.Value})
		}
	}

	return info, nil
}
