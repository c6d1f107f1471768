package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/confparse"
	"github.com/stacklok/repocache/internal/git"
)

// defaultDescription is what git init writes to the description file
const defaultDescription = "Unnamed repository; edit this file 'description' to name the repository."

// treeSource walks a directory tree looking for git directories
type treeSource struct {
	git    git.Client
	filter NameFilter
}

var _ Source = (*treeSource)(nil)

// NewTreeSource creates a source scanning a directory tree
func NewTreeSource(client git.Client) Source {
	return newTreeSource(client)
}

func newTreeSource(client git.Client) *treeSource {
	if client == nil {
		client = git.NewDefaultGitClient()
	}
	return &treeSource{git: client, filter: NewDefaultNameFilter()}
}

// Discover implements Source
func (s *treeSource) Discover(ctx context.Context, req *DiscoverRequest) error {
	fi, err := os.Stat(req.Root)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", req.Root, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("failed to scan %s: not a directory", req.Root)
	}
	return s.scanPath(ctx, req, req.Root, req.Root, visited{})
}

// visited holds the real paths of directories a scan has entered
type visited map[string]struct{}

// enter records the real path of path and reports whether it was new
func (v visited) enter(path string) (bool, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false, err
	}
	if _, ok := v[resolved]; ok {
		return false, nil
	}
	v[resolved] = struct{}{}
	return true, nil
}

// scanPath registers path when it is a repository, otherwise descends
// into its subdirectories. Unreadable directories and directories already
// reached through another link are skipped.
func (s *treeSource) scanPath(ctx context.Context, req *DiscoverRequest, base, path string, seen visited) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logr.FromContextOrDiscard(ctx)
	if ok, err := seen.enter(path); err != nil {
		logger.Info("Skipping unreadable directory", "path", path, "error", err.Error())
		return nil
	} else if !ok {
		logger.V(1).Info("Skipping directory already scanned", "path", path)
		return nil
	}

	if git.IsGitDir(path) {
		s.addRepo(ctx, req, base, path)
		return nil
	}
	if dotGit := filepath.Join(path, ".git"); git.IsGitDir(dotGit) {
		s.addRepo(ctx, req, base, dotGit)
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		logger.Info("Skipping unreadable directory", "path", path, "error", err.Error())
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		if name[0] == '.' && !req.Config.ScanHiddenPath {
			continue
		}
		child := filepath.Join(path, name)

		// Stat follows symlinks so linked repositories are found
		fi, err := os.Stat(child)
		if err != nil || !fi.IsDir() {
			continue
		}
		if err := s.scanPath(ctx, req, base, child, seen); err != nil {
			return err
		}
	}
	return nil
}

func (s *treeSource) addRepo(ctx context.Context, req *DiscoverRequest, base, gitDir string) {
	logger := logr.FromContextOrDiscard(ctx)
	cfg := req.Config

	url := repoURL(base, gitDir)
	if cfg.RemoveSuffix && len(url) > len(".git") && strings.HasSuffix(url, ".git") {
		url = strings.TrimSuffix(url, ".git")
	}
	if ok, reason := s.filter.ShouldInclude(url, cfg.ScanInclude, cfg.ScanExclude); !ok {
		logger.V(1).Info("Skipping repository", "url", url, "reason", reason)
		return
	}

	req.Sink.Register("url", url)
	req.Sink.Register("path", gitDir)

	if section, name, ok := sectionFromPath(url, cfg.SectionFromPath); ok {
		req.Sink.Register("section", section)
		req.Sink.Register("name", name)
	}

	haveDesc := false
	if cfg.EnableGitConfig {
		info, err := s.git.Inspect(gitDir)
		if err != nil {
			logger.V(1).Info("Failed to read repository config", "path", gitDir, "error", err.Error())
		} else {
			if info.Owner != "" {
				req.Sink.Register("owner", info.Owner)
			}
			if info.Description != "" {
				req.Sink.Register("desc", info.Description)
				haveDesc = true
			}
			if info.Category != "" {
				req.Sink.Register("section", info.Category)
			}
			if info.DefaultBranch != "" && !hasSetting(info.Settings, "defbranch") {
				req.Sink.Register("defbranch", info.DefaultBranch)
			}
			for _, setting := range info.Settings {
				req.Sink.Register(setting.Key, setting.Value)
			}
		}
	}

	if !haveDesc {
		if desc := readDescription(gitDir); desc != "" {
			req.Sink.Register("desc", desc)
		}
	}

	if len(cfg.Readme) == 0 {
		readme := filepath.Join(gitDir, "README.html")
		if fi, err := os.Stat(readme); err == nil && fi.Mode().IsRegular() {
			req.Sink.Register("readme", readme)
		}
	}

	rc := filepath.Join(gitDir, "cgitrc")
	if _, err := os.Stat(rc); err == nil {
		err := confparse.ParseFile(rc, func(e confparse.Entry) error {
			req.Sink.Register(e.Name, e.Value)
			return nil
		})
		if err != nil {
			logger.Info("Failed to read repository cgitrc", "path", rc, "error", err.Error())
		}
	}
}

func hasSetting(settings []git.Setting, key string) bool {
	for _, s := range settings {
		if s.Key == key {
			return true
		}
	}
	return false
}

// repoURL derives the repository url from its position below base
func repoURL(base, gitDir string) string {
	rel, err := filepath.Rel(base, gitDir)
	if err != nil {
		rel = gitDir
	}
	rel = filepath.ToSlash(rel)

	switch {
	case rel == ".git":
		return filepath.Base(filepath.Dir(gitDir))
	case rel == ".":
		return filepath.Base(gitDir)
	case strings.HasSuffix(rel, "/.git"):
		return strings.TrimSuffix(rel, "/.git")
	default:
		return rel
	}
}

// sectionFromPath splits url into a section and a name. A positive n takes
// the first n path components as the section, a negative n keeps the last
// -n components as the name.
func sectionFromPath(url string, n int) (section, name string, ok bool) {
	if n == 0 {
		return "", "", false
	}
	parts := strings.Split(url, "/")
	var cut int
	if n > 0 {
		cut = n
	} else {
		cut = len(parts) + n
	}
	if cut <= 0 || cut >= len(parts) {
		return "", "", false
	}
	return strings.Join(parts[:cut], "/"), strings.Join(parts[cut:], "/"), true
}

func readDescription(gitDir string) string {
	//nolint:gosec // path is inside a discovered repository
	data, err := os.ReadFile(filepath.Join(gitDir, "description"))
	if err != nil {
		return ""
	}
	desc := strings.TrimSpace(string(data))
	if desc == defaultDescription {
		return ""
	}
	return desc
}
