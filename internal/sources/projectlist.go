package sources

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stacklok/repocache/internal/git"
)

// projectListSource scans only the paths named in the project-list file,
// each relative to the scan root
type projectListSource struct {
	tree *treeSource
}

var _ Source = (*projectListSource)(nil)

// NewProjectListSource creates a source reading the configured project-list file
func NewProjectListSource(client git.Client) Source {
	return &projectListSource{tree: newTreeSource(client)}
}

// Discover implements Source
func (s *projectListSource) Discover(ctx context.Context, req *DiscoverRequest) error {
	listPath := req.Config.ProjectList
	if listPath == "" {
		return fmt.Errorf("project-list is not configured")
	}

	//nolint:gosec // File path comes from user configuration, this is expected behavior
	f, err := os.Open(listPath)
	if err != nil {
		return fmt.Errorf("failed to open project list %s: %w", listPath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	seen := visited{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := s.tree.scanPath(ctx, req, req.Root, filepath.Join(req.Root, line), seen); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read project list %s: %w", listPath, err)
	}
	return nil
}
