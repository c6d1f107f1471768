package sources

import (
	"fmt"

	"github.com/gobwas/glob"
)

// NameFilter decides which discovered repositories are registered, by glob
// patterns over the repository url
type NameFilter interface {
	// ShouldInclude reports whether url passes the include and exclude
	// patterns, and why
	ShouldInclude(url string, include, exclude []string) (bool, string)
}

type defaultNameFilter struct{}

var _ NameFilter = (*defaultNameFilter)(nil)

// NewDefaultNameFilter creates a NameFilter backed by gobwas/glob
func NewDefaultNameFilter() NameFilter {
	return &defaultNameFilter{}
}

// CompilePattern validates a url pattern. Without separators * also
// matches across slashes.
func CompilePattern(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return g, nil
}

// ShouldInclude applies exclude patterns first. With include patterns set
// the url must match one of them.
func (*defaultNameFilter) ShouldInclude(url string, include, exclude []string) (bool, string) {
	for _, pattern := range exclude {
		g, err := CompilePattern(pattern)
		if err != nil {
			return false, err.Error()
		}
		if g.Match(url) {
			return false, fmt.Sprintf("excluded by pattern '%s'", pattern)
		}
	}

	if len(include) == 0 {
		return true, "no include patterns"
	}
	for _, pattern := range include {
		g, err := CompilePattern(pattern)
		if err != nil {
			return false, err.Error()
		}
		if g.Match(url) {
			return true, fmt.Sprintf("included by pattern '%s'", pattern)
		}
	}
	return false, fmt.Sprintf("no match in include patterns %v", include)
}
