package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/stacklok/repocache/internal/repo"
)

// setter applies one option value. expand performs macro expansion for
// options that take paths.
type setter func(c *Config, value string, expand func(string) string) error

func stringOption(field func(*Config) *string) setter {
	return func(c *Config, value string, _ func(string) string) error {
		*field(c) = value
		return nil
	}
}

func pathOption(field func(*Config) *string) setter {
	return func(c *Config, value string, expand func(string) string) error {
		*field(c) = expand(value)
		return nil
	}
}

func intOption(field func(*Config) *int) setter {
	return func(c *Config, value string, _ func(string) string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		*field(c) = n
		return nil
	}
}

func boolOption(field func(*Config) *bool) setter {
	return func(c *Config, value string, _ func(string) string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid boolean %q, expected 0 or 1", value)
		}
		*field(c) = n != 0
		return nil
	}
}

// patternOption appends a url glob pattern. An empty value clears the list.
func patternOption(field func(*Config) *[]string) setter {
	return func(c *Config, value string, _ func(string) string) error {
		if value == "" {
			*field(c) = nil
			return nil
		}
		if _, err := glob.Compile(value); err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", value, err)
		}
		*field(c) = append(*field(c), value)
		return nil
	}
}

// options maps every global option name to its setter. Directives that do
// more than set a field (include, scan-path, repo.*) are handled by the
// loader.
var options = map[string]setter{
	"cache-root":            pathOption(func(c *Config) *string { return &c.CacheRoot }),
	"cache-size":            intOption(func(c *Config) *int { return &c.CacheSize }),
	"nocache":               boolOption(func(c *Config) *bool { return &c.NoCache }),
	"cache-scanrc-ttl":      intOption(func(c *Config) *int { return &c.CacheScanRCTTL }),
	"cache-root-ttl":        intOption(func(c *Config) *int { return &c.CacheRootTTL }),
	"cache-repo-ttl":        intOption(func(c *Config) *int { return &c.CacheRepoTTL }),
	"cache-dynamic-ttl":     intOption(func(c *Config) *int { return &c.CacheDynamicTTL }),
	"cache-static-ttl":      intOption(func(c *Config) *int { return &c.CacheStaticTTL }),
	"cache-max-create-time": intOption(func(c *Config) *int { return &c.CacheMaxCreateTime }),

	"project-list":      pathOption(func(c *Config) *string { return &c.ProjectList }),
	"scan-hidden-path":  boolOption(func(c *Config) *bool { return &c.ScanHiddenPath }),
	"remove-suffix":     boolOption(func(c *Config) *bool { return &c.RemoveSuffix }),
	"section-from-path": intOption(func(c *Config) *int { return &c.SectionFromPath }),
	"enable-git-config": boolOption(func(c *Config) *bool { return &c.EnableGitConfig }),
	"scan-include":      patternOption(func(c *Config) *[]string { return &c.ScanInclude }),
	"scan-exclude":      patternOption(func(c *Config) *[]string { return &c.ScanExclude }),

	"section":     stringOption(func(c *Config) *string { return &c.Section }),
	"repo.group":  stringOption(func(c *Config) *string { return &c.Section }),
	"module-link": stringOption(func(c *Config) *string { return &c.ModuleLink }),
	"readme": func(c *Config, value string, _ func(string) string) error {
		if value != "" {
			c.Readme = append(c.Readme, repo.ParseReadme(value))
		}
		return nil
	},

	"enable-commit-graph":     boolOption(func(c *Config) *bool { return &c.EnableCommitGraph }),
	"enable-log-filecount":    boolOption(func(c *Config) *bool { return &c.EnableLogFilecount }),
	"enable-log-linecount":    boolOption(func(c *Config) *bool { return &c.EnableLogLinecount }),
	"enable-remote-branches":  boolOption(func(c *Config) *bool { return &c.EnableRemoteBranches }),
	"enable-subject-links":    boolOption(func(c *Config) *bool { return &c.EnableSubjectLinks }),
	"enable-filter-overrides": boolOption(func(c *Config) *bool { return &c.EnableFilterOverrides }),

	"about-filter":  stringOption(func(c *Config) *string { return &c.AboutFilter }),
	"commit-filter": stringOption(func(c *Config) *string { return &c.CommitFilter }),
	"source-filter": stringOption(func(c *Config) *string { return &c.SourceFilter }),

	"snapshots": func(c *Config, value string, _ func(string) string) error {
		c.Snapshots = repo.ParseSnapshots(value)
		return nil
	},
	"max-stats": func(c *Config, value string, _ func(string) string) error {
		p, ok := repo.ParseStatsPeriod(value)
		if !ok {
			return fmt.Errorf("invalid stats period %q", value)
		}
		c.MaxStats = p
		return nil
	},
	"branch-sort": func(c *Config, value string, _ func(string) string) error {
		s, ok := repo.ParseBranchSort(value)
		if !ok {
			return fmt.Errorf("invalid branch sort %q, expected name or age", value)
		}
		c.BranchSort = s
		return nil
	},
	"commit-sort": func(c *Config, value string, _ func(string) string) error {
		s, ok := repo.ParseCommitSort(value)
		if !ok {
			return fmt.Errorf("invalid commit sort %q, expected date or topo", value)
		}
		c.CommitSort = s
		return nil
	},

	"gerrit-project-list-url": stringOption(func(c *Config) *string { return &c.Gerrit.ProjectListURL }),
	"gerrit-login-url":        stringOption(func(c *Config) *string { return &c.Gerrit.LoginURL }),
	"gerrit-index-url":        stringOption(func(c *Config) *string { return &c.Gerrit.IndexURL }),
	"gerrit-cgit-url":         stringOption(func(c *Config) *string { return &c.Gerrit.CgitURL }),
	"gerrit-remote-only":      boolOption(func(c *Config) *bool { return &c.Gerrit.RemoteOnly }),
}

// IsOption reports whether name is a known global option
func IsOption(name string) bool {
	_, ok := options[name]
	return ok
}
