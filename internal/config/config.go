// Package config provides loading of the cgitrc-style configuration that
// drives repository discovery and caching.
package config

import (
	"slices"

	"github.com/stacklok/repocache/internal/repo"
)

const (
	// DefaultConfigPath is used when neither a flag nor CGIT_CONFIG names a file
	DefaultConfigPath = "/etc/cgitrc"

	// DefaultCacheRoot is the directory holding cache artifacts
	DefaultCacheRoot = "/var/cache/cgit"

	// DefaultCacheSize is the cache size of a fresh configuration. cgit ships
	// with the cache disabled.
	DefaultCacheSize = 0

	// DefaultScanRCTTL is the lifetime in minutes of cached repository lists
	DefaultScanRCTTL = 15

	// DefaultPageTTL is the response lifetime in minutes of root, repository
	// and dynamic pages
	DefaultPageTTL = 5

	// DefaultStaticTTL is the response lifetime of pages addressed by object
	// id. Negative values mean "never expires".
	DefaultStaticTTL = -1

	// DefaultMaxCreateTime is the number of minutes after which a cache lock
	// is considered abandoned
	DefaultMaxCreateTime = 5

	// MaxIncludeDepth bounds nested include directives
	MaxIncludeDepth = 8
)

const (
	// SourceTypeTree discovers repositories by walking a directory tree
	SourceTypeTree = "scan-tree"

	// SourceTypeProjectList discovers the repositories named in a project-list file
	SourceTypeProjectList = "project-list"

	// SourceTypeGerrit asks the review service for the caller's projects
	SourceTypeGerrit = "gerrit"
)

// GerritConfig holds the endpoints of the remote review service
type GerritConfig struct {
	// ProjectListURL returns the JSON project list for the impersonated user
	ProjectListURL string

	// LoginURL issues a session cookie for the impersonated user
	LoginURL string

	// IndexURL is the neutral landing page used when login fails
	IndexURL string

	// CgitURL is where the browser returns to after a successful login
	CgitURL string

	// RemoteOnly disables the local scan fallback
	RemoteOnly bool
}

// Enabled reports whether every endpoint needed for remote discovery is set
func (g GerritConfig) Enabled() bool {
	return g.ProjectListURL != "" && g.LoginURL != "" && g.IndexURL != "" && g.CgitURL != ""
}

// Config is the state built while reading configuration lines. Options only
// affect what comes after them, so scan-path directives observe the
// configuration as it was when they were read.
type Config struct {
	// Path is the top-level configuration file
	Path string

	CacheRoot          string
	CacheSize          int
	NoCache            bool
	CacheScanRCTTL     int
	CacheRootTTL       int
	CacheRepoTTL       int
	CacheDynamicTTL    int
	CacheStaticTTL     int
	CacheMaxCreateTime int

	ProjectList     string
	ScanHiddenPath  bool
	RemoveSuffix    bool
	SectionFromPath int
	EnableGitConfig bool
	ScanPaths       []string

	// ScanInclude and ScanExclude are glob patterns over repository urls
	// found by the local scans
	ScanInclude []string
	ScanExclude []string

	Section    string
	ModuleLink string
	Readme     []repo.Readme

	EnableCommitGraph     bool
	EnableLogFilecount    bool
	EnableLogLinecount    bool
	EnableRemoteBranches  bool
	EnableSubjectLinks    bool
	EnableFilterOverrides bool

	AboutFilter  string
	CommitFilter string
	SourceFilter string

	Snapshots repo.SnapshotMask
	MaxStats  repo.StatsPeriod

	BranchSort repo.BranchSort
	CommitSort repo.CommitSort

	Gerrit GerritConfig
}

// New returns a configuration holding the built-in defaults
func New() *Config {
	return &Config{
		CacheRoot:          DefaultCacheRoot,
		CacheSize:          DefaultCacheSize,
		CacheScanRCTTL:     DefaultScanRCTTL,
		CacheRootTTL:       DefaultPageTTL,
		CacheRepoTTL:       DefaultPageTTL,
		CacheDynamicTTL:    DefaultPageTTL,
		CacheStaticTTL:     DefaultStaticTTL,
		CacheMaxCreateTime: DefaultMaxCreateTime,
	}
}

// CacheEnabled reports whether scan results should go through the cache
func (c *Config) CacheEnabled() bool {
	return !c.NoCache && c.CacheSize > 0
}

// LocalSourceType returns the filesystem backend a scan-path uses
func (c *Config) LocalSourceType() string {
	if c.ProjectList != "" {
		return SourceTypeProjectList
	}
	return SourceTypeTree
}

// SourceType returns the backend a scan-path uses when the cache is not involved
func (c *Config) SourceType() string {
	if c.Gerrit.Enabled() {
		return SourceTypeGerrit
	}
	return c.LocalSourceType()
}

// RepoDefaults returns the settings a newly registered repository inherits
func (c *Config) RepoDefaults() repo.Defaults {
	return repo.Defaults{
		Section:               c.Section,
		ModuleLink:            c.ModuleLink,
		Readme:                slices.Clone(c.Readme),
		EnableCommitGraph:     c.EnableCommitGraph,
		EnableLogFilecount:    c.EnableLogFilecount,
		EnableLogLinecount:    c.EnableLogLinecount,
		EnableRemoteBranches:  c.EnableRemoteBranches,
		EnableSubjectLinks:    c.EnableSubjectLinks,
		EnableFilterOverrides: c.EnableFilterOverrides,
		AboutFilter:           c.AboutFilter,
		CommitFilter:          c.CommitFilter,
		SourceFilter:          c.SourceFilter,
		Snapshots:             c.Snapshots,
		MaxStats:              c.MaxStats,
		BranchSort:            c.BranchSort,
		CommitSort:            c.CommitSort,
	}
}

// Clone returns a deep copy that later option lines cannot affect
func (c *Config) Clone() *Config {
	clone := *c
	clone.Readme = slices.Clone(c.Readme)
	clone.ScanPaths = slices.Clone(c.ScanPaths)
	clone.ScanInclude = slices.Clone(c.ScanInclude)
	clone.ScanExclude = slices.Clone(c.ScanExclude)
	return &clone
}
