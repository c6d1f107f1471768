// Package repo holds the repository record model and the registration sink
// every discovery backend reports through.
package repo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BranchSort selects how branches are ordered on repository pages
type BranchSort int

const (
	// BranchSortName orders branches by name
	BranchSortName BranchSort = iota
	// BranchSortAge orders branches by the age of their tip commit
	BranchSortAge
)

// String returns the configuration spelling of the sort policy
func (s BranchSort) String() string {
	if s == BranchSortAge {
		return "age"
	}
	return "name"
}

// MarshalJSON encodes the sort policy as its configuration spelling
func (s BranchSort) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the configuration spelling
func (s *BranchSort) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	sort, ok := ParseBranchSort(value)
	if !ok {
		return fmt.Errorf("unknown branch sort %q", value)
	}
	*s = sort
	return nil
}

// ParseBranchSort parses "name" or "age"
func ParseBranchSort(value string) (BranchSort, bool) {
	switch value {
	case "name":
		return BranchSortName, true
	case "age":
		return BranchSortAge, true
	default:
		return BranchSortName, false
	}
}

// CommitSort selects the commit ordering of log pages
type CommitSort int

const (
	// CommitSortNone keeps the default revision walk order
	CommitSortNone CommitSort = iota
	// CommitSortDate orders commits by date
	CommitSortDate
	// CommitSortTopo orders commits topologically
	CommitSortTopo
)

// String returns the configuration spelling of the sort policy
func (s CommitSort) String() string {
	switch s {
	case CommitSortDate:
		return "date"
	case CommitSortTopo:
		return "topo"
	default:
		return "none"
	}
}

// MarshalJSON encodes the sort policy as its configuration spelling
func (s CommitSort) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the configuration spelling. "none" is the default
// revision walk order.
func (s *CommitSort) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value == "none" {
		*s = CommitSortNone
		return nil
	}
	sort, ok := ParseCommitSort(value)
	if !ok {
		return fmt.Errorf("unknown commit sort %q", value)
	}
	*s = sort
	return nil
}

// ParseCommitSort parses "date" or "topo"
func ParseCommitSort(value string) (CommitSort, bool) {
	switch value {
	case "date":
		return CommitSortDate, true
	case "topo":
		return CommitSortTopo, true
	default:
		return CommitSortNone, false
	}
}

// Readme is one README candidate. A tracked candidate is read from the
// repository at Ref, otherwise File is a filesystem path.
type Readme struct {
	Ref     string `json:"ref,omitempty"`
	File    string `json:"file"`
	Tracked bool   `json:"tracked,omitempty"`
}

// ParseReadme parses "ref:path" (tracked) or "path"
func ParseReadme(value string) Readme {
	if ref, file, ok := strings.Cut(value, ":"); ok {
		return Readme{Ref: ref, File: file, Tracked: true}
	}
	return Readme{File: value}
}

// String returns the configuration spelling of the candidate
func (r Readme) String() string {
	if r.Tracked {
		return r.Ref + ":" + r.File
	}
	return r.File
}

// Record is one discoverable repository. Records are only built through a
// Sink and are identified by URL.
type Record struct {
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Path       string            `json:"path"`
	Owner      string            `json:"owner,omitempty"`
	Desc       string            `json:"desc,omitempty"`
	DefBranch  string            `json:"defbranch,omitempty"`
	ModuleLink string            `json:"module_link,omitempty"`
	Submodules map[string]string `json:"submodules,omitempty"`
	Section    string            `json:"section,omitempty"`
	CloneURL   string            `json:"clone_url,omitempty"`
	Readme     []Readme          `json:"readme,omitempty"`

	EnableCommitGraph    bool `json:"enable_commit_graph"`
	EnableLogFilecount   bool `json:"enable_log_filecount"`
	EnableLogLinecount   bool `json:"enable_log_linecount"`
	EnableRemoteBranches bool `json:"enable_remote_branches"`
	EnableSubjectLinks   bool `json:"enable_subject_links"`

	AboutFilter  string `json:"about_filter,omitempty"`
	CommitFilter string `json:"commit_filter,omitempty"`
	SourceFilter string `json:"source_filter,omitempty"`

	Snapshots SnapshotMask `json:"snapshots"`
	MaxStats  StatsPeriod  `json:"max_stats"`

	Logo     string `json:"logo,omitempty"`
	LogoLink string `json:"logo_link,omitempty"`

	BranchSort BranchSort `json:"branch_sort"`
	CommitSort CommitSort `json:"commit_sort"`
}

// Defaults are the global settings a new record inherits when its url is
// registered. They are also the reference the encoder compares overrides to.
type Defaults struct {
	Section    string
	ModuleLink string
	Readme     []Readme

	EnableCommitGraph    bool
	EnableLogFilecount   bool
	EnableLogLinecount   bool
	EnableRemoteBranches bool
	EnableSubjectLinks   bool

	// EnableFilterOverrides allows per-repository filter keys to take effect
	EnableFilterOverrides bool

	AboutFilter  string
	CommitFilter string
	SourceFilter string

	Snapshots SnapshotMask
	MaxStats  StatsPeriod

	BranchSort BranchSort
	CommitSort CommitSort
}

// newRecord builds a record for url from the given defaults
func newRecord(url string, d Defaults) *Record {
	r := &Record{
		URL:                  url,
		Name:                 url,
		Section:              d.Section,
		ModuleLink:           d.ModuleLink,
		EnableCommitGraph:    d.EnableCommitGraph,
		EnableLogFilecount:   d.EnableLogFilecount,
		EnableLogLinecount:   d.EnableLogLinecount,
		EnableRemoteBranches: d.EnableRemoteBranches,
		EnableSubjectLinks:   d.EnableSubjectLinks,
		AboutFilter:          d.AboutFilter,
		CommitFilter:         d.CommitFilter,
		SourceFilter:         d.SourceFilter,
		Snapshots:            d.Snapshots,
		MaxStats:             d.MaxStats,
		BranchSort:           d.BranchSort,
		CommitSort:           d.CommitSort,
	}
	if len(d.Readme) > 0 {
		r.Readme = append([]Readme(nil), d.Readme...)
	}
	return r
}
