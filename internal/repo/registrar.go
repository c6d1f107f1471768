package repo

import (
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// Sink receives repository attributes from discovery backends. A "url" key
// starts a new record; every other key applies to the most recently started
// record. An empty value stands for "no value".
type Sink interface {
	Register(key, value string)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(key, value string)

// Register calls f(key, value)
func (f SinkFunc) Register(key, value string) {
	f(key, value)
}

const submodulePrefix = "module-link."

type attribute struct {
	set func(r *Record, d *Defaults, value string)

	// nullable attributes ignore the empty value
	nullable bool

	// filter attributes only apply when filter overrides are enabled
	filter bool
}

var attributes = map[string]attribute{
	"name":      {set: func(r *Record, _ *Defaults, v string) { r.Name = v }},
	"path":      {set: func(r *Record, _ *Defaults, v string) { r.Path = strings.TrimRight(v, "/") }},
	"clone-url": {set: func(r *Record, _ *Defaults, v string) { r.CloneURL = v }},
	"desc":      {set: func(r *Record, _ *Defaults, v string) { r.Desc = v }},
	"owner":     {set: func(r *Record, _ *Defaults, v string) { r.Owner = v }},
	"defbranch": {set: func(r *Record, _ *Defaults, v string) { r.DefBranch = v }},
	"section":   {set: func(r *Record, _ *Defaults, v string) { r.Section = v }},
	"snapshots": {set: func(r *Record, d *Defaults, v string) {
		r.Snapshots = d.Snapshots & ParseSnapshots(v)
	}},
	"enable-commit-graph":    {set: func(r *Record, _ *Defaults, v string) { r.EnableCommitGraph = atob(v) }},
	"enable-log-filecount":   {set: func(r *Record, _ *Defaults, v string) { r.EnableLogFilecount = atob(v) }},
	"enable-log-linecount":   {set: func(r *Record, _ *Defaults, v string) { r.EnableLogLinecount = atob(v) }},
	"enable-remote-branches": {set: func(r *Record, _ *Defaults, v string) { r.EnableRemoteBranches = atob(v) }},
	"enable-subject-links":   {set: func(r *Record, _ *Defaults, v string) { r.EnableSubjectLinks = atob(v) }},
	"branch-sort": {set: func(r *Record, _ *Defaults, v string) {
		if s, ok := ParseBranchSort(v); ok {
			r.BranchSort = s
		}
	}},
	"commit-sort": {set: func(r *Record, _ *Defaults, v string) {
		if s, ok := ParseCommitSort(v); ok {
			r.CommitSort = s
		}
	}},
	"max-stats": {set: func(r *Record, _ *Defaults, v string) {
		r.MaxStats, _ = ParseStatsPeriod(v)
	}},
	"module-link": {set: func(r *Record, _ *Defaults, v string) { r.ModuleLink = v }},
	"logo":        {set: func(r *Record, _ *Defaults, v string) { r.Logo = v }, nullable: true},
	"logo-link":   {set: func(r *Record, _ *Defaults, v string) { r.LogoLink = v }, nullable: true},

	// readme is handled by the registrar because the first candidate replaces
	// the inherited list
	"readme": {nullable: true},

	"about-filter":  {set: func(r *Record, _ *Defaults, v string) { r.AboutFilter = v }, filter: true},
	"commit-filter": {set: func(r *Record, _ *Defaults, v string) { r.CommitFilter = v }, filter: true},
	"source-filter": {set: func(r *Record, _ *Defaults, v string) { r.SourceFilter = v }, filter: true},
}

// atob mirrors the permissive integer parsing of the configuration format:
// anything that is not a non-zero integer is false.
func atob(value string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	return err == nil && n != 0
}

// IsAttribute reports whether key is a known repository attribute
func IsAttribute(key string) bool {
	if key == "url" || strings.HasPrefix(key, submodulePrefix) {
		return true
	}
	_, ok := attributes[key]
	return ok
}

// RegistrarOption configures a Registrar
type RegistrarOption func(*Registrar)

// WithLogger sets the logger used for ignored registrations
func WithLogger(logger logr.Logger) RegistrarOption {
	return func(r *Registrar) {
		r.logger = logger
	}
}

// Registrar is the Sink that builds records into a List
type Registrar struct {
	list     *List
	defaults func() Defaults
	logger   logr.Logger

	current         *Record
	currentDefaults Defaults
	ownReadme       bool
}

// NewRegistrar returns a Registrar adding records to list. defaults is
// consulted each time a url starts a record, so records see the global
// settings in effect at the point they were registered.
func NewRegistrar(list *List, defaults func() Defaults, opts ...RegistrarOption) *Registrar {
	if defaults == nil {
		defaults = func() Defaults { return Defaults{} }
	}
	r := &Registrar{
		list:     list,
		defaults: defaults,
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the list the registrar writes to
func (s *Registrar) List() *List {
	return s.list
}

// Current returns the record attributes are applied to, if any
func (s *Registrar) Current() *Record {
	return s.current
}

// Register implements Sink
func (s *Registrar) Register(key, value string) {
	if key == "url" {
		s.start(value)
		return
	}

	if s.current == nil {
		s.logger.V(1).Info("Ignoring attribute outside of a repository", "key", key)
		return
	}

	if name, ok := strings.CutPrefix(key, submodulePrefix); ok {
		if s.current.Submodules == nil {
			s.current.Submodules = make(map[string]string)
		}
		s.current.Submodules[name] = value
		return
	}

	attr, ok := attributes[key]
	if !ok {
		s.logger.V(1).Info("Ignoring unknown repository attribute", "key", key, "url", s.current.URL)
		return
	}
	if attr.nullable && value == "" {
		return
	}
	if attr.filter && !s.currentDefaults.EnableFilterOverrides {
		s.logger.V(1).Info("Filter overrides are disabled", "key", key, "url", s.current.URL)
		return
	}

	if key == "readme" {
		s.addReadme(value)
		return
	}
	attr.set(s.current, &s.currentDefaults, value)
}

func (s *Registrar) start(url string) {
	s.current = nil
	if url == "" {
		s.logger.V(1).Info("Ignoring repository without url")
		return
	}
	if strings.ContainsAny(url, "\r\n") {
		s.logger.Info("Ignoring repository with a multi-line url", "url", url)
		return
	}

	d := s.defaults()
	rec, added := s.list.Add(url, d)
	if !added {
		s.logger.V(1).Info("Repository already registered, keeping the first registration", "url", url)
		return
	}
	s.current = rec
	s.currentDefaults = d
	s.ownReadme = false
}

func (s *Registrar) addReadme(value string) {
	if !s.ownReadme {
		s.current.Readme = nil
		s.ownReadme = true
	}
	s.current.Readme = append(s.current.Readme, ParseReadme(value))
}
