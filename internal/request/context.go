// Package request holds the state of one page request: the configuration
// read for it, the repositories registered while reading it and the caller
// it is made for. Nothing here is shared between requests.
package request

import (
	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/sources"
)

// Context is the per-request state
type Context struct {
	// ConfigPath is the configuration file to read
	ConfigPath string

	// Config is set once the configuration has been read
	Config *config.Config

	// Repos collects every repository registered for this request
	Repos *repo.List

	// Caller is who remote discovery impersonates
	Caller *sources.Caller

	// Redirect is set when remote discovery requires the caller to log in.
	// It replaces the page response.
	Redirect *sources.Redirect

	registrar *repo.Registrar
}

// New creates the state for one request
func New(configPath string, caller *sources.Caller, logger logr.Logger) *Context {
	rc := &Context{
		ConfigPath: configPath,
		Repos:      repo.NewList(),
		Caller:     caller,
		Config:     config.New(),
	}
	rc.registrar = repo.NewRegistrar(rc.Repos, rc.defaults, repo.WithLogger(logger))
	return rc
}

// Sink is where repository attributes for this request are registered
func (rc *Context) Sink() repo.Sink {
	return rc.registrar
}

// defaults reads the configuration as it is when a repository starts
func (rc *Context) defaults() repo.Defaults {
	return rc.Config.RepoDefaults()
}
