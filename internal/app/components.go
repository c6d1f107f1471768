package app

import (
	"github.com/stacklok/repocache/internal/api"
	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/request"
	"github.com/stacklok/repocache/internal/sources"
)

// Components groups the discovery stack shared by every command
type Components struct {
	// Sources creates the discovery backends
	Sources sources.SourceFactory

	// Coordinator serves scan-path directives while the cache is enabled
	Coordinator cache.Coordinator

	// Discoverer reads the configuration of one request
	Discoverer *request.Discoverer

	// Handler answers repository list requests
	Handler *api.Handler
}
