package cache

import "github.com/stacklok/repocache/internal/config"

// Query is the part of a page request the response TTL depends on
type Query struct {
	// Repo is the requested repository, empty for the index
	Repo string

	// Page is the requested page, empty for the repository summary
	Page string

	// HasSymref is set when the query names a branch or tag (h=)
	HasSymref bool

	// HasSHA1 is set when the query names an object id (id=)
	HasSHA1 bool
}

// ResponseTTL returns the page cache lifetime in minutes for q. A negative
// value means the response never expires.
func ResponseTTL(cfg *config.Config, q Query) int {
	switch {
	case q.Repo == "":
		return cfg.CacheRootTTL
	case q.Page == "":
		return cfg.CacheRepoTTL
	case q.HasSymref:
		return cfg.CacheDynamicTTL
	case q.HasSHA1:
		return cfg.CacheStaticTTL
	default:
		return cfg.CacheRepoTTL
	}
}
