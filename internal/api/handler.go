package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/request"
	"github.com/stacklok/repocache/internal/sources"
	"github.com/stacklok/repocache/internal/status"
)

const (
	// RemoteUserHeader carries the caller identity set by an authenticating proxy
	RemoteUserHeader = "Remote-User"

	// ForwardedUserHeader is consulted when RemoteUserHeader is absent
	ForwardedUserHeader = "X-Forwarded-User"

	// neverExpires is the max-age sent for responses with a negative TTL
	neverExpires = 365 * 24 * 60 * 60
)

// IdentityFunc returns where the caller identity of r is looked up, in order
type IdentityFunc func(r *http.Request) []sources.IdentitySource

// HeaderIdentities looks the caller up in request headers
func HeaderIdentities(keys ...string) IdentityFunc {
	return func(r *http.Request) []sources.IdentitySource {
		ids := make([]sources.IdentitySource, 0, len(keys))
		for _, key := range keys {
			ids = append(ids, sources.HeaderIdentity{Header: r.Header, Key: key})
		}
		return ids
	}
}

// EnvIdentities looks the caller up in CGI variables
func EnvIdentities(getenv func(string) string, vars ...string) IdentityFunc {
	return func(*http.Request) []sources.IdentitySource {
		ids := make([]sources.IdentitySource, 0, len(vars))
		for _, v := range vars {
			ids = append(ids, sources.EnvIdentity{Var: v, Getenv: getenv})
		}
		return ids
	}
}

// Handler answers repository list requests. Every request reads the
// configuration again and gets its own request context.
type Handler struct {
	discoverer *request.Discoverer
	configPath string
	identities IdentityFunc
}

// HandlerOption configures the handler
type HandlerOption func(*Handler)

// WithIdentities sets where caller identities are looked up
func WithIdentities(f IdentityFunc) HandlerOption {
	return func(h *Handler) {
		h.identities = f
	}
}

// NewHandler creates a handler reading configPath for each request. By
// default the caller identity comes from the Remote-User and
// X-Forwarded-User headers.
func NewHandler(d *request.Discoverer, configPath string, opts ...HandlerOption) *Handler {
	h := &Handler{
		discoverer: d,
		configPath: configPath,
		identities: HeaderIdentities(RemoteUserHeader, ForwardedUserHeader),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeRepos handles GET /repos. The response is replaced by a redirect
// when remote discovery requires the caller to log in.
func (h *Handler) ServeRepos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logr.FromContextOrDiscard(ctx)

	caller := &sources.Caller{
		Identities: h.identities(r),
		Cookie:     r.Header.Get("Cookie"),
	}
	rc := request.New(h.configPath, caller, logger)

	if err := h.discoverer.Load(ctx, rc); err != nil {
		logger.Error(err, "Failed to load repositories", "config", h.configPath)
		writeErrorResponse(w, "failed to load configuration", http.StatusInternalServerError)
		return
	}

	if rc.Redirect != nil {
		rc.Redirect.Write(w)
		return
	}

	q := r.URL.Query()
	ttl := cache.ResponseTTL(rc.Config, cache.Query{
		Repo:      q.Get("r"),
		Page:      q.Get("p"),
		HasSymref: q.Get("h") != "",
		HasSHA1:   q.Get("id") != "",
	})
	w.Header().Set("Cache-Control", cacheControl(ttl))

	records := rc.Repos.Sorted()
	if records == nil {
		records = []*repo.Record{}
	}
	writeJSONResponse(w, RepositoryListResponse{Repositories: records, Count: len(records)}, http.StatusOK)
}

// ServeStatus handles GET /status
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Only the cache root is needed, scan-path directives are not served
	cfg, err := config.LoadConfig(ctx, config.WithConfigPath(h.configPath))
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Failed to load configuration", "config", h.configPath)
		writeErrorResponse(w, "failed to load configuration", http.StatusInternalServerError)
		return
	}

	entries, err := status.NewFilePersistence(cfg.CacheRoot).LoadAllStatus(ctx)
	if err != nil {
		writeErrorResponse(w, fmt.Sprintf("failed to read cache status: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, StatusResponse{CacheRoot: cfg.CacheRoot, Entries: entries}, http.StatusOK)
}

// cacheControl renders a TTL in minutes as a Cache-Control value
func cacheControl(ttl int) string {
	switch {
	case ttl < 0:
		return "max-age=" + strconv.Itoa(neverExpires)
	case ttl == 0:
		return "no-cache"
	default:
		return "max-age=" + strconv.Itoa(ttl*60)
	}
}
