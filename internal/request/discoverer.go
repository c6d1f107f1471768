package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/sources"
)

// Discoverer reads the configuration of a request and satisfies each of its
// scan-path directives
type Discoverer struct {
	cache   cache.Coordinator
	sources sources.SourceFactory
	getenv  func(string) string
}

// DiscovererOption configures the discoverer
type DiscovererOption func(*Discoverer)

// WithEnv sets the lookup used for $VAR macros in the configuration
func WithEnv(getenv func(string) string) DiscovererOption {
	return func(d *Discoverer) {
		d.getenv = getenv
	}
}

// NewDiscoverer creates a discoverer. coord serves scan-path directives
// while the cache is enabled.
func NewDiscoverer(factory sources.SourceFactory, coord cache.Coordinator, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{cache: coord, sources: factory}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load reads rc.ConfigPath into rc. Only an unreadable configuration is an
// error; discovery failures are logged and leave the list partial. When
// remote discovery demands a login, reading stops and rc.Redirect is set.
func (d *Discoverer) Load(ctx context.Context, rc *Context) error {
	opts := []config.Option{
		config.WithConfigPath(rc.ConfigPath),
		config.WithConfig(rc.Config),
		config.WithSink(rc.Sink()),
		config.WithScanHandler(func(ctx context.Context, cfg *config.Config, root string) error {
			return d.scan(ctx, rc, cfg, root)
		}),
	}
	if d.getenv != nil {
		opts = append(opts, config.WithEnv(d.getenv))
	}

	_, err := config.LoadConfig(ctx, opts...)
	var redirectErr *sources.RedirectError
	if errors.As(err, &redirectErr) {
		rc.Redirect = redirectErr.Redirect
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return nil
}

// scan dispatches one directive: cache first, then the review service,
// then the local backend
func (d *Discoverer) scan(ctx context.Context, rc *Context, cfg *config.Config, root string) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("root", root)
	before := rc.Repos.Len()

	var err error
	if cfg.CacheEnabled() && d.cache != nil {
		err = d.cache.EnsureRepositoryList(ctx, &cache.Request{Root: root, Config: cfg, Sink: rc.Sink()})
	} else {
		err = d.discover(ctx, rc, cfg, root)
	}

	var redirectErr *sources.RedirectError
	switch {
	case errors.As(err, &redirectErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case err != nil:
		logger.Error(err, "Repository discovery failed")
	}

	logger.V(1).Info("Processed scan-path", "repositories", rc.Repos.Len()-before)
	return nil
}

func (d *Discoverer) discover(ctx context.Context, rc *Context, cfg *config.Config, root string) error {
	src, err := d.sources.CreateSource(cfg.SourceType())
	if err != nil {
		return err
	}
	return src.Discover(ctx, &sources.DiscoverRequest{
		Root:   root,
		Config: cfg,
		Sink:   rc.Sink(),
		Caller: rc.Caller,
	})
}
