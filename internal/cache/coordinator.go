// Package cache keeps the repository list of each scan root in a file below
// the cache root, so requests can skip the scan while the file is fresh.
//
// A missing file is generated synchronously. A stale file is served as is
// and regenerated by detached work that the request never waits for.
// Generation is serialized per key by an exclusive lock file; a request
// that loses the race scans without caching instead of waiting.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/sources"
	"github.com/stacklok/repocache/internal/status"
	"github.com/stacklok/repocache/internal/telemetry"
)

// Request is one scan-path directive to satisfy
type Request struct {
	// Root is the scan root
	Root string

	// Config is the configuration in effect at the directive
	Config *config.Config

	// Sink receives the records for the current request
	Sink repo.Sink
}

// Coordinator provides cached repository lists
type Coordinator interface {
	// EnsureRepositoryList registers the repositories of req.Root into
	// req.Sink, from the cache file when there is one
	EnsureRepositoryList(ctx context.Context, req *Request) error

	// Regenerate rescans req.Root and republishes its cache file. It is the
	// body of detached regeneration. Lock contention is not an error.
	Regenerate(ctx context.Context, req *Request) error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	sources   sources.SourceFactory
	spawner   Spawner
	statusFor func(cacheRoot string) status.Persistence
	metrics   *telemetry.CacheMetrics
	now       func() time.Time
}

var _ Coordinator = (*defaultCoordinator)(nil)

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSpawner sets how stale entries are regenerated
func WithSpawner(s Spawner) Option {
	return func(c *defaultCoordinator) {
		c.spawner = s
	}
}

// WithStatusPersistence replaces the per cache root status files
func WithStatusPersistence(p status.Persistence) Option {
	return func(c *defaultCoordinator) {
		c.statusFor = func(string) status.Persistence { return p }
	}
}

// WithMetrics sets the cache metrics
func WithMetrics(m *telemetry.CacheMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = m
	}
}

// WithClock sets the time source used for ages
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a coordinator scanning through factory
func New(factory sources.SourceFactory, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		sources:   factory,
		spawner:   GoroutineSpawner{},
		statusFor: status.NewFilePersistence,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureRepositoryList implements Coordinator
func (c *defaultCoordinator) EnsureRepositoryList(ctx context.Context, req *Request) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("root", req.Root)
	cfg := req.Config

	entry, err := NewEntry(cfg.CacheRoot, req.Root, cfg.ProjectList, cfg.CacheScanRCTTL)
	if err != nil {
		logger.Error(err, "Cache unavailable, scanning without cache")
		c.metrics.RecordLookup(ctx, telemetry.LookupFallback)
		return c.scan(ctx, req)
	}

	if !entry.Exists() {
		data, err := c.generate(ctx, req, entry)
		var publishErr *PublishError
		switch {
		case err == nil, errors.As(err, &publishErr):
			c.metrics.RecordLookup(ctx, telemetry.LookupCold)
			return c.replay(data, req.Sink)
		case errors.Is(err, ErrLockContention):
			c.metrics.RecordLookup(ctx, telemetry.LookupContention)
		default:
			c.metrics.RecordLookup(ctx, telemetry.LookupFallback)
		}
		return c.scan(ctx, req)
	}

	if err := repo.DecodeFile(entry.Path, req.Sink); err != nil {
		logger.Error(err, "Failed to read cache file, scanning without cache", "path", entry.Path)
		c.metrics.RecordLookup(ctx, telemetry.LookupFallback)
		return c.scan(ctx, req)
	}

	now := c.now()
	if entry.Fresh(now) {
		c.metrics.RecordLookup(ctx, telemetry.LookupFresh)
		return nil
	}

	c.metrics.RecordLookup(ctx, telemetry.LookupStale)
	logger.V(1).Info("Cache file is stale, regenerating in background", "age", entry.Age(now), "ttl", entry.TTL)
	c.spawn(ctx, req)
	return nil
}

// Regenerate implements Coordinator
func (c *defaultCoordinator) Regenerate(ctx context.Context, req *Request) error {
	cfg := req.Config
	entry, err := NewEntry(cfg.CacheRoot, req.Root, cfg.ProjectList, cfg.CacheScanRCTTL)
	if err != nil {
		return err
	}
	if _, err := c.generate(ctx, req, entry); err != nil && !errors.Is(err, ErrLockContention) {
		return err
	}
	return nil
}

func (c *defaultCoordinator) spawn(ctx context.Context, req *Request) {
	// The configuration keeps changing after this directive
	detached := &Request{Root: req.Root, Config: req.Config.Clone()}
	job := Job{
		Root:       req.Root,
		ConfigPath: req.Config.Path,
		Run: func(ctx context.Context) {
			if err := c.Regenerate(ctx, detached); err != nil {
				logr.FromContextOrDiscard(ctx).Error(err, "Background regeneration failed", "root", detached.Root)
			}
		},
	}
	if err := c.spawner.Spawn(ctx, job); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Failed to spawn regeneration", "root", req.Root)
	}
}

// scan registers an uncached scan of req.Root into the request sink
func (c *defaultCoordinator) scan(ctx context.Context, req *Request) error {
	src, err := c.sources.CreateSource(req.Config.LocalSourceType())
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	return src.Discover(ctx, &sources.DiscoverRequest{Root: req.Root, Config: req.Config, Sink: req.Sink})
}

// replay feeds freshly generated records to the request sink the same way
// a cache file is read
func (*defaultCoordinator) replay(data []byte, sink repo.Sink) error {
	if err := repo.Decode(bytes.NewReader(data), sink); err != nil {
		return fmt.Errorf("failed to replay repository list: %w", err)
	}
	return nil
}
