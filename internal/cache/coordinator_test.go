package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/cache/mocks"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/sources"
	sourcemocks "github.com/stacklok/repocache/internal/sources/mocks"
	"github.com/stacklok/repocache/internal/status"
)

const scanRoot = "/srv/git"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.CacheRoot = t.TempDir()
	cfg.CacheSize = 1000
	cfg.Path = "/etc/cgitrc"
	return cfg
}

func newRequest(cfg *config.Config) (*cache.Request, *repo.List) {
	list := repo.NewList()
	return &cache.Request{
		Root:   scanRoot,
		Config: cfg,
		Sink:   repo.NewRegistrar(list, cfg.RepoDefaults),
	}, list
}

func registerRepos(urls ...string) func(context.Context, *sources.DiscoverRequest) error {
	return func(_ context.Context, req *sources.DiscoverRequest) error {
		for _, u := range urls {
			req.Sink.Register("url", u)
			req.Sink.Register("path", filepath.Join(req.Root, u))
		}
		return nil
	}
}

func cachePath(cfg *config.Config) string {
	return filepath.Join(cfg.CacheRoot, "rc-"+cache.KeyFor(scanRoot, cfg.ProjectList).String())
}

func urls(list *repo.List) []string {
	var out []string
	for _, r := range list.Records() {
		out = append(out, r.URL)
	}
	return out
}

func TestCoordinator_ColdGeneratesAndPublishes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockSourceFactory(ctrl)
	source := sourcemocks.NewMockSource(ctrl)
	spawner := mocks.NewMockSpawner(ctrl)

	cfg := testConfig(t)
	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(registerRepos("alpha", "beta"))

	coord := cache.New(factory, cache.WithSpawner(spawner))
	req, list := newRequest(cfg)
	require.NoError(t, coord.EnsureRepositoryList(context.Background(), req))

	assert.Equal(t, []string{"alpha", "beta"}, urls(list))
	r, ok := list.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "/srv/git/beta", r.Path)

	data, err := os.ReadFile(cachePath(cfg))
	require.NoError(t, err)
	assert.Contains(t, string(data), "repo.url=alpha\n")
	assert.Contains(t, string(data), "repo.path=/srv/git/beta\n")
	assert.NoFileExists(t, cachePath(cfg)+".lock")

	st, err := status.NewFilePersistence(cfg.CacheRoot).LoadStatus(context.Background(),
		cache.KeyFor(scanRoot, "").String())
	require.NoError(t, err)
	assert.Equal(t, status.PhaseComplete, st.Phase)
	assert.Equal(t, 2, st.RepositoryCount)
	assert.Equal(t, scanRoot, st.Root)
	assert.NotNil(t, st.LastGenerated)
}

func TestCoordinator_Warm(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		ttl         int
		age         time.Duration
		expectSpawn bool
	}{
		{name: "fresh", ttl: 15, age: time.Minute},
		{name: "exactly at ttl", ttl: 15, age: 15 * time.Minute},
		{name: "one second past ttl", ttl: 15, age: 15*time.Minute + time.Second, expectSpawn: true},
		{name: "long expired", ttl: 1, age: 24 * time.Hour, expectSpawn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			factory := sourcemocks.NewMockSourceFactory(ctrl)
			spawner := mocks.NewMockSpawner(ctrl)

			cfg := testConfig(t)
			cfg.CacheScanRCTTL = tt.ttl

			path := cachePath(cfg)
			require.NoError(t, os.WriteFile(path, []byte("repo.url=cached\nrepo.path=/srv/git/cached\n\n"), 0600))
			require.NoError(t, os.Chtimes(path, published, published))

			if tt.expectSpawn {
				spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, job cache.Job) error {
						assert.Equal(t, scanRoot, job.Root)
						assert.Equal(t, "/etc/cgitrc", job.ConfigPath)
						assert.NotNil(t, job.Run)
						return nil
					}).Times(1)
			}

			coord := cache.New(factory,
				cache.WithSpawner(spawner),
				cache.WithClock(func() time.Time { return published.Add(tt.age) }))
			req, list := newRequest(cfg)
			require.NoError(t, coord.EnsureRepositoryList(context.Background(), req))

			assert.Equal(t, []string{"cached"}, urls(list))
		})
	}
}

func TestCoordinator_StaleJobRegenerates(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockSourceFactory(ctrl)
	source := sourcemocks.NewMockSource(ctrl)

	cfg := testConfig(t)
	cfg.CacheScanRCTTL = 0

	path := cachePath(cfg)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("repo.url=old\n"), 0600))
	require.NoError(t, os.Chtimes(path, old, old))

	ran := make(chan struct{})
	spawner := spawnerFunc(func(ctx context.Context, job cache.Job) error {
		detached := context.WithoutCancel(ctx)
		go func() {
			defer close(ran)
			job.Run(detached)
		}()
		return nil
	})

	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(registerRepos("new"))

	req, list := newRequest(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, cache.New(factory, cache.WithSpawner(spawner)).EnsureRepositoryList(ctx, req))
	cancel()

	assert.Equal(t, []string{"old"}, urls(list))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("regeneration did not run")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "repo.url=new\n")
}

func TestCoordinator_LockContentionFallsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockSourceFactory(ctrl)
	source := sourcemocks.NewMockSource(ctrl)

	cfg := testConfig(t)
	lockPath := cachePath(cfg) + ".lock"
	require.NoError(t, os.WriteFile(lockPath, nil, 0600))

	req, list := newRequest(cfg)

	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, dr *sources.DiscoverRequest) error {
			// The uncached scan writes straight into the request
			assert.Same(t, req.Sink, dr.Sink)
			return registerRepos("uncached")(ctx, dr)
		})

	coord := cache.New(factory, cache.WithSpawner(mocks.NewMockSpawner(ctrl)))
	require.NoError(t, coord.EnsureRepositoryList(context.Background(), req))

	assert.Equal(t, []string{"uncached"}, urls(list))
	assert.NoFileExists(t, cachePath(cfg))
	assert.FileExists(t, lockPath)
}

func TestCoordinator_ScanFailureFallsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockSourceFactory(ctrl)
	failing := sourcemocks.NewMockSource(ctrl)
	working := sourcemocks.NewMockSource(ctrl)

	cfg := testConfig(t)
	cfg.ProjectList = "/etc/projects.list"

	gomock.InOrder(
		factory.EXPECT().CreateSource(config.SourceTypeProjectList).Return(failing, nil),
		factory.EXPECT().CreateSource(config.SourceTypeProjectList).Return(working, nil),
	)
	failing.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(errors.New("boom"))
	working.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(registerRepos("a"))

	req, list := newRequest(cfg)
	require.NoError(t, cache.New(factory).EnsureRepositoryList(context.Background(), req))

	assert.Equal(t, []string{"a"}, urls(list))
	assert.NoFileExists(t, cachePath(cfg))

	st, err := status.NewFilePersistence(cfg.CacheRoot).LoadStatus(context.Background(),
		cache.KeyFor(scanRoot, cfg.ProjectList).String())
	require.NoError(t, err)
	assert.Equal(t, status.PhaseFailed, st.Phase)
	assert.Equal(t, 1, st.AttemptCount)
	assert.Contains(t, st.Message, "boom")
}

func TestCoordinator_Regenerate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockSourceFactory(ctrl)
	source := sourcemocks.NewMockSource(ctrl)

	cfg := testConfig(t)
	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(registerRepos("x"))

	coord := cache.New(factory)
	req := &cache.Request{Root: scanRoot, Config: cfg}
	require.NoError(t, coord.Regenerate(context.Background(), req))
	assert.FileExists(t, cachePath(cfg))

	// A held lock is not an error and nothing is scanned
	require.NoError(t, os.WriteFile(cachePath(cfg)+".lock", nil, 0600))
	require.NoError(t, coord.Regenerate(context.Background(), req))
}

// blockingSource counts generation scans and holds them until released.
// Scans into one of the request sinks return immediately.
type blockingSource struct {
	mu          sync.Mutex
	requests    map[repo.Sink]bool
	generations int
	release     chan struct{}
}

func (s *blockingSource) Discover(ctx context.Context, req *sources.DiscoverRequest) error {
	s.mu.Lock()
	uncached := s.requests[req.Sink]
	if !uncached {
		s.generations++
	}
	s.mu.Unlock()

	if !uncached {
		<-s.release
	}
	return registerRepos("shared")(ctx, req)
}

func (s *blockingSource) CreateSource(string) (sources.Source, error) {
	return s, nil
}

func TestCoordinator_ConcurrentColdPublishesOnce(t *testing.T) {
	t.Parallel()

	const workers = 8
	cfg := testConfig(t)

	src := &blockingSource{requests: make(map[repo.Sink]bool), release: make(chan struct{})}
	reqs := make([]*cache.Request, workers)
	lists := make([]*repo.List, workers)
	for i := range reqs {
		reqs[i], lists[i] = newRequest(cfg)
		src.requests[reqs[i].Sink] = true
	}

	coord := cache.New(src)
	done := make(chan error, workers)
	for i := range reqs {
		go func(req *cache.Request) {
			done <- coord.EnsureRepositoryList(context.Background(), req)
		}(reqs[i])
	}

	// Every loser falls back without waiting for the winner
	for range workers - 1 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("a request waited for the lock holder")
		}
	}
	close(src.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, src.generations)
	for _, list := range lists {
		assert.Equal(t, []string{"shared"}, urls(list))
	}

	entries, err := os.ReadDir(cfg.CacheRoot)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	key := cache.KeyFor(scanRoot, "").String()
	assert.ElementsMatch(t, []string{"rc-" + key, "rc-" + key + ".status"}, names)
}

func TestGoroutineSpawner_Detached(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := make(chan error, 1)
	err := cache.GoroutineSpawner{}.Spawn(ctx, cache.Job{Run: func(ctx context.Context) {
		result <- ctx.Err()
	}})
	require.NoError(t, err)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestProcessSpawner_MissingExecutable(t *testing.T) {
	t.Parallel()

	err := cache.ProcessSpawner{Executable: filepath.Join(t.TempDir(), "missing")}.
		Spawn(context.Background(), cache.Job{Root: scanRoot, ConfigPath: "/etc/cgitrc"})
	require.ErrorContains(t, err, "failed to start regeneration")
}

func TestResponseTTL(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.CacheRootTTL = 1
	cfg.CacheRepoTTL = 2
	cfg.CacheDynamicTTL = 3
	cfg.CacheStaticTTL = -1

	tests := []struct {
		name     string
		query    cache.Query
		expected int
	}{
		{name: "index", query: cache.Query{}, expected: 1},
		{name: "repository summary", query: cache.Query{Repo: "a"}, expected: 2},
		{name: "symbolic ref", query: cache.Query{Repo: "a", Page: "log", HasSymref: true}, expected: 3},
		{name: "object id", query: cache.Query{Repo: "a", Page: "commit", HasSHA1: true}, expected: -1},
		{name: "symref wins over id", query: cache.Query{Repo: "a", Page: "tree", HasSymref: true, HasSHA1: true}, expected: 3},
		{name: "other page", query: cache.Query{Repo: "a", Page: "refs"}, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, cache.ResponseTTL(cfg, tt.query))
		})
	}
}

type spawnerFunc func(ctx context.Context, job cache.Job) error

func (f spawnerFunc) Spawn(ctx context.Context, job cache.Job) error {
	return f(ctx, job)
}
