package request

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/sources"
	"github.com/stacklok/repocache/internal/sources/mocks"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cgitrc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func urls(rc *Context) []string {
	var out []string
	for _, r := range rc.Repos.Records() {
		out = append(out, r.URL)
	}
	return out
}

// register returns a Discover implementation registering urls
func register(urls ...string) func(context.Context, *sources.DiscoverRequest) error {
	return func(_ context.Context, req *sources.DiscoverRequest) error {
		for _, u := range urls {
			req.Sink.Register("url", u)
		}
		return nil
	}
}

func TestDiscoverer_Load_Dispatch(t *testing.T) {
	t.Parallel()

	gerrit := "gerrit-project-list-url=http://r/list\ngerrit-login-url=http://r/login\n" +
		"gerrit-index-url=http://r/\ngerrit-cgit-url=http://c/\n"

	tests := []struct {
		name       string
		config     string
		sourceType string
		cached     bool
	}{
		{name: "tree", config: "scan-path=/srv/git\n", sourceType: config.SourceTypeTree},
		{name: "project list", config: "project-list=/etc/p.list\nscan-path=/srv/git\n", sourceType: config.SourceTypeProjectList},
		{name: "gerrit", config: gerrit + "project-list=/etc/p.list\nscan-path=/srv/git\n", sourceType: config.SourceTypeGerrit},
		{name: "cache wins over gerrit", config: gerrit + "cache-size=100\nscan-path=/srv/git\n", cached: true},
		{name: "nocache disables the cache", config: "cache-size=100\nnocache=1\nscan-path=/srv/git\n", sourceType: config.SourceTypeTree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			factory := mocks.NewMockSourceFactory(ctrl)
			coord := &fakeCoordinator{}

			if !tt.cached {
				source := mocks.NewMockSource(ctrl)
				factory.EXPECT().CreateSource(tt.sourceType).Return(source, nil)
				source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(register("a"))
			}

			rc := New(writeConfig(t, tt.config), nil, logr.Discard())
			require.NoError(t, NewDiscoverer(factory, coord).Load(context.Background(), rc))

			assert.Equal(t, []string{"a"}, urls(rc))
			assert.Equal(t, []string{"/srv/git"}, rc.Config.ScanPaths)
			if tt.cached {
				assert.Equal(t, []string{"/srv/git"}, coord.roots)
			} else {
				assert.Empty(t, coord.roots)
			}
		})
	}
}

func TestDiscoverer_Load_OptionsApplyInOrder(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockSourceFactory(ctrl)
	source := mocks.NewMockSource(ctrl)

	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil).Times(2)
	gomock.InOrder(
		source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, req *sources.DiscoverRequest) error {
				assert.Equal(t, "/srv/one", req.Root)
				assert.False(t, req.Config.RemoveSuffix)
				return register("one")(ctx, req)
			}),
		source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, req *sources.DiscoverRequest) error {
				assert.Equal(t, "/srv/two", req.Root)
				assert.True(t, req.Config.RemoveSuffix)
				return register("two", "one")(ctx, req)
			}),
	)

	rc := New(writeConfig(t, "section=First\nscan-path=/srv/one\nremove-suffix=1\nsection=Second\n"+
		"scan-path=$BASE/two\nrepo.url=manual\n"), nil, logr.Discard())
	d := NewDiscoverer(factory, nil, WithEnv(func(k string) string {
		if k == "BASE" {
			return "/srv"
		}
		return ""
	}))
	require.NoError(t, d.Load(context.Background(), rc))

	// Duplicate urls keep the first registration
	assert.Equal(t, []string{"one", "two", "manual"}, urls(rc))
	one, _ := rc.Repos.Get("one")
	assert.Equal(t, "First", one.Section)
	two, _ := rc.Repos.Get("two")
	assert.Equal(t, "Second", two.Section)
}

func TestDiscoverer_Load_Redirect(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockSourceFactory(ctrl)
	source := mocks.NewMockSource(ctrl)

	redirect := &sources.Redirect{Location: "http://c/", Cookies: []string{"GerritAccount=x"}, Authenticated: true}
	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(&sources.RedirectError{Redirect: redirect})

	// Directives after the redirect are not processed
	rc := New(writeConfig(t, "scan-path=/srv/git\nrepo.url=late\n"), nil, logr.Discard())
	require.NoError(t, NewDiscoverer(factory, nil).Load(context.Background(), rc))

	assert.Same(t, redirect, rc.Redirect)
	assert.Equal(t, 0, rc.Repos.Len())
}

func TestDiscoverer_Load_DiscoveryErrorsAreLogged(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockSourceFactory(ctrl)
	source := mocks.NewMockSource(ctrl)

	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(errors.New("root missing"))

	rc := New(writeConfig(t, "scan-path=/srv/git\nrepo.url=after\n"), nil, logr.Discard())
	require.NoError(t, NewDiscoverer(factory, nil).Load(context.Background(), rc))

	assert.Equal(t, []string{"after"}, urls(rc))
	assert.Nil(t, rc.Redirect)
}

func TestDiscoverer_Load_MissingConfig(t *testing.T) {
	t.Parallel()

	rc := New(filepath.Join(t.TempDir(), "missing"), nil, logr.Discard())
	err := NewDiscoverer(nil, nil).Load(context.Background(), rc)
	require.Error(t, err)
}

func TestDiscoverer_Load_CallerIsForwarded(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockSourceFactory(ctrl)
	source := mocks.NewMockSource(ctrl)

	caller := &sources.Caller{Cookie: "a=b"}
	factory.EXPECT().CreateSource(config.SourceTypeTree).Return(source, nil)
	source.EXPECT().Discover(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *sources.DiscoverRequest) error {
			assert.Same(t, caller, req.Caller)
			return nil
		})

	rc := New(writeConfig(t, "scan-path=/srv/git\n"), caller, logr.Discard())
	require.NoError(t, NewDiscoverer(factory, nil).Load(context.Background(), rc))
}

// fakeCoordinator records cached lookups and registers one repository
type fakeCoordinator struct {
	roots []string
}

func (f *fakeCoordinator) EnsureRepositoryList(_ context.Context, req *cache.Request) error {
	f.roots = append(f.roots, req.Root)
	req.Sink.Register("url", "a")
	return nil
}

func (*fakeCoordinator) Regenerate(context.Context, *cache.Request) error {
	return nil
}
