package sources

import (
	"fmt"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/git"
	"github.com/stacklok/repocache/internal/httpclient"
	"github.com/stacklok/repocache/internal/telemetry"
)

// defaultSourceFactory is the default implementation of SourceFactory
type defaultSourceFactory struct {
	git     git.Client
	http    httpclient.Client
	metrics *telemetry.RemoteMetrics
}

var _ SourceFactory = (*defaultSourceFactory)(nil)

// FactoryOption configures the source factory
type FactoryOption func(*defaultSourceFactory)

// WithGitClient sets the client used to inspect local repositories
func WithGitClient(client git.Client) FactoryOption {
	return func(f *defaultSourceFactory) {
		f.git = client
	}
}

// WithHTTPClient sets the client used to reach the review service
func WithHTTPClient(client httpclient.Client) FactoryOption {
	return func(f *defaultSourceFactory) {
		f.http = client
	}
}

// WithRemoteMetrics records review service outcomes
func WithRemoteMetrics(m *telemetry.RemoteMetrics) FactoryOption {
	return func(f *defaultSourceFactory) {
		f.metrics = m
	}
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(opts ...FactoryOption) SourceFactory {
	f := &defaultSourceFactory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.git == nil {
		f.git = git.NewDefaultGitClient()
	}
	if f.http == nil {
		f.http = httpclient.NewDefaultClient()
	}
	return f
}

// CreateSource creates a source for the given source type
func (f *defaultSourceFactory) CreateSource(sourceType string) (Source, error) {
	switch sourceType {
	case config.SourceTypeTree:
		return NewTreeSource(f.git), nil
	case config.SourceTypeProjectList:
		return NewProjectListSource(f.git), nil
	case config.SourceTypeGerrit:
		return NewGerritSource(NewSessionClient(f.http, WithSessionMetrics(f.metrics)), f), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}
