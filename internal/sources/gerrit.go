package sources

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-logr/logr"
)

// RedirectError is returned by the gerrit source when the caller has to be
// redirected instead of served. Request processing stops at this point.
type RedirectError struct {
	Redirect *Redirect
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("login redirect to %s", e.Redirect.Location)
}

// gerritSource registers the projects the review service reports for the
// caller. When the service cannot be used it falls back to the local
// backend of the same scan root, unless the configuration is remote-only.
type gerritSource struct {
	session SessionClient
	local   SourceFactory
}

var _ Source = (*gerritSource)(nil)

// NewGerritSource creates the review service source. local provides the
// fallback backend and may be nil for remote-only deployments.
func NewGerritSource(session SessionClient, local SourceFactory) Source {
	return &gerritSource{session: session, local: local}
}

// Discover implements Source
func (s *gerritSource) Discover(ctx context.Context, req *DiscoverRequest) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("root", req.Root)
	g := req.Config.Gerrit

	identity, err := req.Caller.ResolveIdentity()
	if err == nil {
		var result *FetchResult
		result, err = s.session.FetchProjectList(ctx, FetchRequest{
			ListURL:   g.ProjectListURL,
			LoginURL:  g.LoginURL,
			ReturnURL: g.CgitURL,
			IndexURL:  g.IndexURL,
			Identity:  identity,
			Cookie:    req.Caller.Cookie,
		})
		if err == nil {
			if result.Redirect != nil {
				return &RedirectError{Redirect: result.Redirect}
			}
			s.register(req, result.Projects)
			logger.V(1).Info("Registered review service projects", "count", len(result.Projects))
			return nil
		}
	}

	switch {
	case errors.Is(err, ErrIdentityMissing):
		logger.Info("No caller identity, skipping review service")
	default:
		logger.Error(err, "Review service project list unavailable")
	}

	if g.RemoteOnly || s.local == nil {
		return nil
	}
	return s.fallback(ctx, req)
}

func (*gerritSource) register(req *DiscoverRequest, projects []Project) {
	for _, p := range projects {
		if !p.visible() {
			continue
		}
		req.Sink.Register("url", p.ID)
		req.Sink.Register("name", p.ID)
		req.Sink.Register("path", path.Join(req.Root, p.ID+".git"))
		if p.Description != "" {
			req.Sink.Register("desc", p.Description)
		}
	}
}

func (s *gerritSource) fallback(ctx context.Context, req *DiscoverRequest) error {
	local, err := s.local.CreateSource(req.Config.LocalSourceType())
	if err != nil {
		return fmt.Errorf("failed to create fallback source: %w", err)
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("Falling back to local scan", "root", req.Root)
	return local.Discover(ctx, req)
}
