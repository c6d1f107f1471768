package sources

import (
	"context"
	"errors"
	"net/http"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
)

// ErrIdentityMissing is returned when no identity source yields a caller
var ErrIdentityMissing = errors.New("caller identity missing")

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go Source,SourceFactory

// Source is a discovery backend
type Source interface {
	// Discover enumerates the repositories below req.Root and registers
	// each of them with req.Sink
	Discover(ctx context.Context, req *DiscoverRequest) error
}

// SourceFactory creates sources based on source type
type SourceFactory interface {
	// CreateSource creates a source for the given source type
	CreateSource(sourceType string) (Source, error)
}

// DiscoverRequest is the input of one discovery run
type DiscoverRequest struct {
	// Root is the expanded scan-path value
	Root string

	// Config is the configuration in effect at the scan-path directive
	Config *config.Config

	// Sink receives the discovered attributes
	Sink repo.Sink

	// Caller identifies who the request is made for. Local backends ignore it.
	Caller *Caller
}

// IdentitySource yields the caller identity from one place
type IdentitySource interface {
	LookupIdentity() (string, bool)
}

// EnvIdentity reads the identity from a CGI-style variable
type EnvIdentity struct {
	Var    string
	Getenv func(string) string
}

// LookupIdentity implements IdentitySource
func (e EnvIdentity) LookupIdentity() (string, bool) {
	if e.Getenv == nil {
		return "", false
	}
	v := e.Getenv(e.Var)
	return v, v != ""
}

// HeaderIdentity reads the identity from a request header
type HeaderIdentity struct {
	Header http.Header
	Key    string
}

// LookupIdentity implements IdentitySource
func (h HeaderIdentity) LookupIdentity() (string, bool) {
	v := h.Header.Get(h.Key)
	return v, v != ""
}

// Caller describes the user a request is made for
type Caller struct {
	// Identities are consulted in order, the first non-empty one wins
	Identities []IdentitySource

	// Cookie is the raw Cookie header to forward to the review service
	Cookie string
}

// ResolveIdentity returns the first identity available
func (c *Caller) ResolveIdentity() (string, error) {
	if c == nil {
		return "", ErrIdentityMissing
	}
	for _, src := range c.Identities {
		if id, ok := src.LookupIdentity(); ok {
			return id, nil
		}
	}
	return "", ErrIdentityMissing
}
