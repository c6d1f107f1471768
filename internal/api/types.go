package api

import (
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/status"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version" example:"v0.1.0"`
	Commit    string `json:"commit" example:"abc123def"`
	BuildDate string `json:"build_date" example:"2026-01-15 10:30:00 UTC"`
	GoVersion string `json:"go_version" example:"go1.25.2"`
	Platform  string `json:"platform" example:"linux/amd64"`
}

// RepositoryListResponse is the repository list of one request, sorted by url
type RepositoryListResponse struct {
	Repositories []*repo.Record `json:"repositories"`
	Count        int            `json:"count"`
}

// StatusResponse reports the generation status of every cache file
type StatusResponse struct {
	CacheRoot string                              `json:"cache_root"`
	Entries   map[string]*status.GenerationStatus `json:"entries"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}
