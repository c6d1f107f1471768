package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/sources"
	"github.com/stacklok/repocache/internal/status"
)

// PublishError means a scan completed but its cache file could not be put
// in place. The scanned data is still usable for the current request.
type PublishError struct {
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish cache file %s: %v", e.Path, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// generate scans req.Root under the entry lock and publishes the result. It
// returns the encoded records whenever the scan completed, including on
// *PublishError. Lock contention returns ErrLockContention without scanning.
func (c *defaultCoordinator) generate(ctx context.Context, req *Request, entry *Entry) ([]byte, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("root", req.Root, "key", entry.Key.String())
	cfg := req.Config

	if err := os.MkdirAll(filepath.Dir(entry.Path), 0750); err != nil {
		logger.Error(err, "Failed to create cache directory")
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	staleAfter := time.Duration(cfg.CacheMaxCreateTime) * time.Minute
	lock, err := AcquireLock(entry.LockPath(), staleAfter, c.now())
	if err != nil {
		if errors.Is(err, ErrLockContention) {
			logger.V(1).Info("Cache generation already in progress")
		} else {
			logger.Error(err, "Failed to acquire cache lock")
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error(err, "Failed to release cache lock")
		}
	}()

	persistence := c.statusFor(cfg.CacheRoot)
	start := c.now()
	st, err := persistence.LoadStatus(ctx, entry.Key.String())
	if err != nil {
		logger.V(1).Info("Ignoring unreadable generation status", "error", err.Error())
		st = &status.GenerationStatus{}
	}
	st.Phase = status.PhaseGenerating
	st.Root = req.Root
	st.Message = ""
	st.LastAttempt = &start
	c.saveStatus(ctx, persistence, entry.Key, st)

	data, count, err := c.scanAndEncode(ctx, req)
	if err == nil {
		err = publish(entry.Path, data)
	}

	duration := c.now().Sub(start)
	st.Duration = duration
	if err != nil {
		logger.Error(err, "Cache generation failed")
		st.Phase = status.PhaseFailed
		st.Message = err.Error()
		st.AttemptCount++
	} else {
		logger.V(1).Info("Published cache file", "path", entry.Path, "repositories", count, "duration", duration.String())
		finished := c.now()
		st.Phase = status.PhaseComplete
		st.AttemptCount = 0
		st.LastGenerated = &finished
		st.RepositoryCount = count
	}
	c.saveStatus(ctx, persistence, entry.Key, st)
	c.metrics.RecordGeneration(ctx, entry.Key.String(), duration, count, err == nil)

	return data, err
}

// scanAndEncode runs the local backend into a fresh list and encodes it
func (c *defaultCoordinator) scanAndEncode(ctx context.Context, req *Request) ([]byte, int, error) {
	cfg := req.Config
	src, err := c.sources.CreateSource(cfg.LocalSourceType())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create source: %w", err)
	}

	list := repo.NewList()
	sink := repo.NewRegistrar(list, cfg.RepoDefaults, repo.WithLogger(logr.FromContextOrDiscard(ctx)))
	if err := src.Discover(ctx, &sources.DiscoverRequest{Root: req.Root, Config: cfg, Sink: sink}); err != nil {
		return nil, 0, fmt.Errorf("scan failed: %w", err)
	}

	var buf bytes.Buffer
	if err := (repo.Encoder{Defaults: cfg.RepoDefaults()}).EncodeAll(&buf, list.Records()); err != nil {
		return nil, 0, fmt.Errorf("failed to encode repository list: %w", err)
	}
	return buf.Bytes(), list.Len(), nil
}

// publish writes data to a private temporary file and renames it onto path,
// so readers see either the old file or the complete new one
func publish(path string, data []byte) error {
	tmpPath := path + tmpSuffix + uuid.NewString()

	//nolint:gosec // path is derived from the configured cache root
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return &PublishError{Path: path, Err: err}
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return &PublishError{Path: path, Err: err}
	}
	return nil
}

func (c *defaultCoordinator) saveStatus(ctx context.Context, p status.Persistence, key Key, st *status.GenerationStatus) {
	if err := p.SaveStatus(ctx, key.String(), st); err != nil {
		logr.FromContextOrDiscard(ctx).V(1).Info("Failed to save generation status", "key", key.String(), "error", err.Error())
	}
}
