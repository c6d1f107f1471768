// Package status tracks cache generation runs and persists their outcome
// next to the cache files they describe.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FileSuffix is appended to the cache file path to name its status file
	FileSuffix = ".status"

	// filePrefix is shared with cache file names
	filePrefix = "rc-"
)

// Persistence defines the interface for generation status persistence
type Persistence interface {
	// SaveStatus saves the status for a cache key
	SaveStatus(ctx context.Context, key string, status *GenerationStatus) error

	// LoadStatus loads the status for a cache key.
	// Returns an empty GenerationStatus if the file doesn't exist.
	LoadStatus(ctx context.Context, key string) (*GenerationStatus, error)

	// LoadAllStatus loads the status of every cache key under the base path
	LoadAllStatus(ctx context.Context) (map[string]*GenerationStatus, error)
}

// filePersistence implements Persistence using the cache directory
type filePersistence struct {
	basePath string
}

// NewFilePersistence creates a file-based status persistence storing
// rc-<key>.status files under basePath
func NewFilePersistence(basePath string) Persistence {
	return &filePersistence{basePath: basePath}
}

func (f *filePersistence) path(key string) string {
	return filepath.Join(f.basePath, filePrefix+key+FileSuffix)
}

// SaveStatus writes the status to a temporary file and renames it into place
func (f *filePersistence) SaveStatus(_ context.Context, key string, status *GenerationStatus) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status for key '%s': %w", key, err)
	}

	tmp, err := os.CreateTemp(f.basePath, filePrefix+key+FileSuffix+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary status file for key '%s': %w", key, err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, f.path(key))
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write status file for key '%s': %w", key, err)
	}
	return nil
}

// LoadStatus reads the status file of a cache key
func (f *filePersistence) LoadStatus(_ context.Context, key string) (*GenerationStatus, error) {
	// #nosec G304 -- path is built from the cache root and a hex key
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GenerationStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for key '%s': %w", key, err)
	}

	var status GenerationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for key '%s': %w", key, err)
	}
	return &status, nil
}

// LoadAllStatus loads every status file. Unreadable files are skipped.
func (f *filePersistence) LoadAllStatus(ctx context.Context) (map[string]*GenerationStatus, error) {
	result := make(map[string]*GenerationStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), FileSuffix)
		status, err := f.LoadStatus(ctx, key)
		if err != nil {
			continue
		}
		result[key] = status
	}
	return result, nil
}
