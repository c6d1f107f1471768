package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/stacklok/repocache/internal/confparse"
	"github.com/stacklok/repocache/internal/repo"
)

// ErrIncludeDepth is returned when include directives nest too deeply
var ErrIncludeDepth = errors.New("include nesting too deep")

// ScanFunc handles a scan-path directive. cfg is the configuration as it is
// at the directive; it must not be retained past the call without Clone.
type ScanFunc func(ctx context.Context, cfg *Config, root string) error

// Option defines the interface for configuration loader options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path   string
	config *Config
	sink   repo.Sink
	scan   ScanFunc
	getenv func(string) string
}

// WithConfigPath loads configuration from the given cgitrc file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// WithConfig starts from an existing configuration instead of the defaults
func WithConfig(c *Config) Option {
	return func(cfg *loaderConfig) error {
		if c == nil {
			return fmt.Errorf("config is required")
		}
		cfg.config = c
		return nil
	}
}

// WithSink receives repo.* lines
func WithSink(sink repo.Sink) Option {
	return func(cfg *loaderConfig) error {
		cfg.sink = sink
		return nil
	}
}

// WithScanHandler handles scan-path directives
func WithScanHandler(scan ScanFunc) Option {
	return func(cfg *loaderConfig) error {
		cfg.scan = scan
		return nil
	}
}

// WithEnv sets the variable lookup used for macro expansion
func WithEnv(getenv func(string) string) Option {
	return func(cfg *loaderConfig) error {
		if getenv == nil {
			return fmt.Errorf("getenv is required")
		}
		cfg.getenv = getenv
		return nil
	}
}

// LoadConfig reads the configuration file, applying options in order and
// dispatching directives as they are read. An error is returned when the
// top-level file cannot be read or a scan handler aborts loading; invalid
// option values are logged and skipped.
func LoadConfig(ctx context.Context, opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{getenv: os.Getenv}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if loaderCfg.config == nil {
		loaderCfg.config = New()
	}
	loaderCfg.config.Path = loaderCfg.path

	l := &loader{
		loaderConfig: loaderCfg,
		logger:       logr.FromContextOrDiscard(ctx),
	}
	if err := l.parseFile(ctx, loaderCfg.path, 0); err != nil {
		return nil, err
	}
	return loaderCfg.config, nil
}

type loader struct {
	*loaderConfig
	logger logr.Logger
}

func (l *loader) expand(value string) string {
	return os.Expand(value, l.getenv)
}

func (l *loader) parseFile(ctx context.Context, path string, depth int) error {
	if depth > MaxIncludeDepth {
		return fmt.Errorf("%w: %s", ErrIncludeDepth, path)
	}

	err := confparse.ParseFile(path, func(e confparse.Entry) error {
		return l.apply(ctx, path, depth, e)
	})
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

func (l *loader) apply(ctx context.Context, path string, depth int, e confparse.Entry) error {
	switch {
	case e.Name == "include":
		return l.include(ctx, path, depth, e)

	case e.Name == "scan-path":
		return l.scanPath(ctx, e)

	case e.Name == "repo.group":
		// repo.group is the historical spelling of section and has no record
		// to attach to
		return l.setOption(e)

	case strings.HasPrefix(e.Name, "repo."):
		if l.sink != nil {
			l.sink.Register(strings.TrimPrefix(e.Name, "repo."), e.Value)
		}
		return nil

	default:
		return l.setOption(e)
	}
}

func (l *loader) setOption(e confparse.Entry) error {
	set, ok := options[e.Name]
	if !ok {
		l.logger.V(1).Info("Ignoring unknown configuration option", "option", e.Name, "position", e.Position())
		return nil
	}
	if err := set(l.config, e.Value, l.expand); err != nil {
		l.logger.Info("Ignoring invalid configuration value",
			"option", e.Name, "position", e.Position(), "error", err.Error())
	}
	return nil
}

func (l *loader) include(ctx context.Context, from string, depth int, e confparse.Entry) error {
	target := l.expand(e.Value)
	if target == "" {
		return nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(from), target)
	}

	err := l.parseFile(ctx, target, depth+1)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrIncludeDepth) {
		l.logger.Info("Skipping include", "position", e.Position(), "path", target, "error", err.Error())
		return nil
	}
	return err
}

func (l *loader) scanPath(ctx context.Context, e confparse.Entry) error {
	root := l.expand(e.Value)
	if root == "" {
		return nil
	}
	l.config.ScanPaths = append(l.config.ScanPaths, root)
	if l.scan == nil {
		return nil
	}
	if err := l.scan(ctx, l.config, root); err != nil {
		return fmt.Errorf("scan-path %s at %s: %w", root, e.Position(), err)
	}
	return nil
}
