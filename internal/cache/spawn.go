package cache

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-logr/logr"
)

//go:generate mockgen -destination=mocks/mock_spawner.go -package=mocks -source=spawn.go Spawner

// Job is one detached regeneration
type Job struct {
	// Root is the scan root to regenerate
	Root string

	// ConfigPath is the configuration file the root was declared in
	ConfigPath string

	// Run performs the regeneration in-process
	Run func(ctx context.Context)
}

// Spawner starts detached regeneration work. The caller never waits for
// the work and never cancels it.
type Spawner interface {
	Spawn(ctx context.Context, job Job) error
}

// GoroutineSpawner runs jobs in a goroutine detached from the caller's
// cancellation. Used by long running servers.
type GoroutineSpawner struct{}

// Spawn implements Spawner
func (GoroutineSpawner) Spawn(ctx context.Context, job Job) error {
	detached := context.WithoutCancel(ctx)
	go job.Run(detached)
	return nil
}

// ProcessSpawner re-executes the current binary in a new session to run the
// regenerate command. Used by one-shot request processes that exit before
// regeneration completes.
type ProcessSpawner struct {
	// Executable defaults to os.Executable()
	Executable string

	// Args are placed before the job arguments, typically global flags
	Args []string
}

// Spawn implements Spawner
func (s ProcessSpawner) Spawn(ctx context.Context, job Job) error {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	args := append([]string{}, s.Args...)
	args = append(args, "regenerate", "--config", job.ConfigPath, "--scan-path", job.Root)

	// No CommandContext: the child must outlive the request
	//nolint:gosec // re-executes this binary with a fixed command
	cmd := exec.Command(exe, args...)
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start regeneration: %w", err)
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("Spawned regeneration process", "pid", cmd.Process.Pid, "root", job.Root)
	return cmd.Process.Release()
}
