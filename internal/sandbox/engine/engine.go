// Package engine executes one sandbox configuration and produces one result.
package engine

import (
	"context"
	"errors"
	"time"

	"taskbox/internal/sandbox/result"
	"taskbox/internal/sandbox/spec"
)

// Setup failure taxonomy. These abort the run before the process executes;
// partial staging is already torn down when they are returned.
var (
	// ErrUnsupportedPlatform means no execution strategy exists for this OS.
	ErrUnsupportedPlatform = errors.New("sandbox is not supported on this platform")
	// ErrMountFailed means the private filesystem view could not be built.
	ErrMountFailed = errors.New("sandbox filesystem staging failed")
	// ErrNamespaceCreationFailed means the kernel refused the namespace set.
	ErrNamespaceCreationFailed = errors.New("namespace creation failed")
	// ErrPivotFailed means the root switch into the staged filesystem failed.
	ErrPivotFailed = errors.New("pivot into sandbox root failed")
	// ErrSpawnFailed means the target executable could not be launched.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrSetupFailed covers unexpected pre-exec failures inside the helper.
	ErrSetupFailed = errors.New("sandbox setup failed")
)

// Engine runs one configuration to completion. Exactly one Result or one
// setup error is produced per call, never both and never neither, and no
// mounts, namespaces or descendant processes survive the call.
type Engine interface {
	Run(ctx context.Context, cfg spec.Config) (result.Result, error)
}

// Config controls engine behavior. Zero values select the defaults.
type Config struct {
	// HelperPath locates the sandbox-init binary that performs the
	// in-namespace setup. Resolved via PATH when not absolute.
	HelperPath string
	// ScratchRoot is the directory under which per-run scratch trees are
	// created. Defaults to the system temp directory.
	ScratchRoot string
	// PollInterval is the resource monitor sampling period.
	PollInterval time.Duration
	// DisableNamespaces turns off namespace isolation on hosts that have
	// it, leaving process-group supervision only. Runs then report
	// Isolated=false and must not request mounts.
	DisableNamespaces bool
}

const defaultHelperPath = "sandbox-init"

func (c Config) withDefaults() Config {
	if c.HelperPath == "" {
		c.HelperPath = defaultHelperPath
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	return c
}

// New creates the engine for the current host: full namespace isolation on
// Linux, degraded supervision on macOS, ErrUnsupportedPlatform elsewhere.
func New(cfg Config) (Engine, error) {
	return newEngine(cfg.withDefaults())
}

