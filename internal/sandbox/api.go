// Package sandbox is the high-level entrypoint for executing one untrusted
// program inside an isolated environment with enforced resource ceilings.
//
// A run takes one spec.Config and produces one result.Result. The strategy
// (full namespace isolation or degraded supervision) is selected once per
// process from host capability; callers depend only on the Engine contract
// and on the result's Isolated field for the guarantee level.
package sandbox

import (
	"context"

	"taskbox/internal/sandbox/engine"
	"taskbox/internal/sandbox/platform"
	"taskbox/internal/sandbox/result"
	"taskbox/internal/sandbox/spec"
)

// Strategy reports the execution strategy available on this host.
func Strategy() platform.Strategy {
	return platform.Select()
}

// Run executes cfg under a fresh engine and returns its result. Cancelling
// ctx terminates the run the same way limit enforcement does.
func Run(ctx context.Context, engineCfg engine.Config, cfg spec.Config) (result.Result, error) {
	eng, err := engine.New(engineCfg)
	if err != nil {
		return result.Result{}, err
	}
	return eng.Run(ctx, cfg)
}
