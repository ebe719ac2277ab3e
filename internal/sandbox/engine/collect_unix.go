//go:build linux || darwin

package engine

import (
	"os"
	"syscall"

	"taskbox/internal/sandbox/monitor"
	"taskbox/internal/sandbox/result"
)

// collect reconciles the terminal wait status with the monitor's snapshot
// into the single immutable result for the run. A monitor-initiated kill
// wins the classification; otherwise the raw exit or signal is reported.
// The distinction between LimitExceeded and Signaled is exactly who
// initiated the signal.
func collect(state *os.ProcessState, mon *monitor.Monitor) result.Result {
	res := result.Result{Usage: mon.Usage(), ExitCode: -1}

	if kind, ok := mon.Exceeded(); ok {
		res.Status = result.StatusLimitExceeded
		res.Limit = kind
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = int(ws.Signal())
		}
		return res
	}

	ws, ok := state.Sys().(syscall.WaitStatus)
	switch {
	case !ok:
		res.Status = result.StatusInternalError
	case ws.Exited():
		res.Status = result.StatusSuccess
		res.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		res.Status = result.StatusSignaled
		res.Signal = int(ws.Signal())
	default:
		res.Status = result.StatusInternalError
	}
	return res
}
