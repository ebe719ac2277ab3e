// Package result defines sandbox execution results and resource accounting.
package result

import "time"

// Status represents the terminal outcome of one sandbox run.
type Status string

const (
	// StatusSuccess means the process exited on its own; ExitCode is valid.
	StatusSuccess Status = "Success"
	// StatusSignaled means the process was terminated by a signal it did
	// not request; Signal is valid.
	StatusSignaled Status = "Signaled"
	// StatusLimitExceeded means a configured resource ceiling was violated
	// and the process was killed for it; Limit is valid. This is a normal
	// measurement outcome, not an engine failure.
	StatusLimitExceeded Status = "LimitExceeded"
	// StatusInternalError means the engine hit an unexpected condition
	// after the process had already started.
	StatusInternalError Status = "InternalError"
)

// LimitKind identifies which resource ceiling was violated.
type LimitKind string

const (
	LimitCPUTime  LimitKind = "cpu_time"
	LimitWallTime LimitKind = "wall_time"
	LimitMemory   LimitKind = "memory"
)

// ResourceUsage is a snapshot of accumulated resource consumption.
// Within a run every field only ever increases.
type ResourceUsage struct {
	UserTime     time.Duration `json:"userTime"`
	SystemTime   time.Duration `json:"systemTime"`
	WallTime     time.Duration `json:"wallTime"`
	PeakRSSBytes int64         `json:"peakRssBytes"`
}

// CPUTime is the total user plus system CPU time.
func (u ResourceUsage) CPUTime() time.Duration {
	return u.UserTime + u.SystemTime
}

// Merge returns the field-wise maximum of u and other, preserving the
// monotonic accumulation invariant when reconciling snapshots from
// different accounting sources.
func (u ResourceUsage) Merge(other ResourceUsage) ResourceUsage {
	return ResourceUsage{
		UserTime:     maxDuration(u.UserTime, other.UserTime),
		SystemTime:   maxDuration(u.SystemTime, other.SystemTime),
		WallTime:     maxDuration(u.WallTime, other.WallTime),
		PeakRSSBytes: max(u.PeakRSSBytes, other.PeakRSSBytes),
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Result is the immutable record produced once per run.
type Result struct {
	Status   Status        `json:"status"`
	ExitCode int           `json:"exitCode"`
	Signal   int           `json:"signal,omitempty"`
	Limit    LimitKind     `json:"limit,omitempty"`
	Usage    ResourceUsage `json:"usage"`

	// Isolated reports whether the run had full namespace and filesystem
	// isolation. False means the degraded supervision strategy ran.
	Isolated bool `json:"isolated"`
}

// IsSuccess is true when the process exited normally with code zero.
func (r Result) IsSuccess() bool {
	return r.Status == StatusSuccess && r.ExitCode == 0
}
