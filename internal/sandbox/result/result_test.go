package result

import (
	"testing"
	"time"
)

func TestResourceUsageMerge(t *testing.T) {
	a := ResourceUsage{
		UserTime:     100 * time.Millisecond,
		SystemTime:   20 * time.Millisecond,
		WallTime:     500 * time.Millisecond,
		PeakRSSBytes: 4096,
	}
	b := ResourceUsage{
		UserTime:     80 * time.Millisecond,
		SystemTime:   40 * time.Millisecond,
		WallTime:     400 * time.Millisecond,
		PeakRSSBytes: 8192,
	}

	merged := a.Merge(b)
	if merged.UserTime != 100*time.Millisecond {
		t.Fatalf("user time: got %v", merged.UserTime)
	}
	if merged.SystemTime != 40*time.Millisecond {
		t.Fatalf("system time: got %v", merged.SystemTime)
	}
	if merged.WallTime != 500*time.Millisecond {
		t.Fatalf("wall time: got %v", merged.WallTime)
	}
	if merged.PeakRSSBytes != 8192 {
		t.Fatalf("peak rss: got %d", merged.PeakRSSBytes)
	}
}

func TestResourceUsageMergeNeverDecreases(t *testing.T) {
	usage := ResourceUsage{UserTime: time.Second, PeakRSSBytes: 1 << 20}
	merged := usage.Merge(ResourceUsage{})
	if merged != usage {
		t.Fatalf("merge with zero changed the snapshot: %+v", merged)
	}
}

func TestCPUTime(t *testing.T) {
	usage := ResourceUsage{UserTime: 300 * time.Millisecond, SystemTime: 200 * time.Millisecond}
	if got := usage.CPUTime(); got != 500*time.Millisecond {
		t.Fatalf("cpu time: got %v", got)
	}
}

func TestIsSuccess(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want bool
	}{
		{"exit_zero", Result{Status: StatusSuccess, ExitCode: 0}, true},
		{"exit_nonzero", Result{Status: StatusSuccess, ExitCode: 3}, false},
		{"signaled", Result{Status: StatusSignaled, Signal: 9}, false},
		{"limit_exceeded", Result{Status: StatusLimitExceeded, Limit: LimitWallTime}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.IsSuccess(); got != tc.want {
				t.Fatalf("IsSuccess: got %v, want %v", got, tc.want)
			}
		})
	}
}
