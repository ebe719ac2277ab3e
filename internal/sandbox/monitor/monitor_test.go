package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"taskbox/internal/sandbox/result"
)

// scriptSampler replays a fixed sequence of samples, repeating the last one
// once the script runs out.
type scriptSampler struct {
	samples []Sample
	next    int
}

func (s *scriptSampler) Sample() (Sample, error) {
	if len(s.samples) == 0 {
		return Sample{}, nil
	}
	sample := s.samples[s.next]
	if s.next < len(s.samples)-1 {
		s.next++
	}
	return sample, nil
}

func waitForKill(t *testing.T, killed *atomic.Bool, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if killed.Load() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("kill not invoked within %v", within)
}

func TestWallLimitKillsWithinMargin(t *testing.T) {
	var killed atomic.Bool
	interval := 10 * time.Millisecond
	m := New(Limits{WallTime: 30 * time.Millisecond}, &scriptSampler{}, func() { killed.Store(true) }, interval)

	m.Start()
	defer m.Stop()

	// The limit plus at most two polling intervals, with slack for a slow CI
	// scheduler.
	waitForKill(t, &killed, 30*time.Millisecond+2*interval+200*time.Millisecond)

	kind, ok := m.Exceeded()
	if !ok || kind != result.LimitWallTime {
		t.Fatalf("exceeded: got (%q, %v), want wall_time", kind, ok)
	}
	if m.Usage().WallTime <= 30*time.Millisecond {
		t.Fatalf("published wall time %v does not reflect the overrun", m.Usage().WallTime)
	}
}

func TestMemoryLimitRecordsKind(t *testing.T) {
	var killed atomic.Bool
	sampler := &scriptSampler{samples: []Sample{
		{PeakRSSBytes: 1 << 20},
		{PeakRSSBytes: 64 << 20},
	}}
	m := New(Limits{MemoryBytes: 32 << 20}, sampler, func() { killed.Store(true) }, 5*time.Millisecond)

	m.Start()
	defer m.Stop()
	waitForKill(t, &killed, time.Second)

	kind, ok := m.Exceeded()
	if !ok || kind != result.LimitMemory {
		t.Fatalf("exceeded: got (%q, %v), want memory", kind, ok)
	}
}

func TestCPULimitRecordsKind(t *testing.T) {
	var killed atomic.Bool
	sampler := &scriptSampler{samples: []Sample{
		{UserTime: 40 * time.Millisecond, SystemTime: 20 * time.Millisecond},
		{UserTime: 900 * time.Millisecond, SystemTime: 200 * time.Millisecond},
	}}
	m := New(Limits{CPUTime: time.Second}, sampler, func() { killed.Store(true) }, 5*time.Millisecond)

	m.Start()
	defer m.Stop()
	waitForKill(t, &killed, time.Second)

	kind, ok := m.Exceeded()
	if !ok || kind != result.LimitCPUTime {
		t.Fatalf("exceeded: got (%q, %v), want cpu_time", kind, ok)
	}
}

func TestUsageNeverDecreases(t *testing.T) {
	// The sampler reports a lower reading after a higher one; the published
	// snapshot must keep the maximum.
	sampler := &scriptSampler{samples: []Sample{
		{UserTime: 100 * time.Millisecond, PeakRSSBytes: 8 << 20},
		{UserTime: 50 * time.Millisecond, PeakRSSBytes: 4 << 20},
	}}
	m := New(Limits{}, sampler, func() {}, 5*time.Millisecond)

	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	usage := m.Usage()
	if usage.UserTime < 100*time.Millisecond {
		t.Fatalf("user time regressed: %v", usage.UserTime)
	}
	if usage.PeakRSSBytes < 8<<20 {
		t.Fatalf("peak rss regressed: %d", usage.PeakRSSBytes)
	}
}

func TestFinalizeReconcilesRusage(t *testing.T) {
	m := New(Limits{}, &scriptSampler{}, func() {}, time.Hour)
	m.Start()
	m.Stop()

	m.Finalize(Sample{
		UserTime:     750 * time.Millisecond,
		SystemTime:   125 * time.Millisecond,
		PeakRSSBytes: 16 << 20,
	}, 900*time.Millisecond)

	usage := m.Usage()
	if usage.UserTime != 750*time.Millisecond || usage.SystemTime != 125*time.Millisecond {
		t.Fatalf("cpu accounting not reconciled: %+v", usage)
	}
	if usage.WallTime != 900*time.Millisecond {
		t.Fatalf("wall time not reconciled: %v", usage.WallTime)
	}
	if usage.PeakRSSBytes != 16<<20 {
		t.Fatalf("peak rss not reconciled: %d", usage.PeakRSSBytes)
	}
}

func TestFinalizeClassifiesPostMortemOverrun(t *testing.T) {
	// The process burned through the CPU limit between the last tick and its
	// death; the final rusage must still classify the run as exceeded.
	m := New(Limits{CPUTime: 100 * time.Millisecond}, &scriptSampler{}, func() {}, time.Hour)
	m.Start()
	m.Stop()

	m.Finalize(Sample{UserTime: 150 * time.Millisecond}, 200*time.Millisecond)

	kind, ok := m.Exceeded()
	if !ok || kind != result.LimitCPUTime {
		t.Fatalf("exceeded: got (%q, %v), want cpu_time", kind, ok)
	}
}

func TestFinalizeKeepsEnforcedKind(t *testing.T) {
	// Wall enforcement fired during the run; a post-mortem CPU overrun must
	// not overwrite the kind that actually stopped the process.
	m := New(Limits{CPUTime: 100 * time.Millisecond, WallTime: time.Minute}, &scriptSampler{}, func() {}, time.Hour)
	m.Start()
	m.recordExceeded(result.LimitWallTime)
	m.Stop()

	m.Finalize(Sample{UserTime: 150 * time.Millisecond}, 200*time.Millisecond)

	kind, ok := m.Exceeded()
	if !ok || kind != result.LimitWallTime {
		t.Fatalf("exceeded: got (%q, %v), want wall_time", kind, ok)
	}
}

func TestKillIdempotent(t *testing.T) {
	var calls atomic.Int32
	m := New(Limits{}, &scriptSampler{}, func() { calls.Add(1) }, time.Hour)

	m.Kill()
	m.Kill()
	m.Kill()

	if got := calls.Load(); got != 1 {
		t.Fatalf("kill invoked %d times, want 1", got)
	}
	// A caller-requested kill records no exceeded limit.
	if _, ok := m.Exceeded(); ok {
		t.Fatalf("plain Kill must not record an exceeded limit")
	}
}

func TestStopIdempotent(t *testing.T) {
	m := New(Limits{}, &scriptSampler{}, func() {}, time.Millisecond)
	m.Start()
	m.Stop()
	m.Stop()
}
