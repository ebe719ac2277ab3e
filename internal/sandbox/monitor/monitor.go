// Package monitor accumulates resource usage of a running sandboxed process
// and enforces the configured ceilings while it runs.
//
// One Monitor goroutine samples a Sampler at a fixed interval and publishes
// a monotonically increasing ResourceUsage snapshot through an atomic
// pointer, so the outcome collector can read a consistent snapshot at any
// moment during the run. When a limit is exceeded the monitor records which
// one and kills the whole process group exactly once. Overshoot past a
// limit is bounded by at most two polling intervals.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"taskbox/internal/sandbox/result"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 50 * time.Millisecond

// Sample is one observation of the supervised process.
type Sample struct {
	UserTime     time.Duration
	SystemTime   time.Duration
	PeakRSSBytes int64
}

// Sampler reads the current resource consumption of the supervised process.
// Sample errors are expected near process exit and are skipped; wall-clock
// enforcement does not depend on the sampler succeeding.
type Sampler interface {
	Sample() (Sample, error)
}

// Limits are the ceilings the monitor enforces. Zero means unlimited.
type Limits struct {
	CPUTime     time.Duration
	WallTime    time.Duration
	MemoryBytes int64
}

// Monitor supervises one process for the duration of one run.
type Monitor struct {
	limits   Limits
	sampler  Sampler
	kill     func()
	interval time.Duration

	usage    atomic.Pointer[result.ResourceUsage]
	exceeded atomic.Pointer[result.LimitKind]
	killOnce sync.Once

	started time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a monitor. kill must terminate the entire process group and
// must be safe to call when the process is already dead.
func New(limits Limits, sampler Sampler, kill func(), interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		limits:   limits,
		sampler:  sampler,
		kill:     kill,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.usage.Store(&result.ResourceUsage{})
	return m
}

// Start begins sampling. The wall clock starts now.
func (m *Monitor) Start() {
	m.started = time.Now()
	go m.loop()
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

func (m *Monitor) observe() {
	usage := *m.usage.Load()
	usage.WallTime = time.Since(m.started)

	if sample, err := m.sampler.Sample(); err == nil {
		usage = usage.Merge(result.ResourceUsage{
			UserTime:     sample.UserTime,
			SystemTime:   sample.SystemTime,
			PeakRSSBytes: sample.PeakRSSBytes,
		})
	}
	m.publish(usage)

	if kind, ok := m.violated(usage); ok {
		m.recordExceeded(kind)
		m.Kill()
	}
}

func (m *Monitor) violated(usage result.ResourceUsage) (result.LimitKind, bool) {
	if m.limits.WallTime > 0 && usage.WallTime > m.limits.WallTime {
		return result.LimitWallTime, true
	}
	if m.limits.CPUTime > 0 && usage.CPUTime() > m.limits.CPUTime {
		return result.LimitCPUTime, true
	}
	if m.limits.MemoryBytes > 0 && usage.PeakRSSBytes > m.limits.MemoryBytes {
		return result.LimitMemory, true
	}
	return "", false
}

// publish stores a merged snapshot. The monitor goroutine and Finalize are
// the only writers, never concurrently, so merge-then-store is consistent.
func (m *Monitor) publish(usage result.ResourceUsage) {
	merged := m.usage.Load().Merge(usage)
	m.usage.Store(&merged)
}

func (m *Monitor) recordExceeded(kind result.LimitKind) {
	k := kind
	m.exceeded.CompareAndSwap(nil, &k)
}

// Stop halts sampling and waits for the monitor goroutine to exit. It must
// be called only after the process is confirmed dead, so that the final
// snapshot reflects the process's full usage.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

// Finalize reconciles the post-mortem accounting (wait rusage) into the
// published snapshot. Call after Stop.
func (m *Monitor) Finalize(sample Sample, wall time.Duration) {
	m.publish(result.ResourceUsage{
		UserTime:     sample.UserTime,
		SystemTime:   sample.SystemTime,
		WallTime:     wall,
		PeakRSSBytes: sample.PeakRSSBytes,
	})
	// A limit may have been crossed between the last tick and process
	// death; classify from the reconciled snapshot too.
	if m.exceeded.Load() == nil {
		if kind, ok := m.violated(*m.usage.Load()); ok {
			m.recordExceeded(kind)
		}
	}
}

// Usage returns the latest consistent snapshot.
func (m *Monitor) Usage() result.ResourceUsage {
	return *m.usage.Load()
}

// Exceeded reports which limit the monitor enforced, if any.
func (m *Monitor) Exceeded() (result.LimitKind, bool) {
	kind := m.exceeded.Load()
	if kind == nil {
		return "", false
	}
	return *kind, true
}

// Kill force-terminates the process group. Used both for limit enforcement
// and for caller-requested cancellation; calling it any number of times, or
// concurrently with normal termination, is safe.
func (m *Monitor) Kill() {
	m.killOnce.Do(m.kill)
}
