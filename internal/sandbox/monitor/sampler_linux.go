//go:build linux

package monitor

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Kernel USER_HZ. Fixed at 100 on every architecture Go supports.
const clockTicksPerSecond = 100

// ProcSampler reads CPU time and peak RSS of one process from procfs.
// With a PID namespace the sampled process is PID 1 inside the sandbox, so
// its descendants are accounted post-mortem via wait rusage rather than
// per tick; the reconciliation in Finalize covers the difference.
type ProcSampler struct {
	pid int
}

// NewProcSampler creates a sampler for the given host PID.
func NewProcSampler(pid int) *ProcSampler {
	return &ProcSampler{pid: pid}
}

func (p *ProcSampler) Sample() (Sample, error) {
	user, system, err := readProcStat(p.pid)
	if err != nil {
		return Sample{}, err
	}
	rss, err := readPeakRSS(p.pid)
	if err != nil {
		return Sample{}, err
	}
	return Sample{UserTime: user, SystemTime: system, PeakRSSBytes: rss}, nil
}

// readProcStat extracts utime and stime from /proc/<pid>/stat. The comm
// field may contain spaces, so fields are counted after the closing paren.
func readProcStat(pid int) (user, system time.Duration, err error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, 0, err
	}
	end := bytes.LastIndexByte(data, ')')
	if end < 0 {
		return 0, 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(string(data[end+1:]))
	// utime and stime are fields 14 and 15 of the full stat line; the
	// slice here starts at field 3 (state).
	if len(fields) < 13 {
		return 0, 0, fmt.Errorf("short stat for pid %d", pid)
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse stime: %w", err)
	}
	return ticksToDuration(utime), ticksToDuration(stime), nil
}

// readPeakRSS extracts VmHWM from /proc/<pid>/status, in bytes.
func readPeakRSS(pid int) (int64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmHWM:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmHWM: %w", err)
		}
		return kb * 1024, nil
	}
	// Kernel threads have no VmHWM; report zero rather than failing the
	// whole sample.
	return 0, nil
}

func ticksToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks) * time.Second / clockTicksPerSecond
}
