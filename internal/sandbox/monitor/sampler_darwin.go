//go:build darwin

package monitor

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// PSSampler reads RSS and accumulated CPU time of one process through ps.
// macOS offers no procfs; this is the degraded strategy's measurement path.
// ps cannot split user and system time, so the whole value is reported as
// user time until the final wait rusage reconciles the split.
type PSSampler struct {
	pid int
}

// NewPSSampler creates a sampler for the given PID.
func NewPSSampler(pid int) *PSSampler {
	return &PSSampler{pid: pid}
}

func (p *PSSampler) Sample() (Sample, error) {
	out, err := exec.Command("ps", "-o", "rss=,time=", "-p", strconv.Itoa(p.pid)).Output()
	if err != nil {
		return Sample{}, err
	}
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return Sample{}, fmt.Errorf("unexpected ps output: %q", string(out))
	}
	rssKB, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse rss: %w", err)
	}
	cpu, err := parsePSTime(fields[1])
	if err != nil {
		return Sample{}, err
	}
	return Sample{UserTime: cpu, PeakRSSBytes: rssKB * 1024}, nil
}

// parsePSTime parses ps TIME values: [[hh:]mm:]ss[.cs].
func parsePSTime(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("unexpected ps time: %q", value)
	}
	var total float64
	for _, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected ps time: %q", value)
		}
		total = total*60 + f
	}
	return time.Duration(total * float64(time.Second)), nil
}
