// Package spec defines the execution specification and resource limits.
package spec

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taskbox/internal/sandbox/security"
)

// MountRule binds a host path at a target path inside the sandbox.
type MountRule struct {
	Source   string `yaml:"source" json:"source"`
	Target   string `yaml:"target" json:"target"`
	ReadOnly bool   `yaml:"readOnly" json:"readOnly"`
}

// Limits describes hard resource ceilings. Zero means unlimited.
type Limits struct {
	CPUTime       time.Duration `yaml:"cpuTime" json:"cpuTime"`
	WallTime      time.Duration `yaml:"wallTime" json:"wallTime"`
	MemoryBytes   int64         `yaml:"memoryBytes" json:"memoryBytes"`
	StackBytes    int64         `yaml:"stackBytes" json:"stackBytes"`
	FileSizeBytes int64         `yaml:"fileSizeBytes" json:"fileSizeBytes"`
}

// Config is the complete description of one sandbox run. It is built by the
// caller and must not be mutated after the run starts.
type Config struct {
	// Executable is the absolute path of the program, resolved inside the
	// sandbox filesystem when namespaces are enabled.
	Executable string   `json:"executable"`
	Args       []string `json:"args"`

	// Env is the exact environment of the child, in "KEY=value" form.
	// Nothing from the host environment is inherited.
	Env []string `json:"env"`

	// WorkDir is the working directory inside the sandbox. Defaults to "/".
	WorkDir string `json:"workDir"`

	Mounts []MountRule `json:"mounts"`
	Limits Limits      `json:"limits"`

	// Standard stream redirection targets. Empty means /dev/null; streams
	// are never left as inherited handles into the sandbox.
	StdinPath  string `json:"stdinPath"`
	StdoutPath string `json:"stdoutPath"`
	StderrPath string `json:"stderrPath"`

	// MountProc mounts a private /proc inside the sandbox.
	MountProc bool `json:"mountProc"`
	// MountTmpfs mounts a writable tmpfs on /tmp and /dev/shm.
	MountTmpfs bool `json:"mountTmpfs"`

	// Filter restricts the system calls available to the child.
	Filter *security.Filter `json:"filter,omitempty"`
}

// Validate checks the configuration before a run starts.
func (c *Config) Validate() error {
	if c.Executable == "" {
		return fmt.Errorf("executable is required")
	}
	if !filepath.IsAbs(c.Executable) {
		return fmt.Errorf("executable must be an absolute path: %q", c.Executable)
	}
	if c.WorkDir != "" && !filepath.IsAbs(c.WorkDir) {
		return fmt.Errorf("work dir must be an absolute path: %q", c.WorkDir)
	}
	for _, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("malformed environment entry: %q", kv)
		}
	}
	seen := make(map[string]struct{}, len(c.Mounts))
	for _, m := range c.Mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("mount rule requires source and target")
		}
		if !filepath.IsAbs(m.Target) {
			return fmt.Errorf("mount target must be an absolute path: %q", m.Target)
		}
		target := filepath.Clean(m.Target)
		if target == "/" {
			return fmt.Errorf("mount target must not be the sandbox root")
		}
		if _, dup := seen[target]; dup {
			return fmt.Errorf("mount targets alias each other: %q", target)
		}
		seen[target] = struct{}{}
	}
	if c.Filter != nil {
		if err := c.Filter.Validate(); err != nil {
			return fmt.Errorf("syscall filter: %w", err)
		}
	}
	return nil
}

// WorkDirOrDefault returns the configured working directory, or "/".
func (c *Config) WorkDirOrDefault() string {
	if c.WorkDir == "" {
		return "/"
	}
	return c.WorkDir
}

// SortedMounts returns the mount rules ordered so that a parent target is
// always mounted before any of its children. The sort is stable, so rules
// with unrelated targets keep their relative order.
func (c *Config) SortedMounts() []MountRule {
	rules := make([]MountRule, len(c.Mounts))
	copy(rules, c.Mounts)
	sort.SliceStable(rules, func(i, j int) bool {
		return targetDepth(rules[i].Target) < targetDepth(rules[j].Target)
	})
	return rules
}

func targetDepth(target string) int {
	clean := filepath.Clean(target)
	if clean == "/" {
		return 0
	}
	return strings.Count(clean, "/")
}
