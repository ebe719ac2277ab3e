// Package fsstage builds the private root filesystem view for a sandboxed
// process from a declarative list of bind mounts, and tears it down again.
//
// Mount ordering is by target path depth, so a parent target is always
// staged before its children. Teardown unmounts in strict reverse order of
// mounting and only what was actually mounted, so it is safe to call after
// a partial staging failure, and calling it twice is a no-op.
package fsstage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taskbox/internal/sandbox/spec"
)

const tmpfsData = "size=256m,mode=0755"

// Mounter performs the individual mount operations. The real implementation
// wraps the mount(2) family; tests substitute a recording fake.
type Mounter interface {
	MountTmpfs(target, data string) error
	BindMount(source, target string) error
	RemountReadOnly(target string) error
	MountProc(target string) error
	Unmount(target string) error
}

// Options selects the extra mounts staged besides the caller's rules.
type Options struct {
	// BindDevices binds /dev/null, /dev/zero, /dev/random and /dev/urandom
	// from the host. mknod is not permitted in an unprivileged user
	// namespace, so the device nodes are bind-mounted instead.
	BindDevices bool
	// MountTmpfs mounts a writable tmpfs on /tmp and /dev/shm.
	MountTmpfs bool
	// MountProc mounts a fresh proc filesystem on /proc.
	MountProc bool
}

// StagedRoot owns a staged filesystem tree until Teardown releases it.
type StagedRoot struct {
	root    string
	mounter Mounter

	mu      sync.Mutex
	mounted []string
	torn    bool
}

var devices = []string{"null", "zero", "random", "urandom"}

// Stage mounts a tmpfs at root and populates it per the rules and options.
// Rules are applied parent-before-child regardless of the order given.
// On failure everything mounted so far is unmounted before returning.
func Stage(mounter Mounter, root string, rules []spec.MountRule, opts Options) (*StagedRoot, error) {
	s := &StagedRoot{root: root, mounter: mounter}

	if err := s.stage(rules, opts); err != nil {
		_ = s.Teardown()
		return nil, err
	}
	return s, nil
}

func (s *StagedRoot) stage(rules []spec.MountRule, opts Options) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create staging root: %w", err)
	}
	if err := s.mounter.MountTmpfs(s.root, tmpfsData); err != nil {
		return fmt.Errorf("mount staging tmpfs: %w", err)
	}
	s.track(s.root)

	if opts.BindDevices {
		for _, dev := range devices {
			source := filepath.Join("/dev", dev)
			target := filepath.Join(s.root, "dev", dev)
			if err := s.bind(spec.MountRule{Source: source, Target: target}); err != nil {
				return err
			}
		}
	}

	if opts.MountTmpfs {
		for _, dir := range []string{"tmp", "dev/shm"} {
			target := filepath.Join(s.root, dir)
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			if err := s.mounter.MountTmpfs(target, tmpfsData); err != nil {
				return fmt.Errorf("mount tmpfs on %s: %w", dir, err)
			}
			s.track(target)
		}
	}

	if opts.MountProc {
		target := filepath.Join(s.root, "proc")
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create proc dir: %w", err)
		}
		if err := s.mounter.MountProc(target); err != nil {
			return fmt.Errorf("mount proc: %w", err)
		}
		s.track(target)
	}

	for _, rule := range sortRules(rules) {
		target := filepath.Join(s.root, strings.TrimPrefix(filepath.Clean(rule.Target), "/"))
		if err := s.bind(spec.MountRule{Source: rule.Source, Target: target, ReadOnly: rule.ReadOnly}); err != nil {
			return err
		}
	}
	return nil
}

// bind mounts rule.Source at the absolute path rule.Target, creating the
// target entry first. Read-only binds are a two step operation: bind, then
// remount read-only.
func (s *StagedRoot) bind(rule spec.MountRule) error {
	if err := ensureTarget(rule.Source, rule.Target); err != nil {
		return err
	}
	if err := s.mounter.BindMount(rule.Source, rule.Target); err != nil {
		return fmt.Errorf("bind %s on %s: %w", rule.Source, rule.Target, err)
	}
	s.track(rule.Target)
	if rule.ReadOnly {
		if err := s.mounter.RemountReadOnly(rule.Target); err != nil {
			return fmt.Errorf("remount %s read-only: %w", rule.Target, err)
		}
	}
	return nil
}

func (s *StagedRoot) track(target string) {
	s.mu.Lock()
	s.mounted = append(s.mounted, target)
	s.mu.Unlock()
}

// Root returns the staged root directory.
func (s *StagedRoot) Root() string {
	return s.root
}

// Mounted returns the mount targets in the order they were mounted.
func (s *StagedRoot) Mounted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.mounted))
	copy(out, s.mounted)
	return out
}

// Teardown unmounts everything staged so far, children before parents.
// It is idempotent: only the first call performs any work.
func (s *StagedRoot) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return nil
	}
	s.torn = true

	var errs []error
	for i := len(s.mounted) - 1; i >= 0; i-- {
		if err := s.mounter.Unmount(s.mounted[i]); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", s.mounted[i], err))
		}
	}
	s.mounted = nil
	return errors.Join(errs...)
}

// ensureTarget creates the mount target entry matching the source type:
// a directory for directory sources, an empty file for anything else.
func ensureTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func sortRules(rules []spec.MountRule) []spec.MountRule {
	cfg := spec.Config{Mounts: rules}
	return cfg.SortedMounts()
}
