//go:build linux

// sandbox-init is the in-namespace half of the sandbox engine. The engine
// spawns it inside a fresh namespace set with an InitRequest on stdin; it
// stages the private filesystem, pivots into it, applies resource limits,
// stream redirection and the syscall filter, then execs the target. From
// that point the target is PID 1 of the sandbox.
//
// Setup failures are written to a close-on-exec duplicate of the original
// stderr with the "sandbox-init: " prefix and reported through the exit
// codes the engine maps back onto its error taxonomy.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	"taskbox/internal/sandbox/engine"
	"taskbox/internal/sandbox/fsstage"
	"taskbox/internal/sandbox/security"
	"taskbox/internal/sandbox/spec"
)

const oldRootDir = ".oldroot"

// diag stays writable after stdio redirection and closes itself on exec.
var diag = os.Stderr

func main() {
	if fd, err := unix.FcntlInt(os.Stderr.Fd(), unix.F_DUPFD_CLOEXEC, 3); err == nil {
		diag = os.NewFile(uintptr(fd), "diag")
	}

	var req engine.InitRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fail(engine.HelperExitInternal, "decode init request: %v", err)
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		fail(engine.HelperExitInternal, "invalid config: %v", err)
	}

	if req.EnableNamespaces {
		enterRoot(cfg, req.ScratchRoot)
	} else if len(cfg.Mounts) > 0 || cfg.MountProc || cfg.MountTmpfs {
		fail(engine.HelperExitMount, "namespaces disabled but mounts requested")
	}

	if err := os.Chdir(cfg.WorkDirOrDefault()); err != nil {
		fail(engine.HelperExitInternal, "chdir work dir: %v", err)
	}
	applyRlimits(cfg.Limits)
	redirectStdio(cfg)
	if cfg.Filter != nil {
		applyFilter(cfg.Filter)
	}

	argv := append([]string{cfg.Executable}, cfg.Args...)
	err := unix.Exec(cfg.Executable, argv, cfg.Env)
	if errors.Is(err, unix.ENOENT) {
		fail(engine.HelperExitNotFound, "exec %s: %v", cfg.Executable, err)
	}
	fail(engine.HelperExitNoExec, "exec %s: %v", cfg.Executable, err)
}

// enterRoot stages the sandbox filesystem on the scratch directory and
// pivots into it, leaving the old root unreachable. Any mount staged before
// a failure is unmounted again before exiting.
func enterRoot(cfg spec.Config, scratchRoot string) {
	// Mount events must not propagate back to the host.
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		fail(engine.HelperExitMount, "make mounts private: %v", err)
	}

	staged, err := fsstage.Stage(fsstage.SystemMounter{}, scratchRoot, cfg.Mounts, fsstage.Options{
		BindDevices: true,
		MountTmpfs:  cfg.MountTmpfs,
		MountProc:   cfg.MountProc,
	})
	if err != nil {
		fail(engine.HelperExitMount, "stage filesystem: %v", err)
	}

	if err := pivot(staged.Root()); err != nil {
		_ = staged.Teardown()
		fail(engine.HelperExitPivot, "%v", err)
	}
}

// pivot switches the mount namespace root to newRoot and detaches the old
// root, then seals the root tmpfs read-only. Bind mounts staged under it
// keep their own write permissions.
func pivot(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return fmt.Errorf("chdir new root: %w", err)
	}
	putOld := filepath.Join(newRoot, oldRootDir)
	if err := os.Mkdir(putOld, 0o700); err != nil {
		return fmt.Errorf("create old root dir: %w", err)
	}
	if err := unix.PivotRoot(newRoot, putOld); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir pivoted root: %w", err)
	}
	if err := unix.Unmount("/"+oldRootDir, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}
	if err := os.Remove("/" + oldRootDir); err != nil {
		return fmt.Errorf("remove old root dir: %w", err)
	}
	if err := unix.Mount("", "/", "", unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("seal root read-only: %w", err)
	}
	return nil
}

// applyRlimits installs kernel backstops for the limits the monitor
// enforces. The CPU ceiling is padded by a second so the monitor's
// finer-grained enforcement fires first; the rlimit catches a sandbox that
// somehow outlives its monitor.
func applyRlimits(limits spec.Limits) {
	if limits.CPUTime > 0 {
		seconds := uint64(limits.CPUTime.Seconds()) + 1
		setRlimit(unix.RLIMIT_CPU, seconds, "cpu")
	}
	if limits.StackBytes > 0 {
		setRlimit(unix.RLIMIT_STACK, uint64(limits.StackBytes), "stack")
	}
	if limits.FileSizeBytes > 0 {
		setRlimit(unix.RLIMIT_FSIZE, uint64(limits.FileSizeBytes), "fsize")
	}
	// No core dumps into the sandbox filesystem.
	setRlimit(unix.RLIMIT_CORE, 0, "core")
}

func setRlimit(resource int, value uint64, name string) {
	limit := unix.Rlimit{Cur: value, Max: value}
	if err := unix.Setrlimit(resource, &limit); err != nil {
		fail(engine.HelperExitInternal, "set rlimit %s: %v", name, err)
	}
}

// redirectStdio connects fds 0-2 to the configured targets, /dev/null by
// default. Paths are resolved inside the sandbox root when namespaces are
// active, since the pivot already happened.
func redirectStdio(cfg spec.Config) {
	stdin, err := os.Open(pathOrDevNull(cfg.StdinPath))
	if err != nil {
		fail(engine.HelperExitInternal, "open stdin: %v", err)
	}
	stdout, err := os.OpenFile(pathOrDevNull(cfg.StdoutPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fail(engine.HelperExitInternal, "open stdout: %v", err)
	}
	stderr, err := os.OpenFile(pathOrDevNull(cfg.StderrPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fail(engine.HelperExitInternal, "open stderr: %v", err)
	}
	for fd, file := range map[int]*os.File{0: stdin, 1: stdout, 2: stderr} {
		if err := unix.Dup2(int(file.Fd()), fd); err != nil {
			fail(engine.HelperExitInternal, "dup fd %d: %v", fd, err)
		}
		_ = file.Close()
	}
}

func pathOrDevNull(path string) string {
	if path == "" {
		return os.DevNull
	}
	return path
}

// applyFilter installs the seccomp filter as the last step before exec.
func applyFilter(filter *security.Filter) {
	defaultAction, err := seccompAction(filter.DefaultAction, 0)
	if err != nil {
		fail(engine.HelperExitInternal, "seccomp: %v", err)
	}
	scmpFilter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		fail(engine.HelperExitInternal, "create seccomp filter: %v", err)
	}
	for _, rule := range filter.Rules {
		call, err := seccomp.GetSyscallFromName(rule.Syscall)
		if err != nil {
			fail(engine.HelperExitInternal, "unknown syscall %q: %v", rule.Syscall, err)
		}
		action, err := seccompAction(rule.Action, rule.Errno)
		if err != nil {
			fail(engine.HelperExitInternal, "seccomp rule %q: %v", rule.Syscall, err)
		}
		if err := scmpFilter.AddRule(call, action); err != nil {
			fail(engine.HelperExitInternal, "add seccomp rule %q: %v", rule.Syscall, err)
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		fail(engine.HelperExitInternal, "set no new privs: %v", err)
	}
	if err := scmpFilter.Load(); err != nil {
		fail(engine.HelperExitInternal, "load seccomp filter: %v", err)
	}
}

func seccompAction(action security.FilterAction, errno uint) (seccomp.ScmpAction, error) {
	switch action {
	case security.ActionAllow:
		return seccomp.ActAllow, nil
	case security.ActionKill:
		return seccomp.ActKillProcess, nil
	case security.ActionErrno:
		return seccomp.ActErrno.SetReturnCode(int16(errno)), nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported action %q", action)
	}
}

func fail(code int, format string, args ...any) {
	fmt.Fprintf(diag, engine.HelperErrPrefix+format+"\n", args...)
	os.Exit(code)
}
