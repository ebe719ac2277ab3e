//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"taskbox/internal/sandbox/monitor"
	"taskbox/internal/sandbox/result"
	"taskbox/internal/sandbox/spec"
	"taskbox/pkg/utils/contextkey"
	"taskbox/pkg/utils/logger"
)

type linuxEngine struct {
	cfg Config
}

func newEngine(cfg Config) (Engine, error) {
	return &linuxEngine{cfg: cfg}, nil
}

// isolationContext holds the live host-side handles for one run. It is
// released exactly once, on every exit path. Mounts live inside the child's
// private mount namespace and vanish with it; the scratch tree and the
// process group are the artifacts the host must clean up.
type isolationContext struct {
	runID   string
	scratch string
	pgid    int
	once    sync.Once
}

func (c *isolationContext) release(ctx context.Context) {
	c.once.Do(func() {
		if c.pgid > 0 {
			// Idempotent: killing an already-dead group is a no-op.
			_ = unix.Kill(-c.pgid, unix.SIGKILL)
		}
		if err := os.RemoveAll(c.scratch); err != nil {
			logger.Warn(ctx, "remove scratch dir failed", zap.Error(err))
		}
	})
}

func (e *linuxEngine) Run(ctx context.Context, cfg spec.Config) (result.Result, error) {
	if err := cfg.Validate(); err != nil {
		return result.Result{}, err
	}
	if e.cfg.DisableNamespaces && wantsMounts(cfg) {
		return result.Result{}, fmt.Errorf("%w: namespaces disabled but mounts requested", ErrMountFailed)
	}

	runID := uuid.NewString()
	ctx = contextkey.WithRunID(ctx, runID)
	scratch, err := os.MkdirTemp(e.cfg.ScratchRoot, "taskbox-"+runID[:8]+"-")
	if err != nil {
		return result.Result{}, fmt.Errorf("%w: create scratch dir: %v", ErrMountFailed, err)
	}
	ictx := &isolationContext{runID: runID, scratch: scratch}
	defer ictx.release(ctx)

	payload, err := json.Marshal(InitRequest{
		Config:           cfg,
		ScratchRoot:      scratch,
		EnableNamespaces: !e.cfg.DisableNamespaces,
	})
	if err != nil {
		return result.Result{}, fmt.Errorf("encode init request: %w", err)
	}

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = []string{}
	cmd.SysProcAttr = sysProcAttr(!e.cfg.DisableNamespaces)

	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if !e.cfg.DisableNamespaces {
			return result.Result{}, fmt.Errorf("%w: %v", ErrNamespaceCreationFailed, err)
		}
		return result.Result{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	pid := cmd.Process.Pid
	ictx.pgid = pid
	logger.Debug(ctx, "sandbox process started", zap.Int("pid", pid))

	mon := monitor.New(
		monitor.Limits{
			CPUTime:     cfg.Limits.CPUTime,
			WallTime:    cfg.Limits.WallTime,
			MemoryBytes: cfg.Limits.MemoryBytes,
		},
		monitor.NewProcSampler(pid),
		func() { _ = unix.Kill(-pid, unix.SIGKILL) },
		e.cfg.PollInterval,
	)
	mon.Start()

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Caller-requested cancellation terminates the run the same
			// way limit enforcement does.
			mon.Kill()
		case <-waitDone:
		}
	}()

	waitErr := cmd.Wait()
	close(waitDone)
	mon.Stop()

	state := cmd.ProcessState
	if state == nil {
		return result.Result{}, fmt.Errorf("wait for sandbox process: %w", waitErr)
	}
	mon.Finalize(rusageSample(state), time.Since(start))

	if err := helperFailure(state, helperStderr.Bytes()); err != nil {
		return result.Result{}, err
	}

	res := collect(state, mon)
	res.Isolated = !e.cfg.DisableNamespaces
	logger.Info(ctx, "sandbox run finished",
		zap.String("status", string(res.Status)),
		zap.Duration("wall_time", res.Usage.WallTime))
	return res, nil
}

func wantsMounts(cfg spec.Config) bool {
	return len(cfg.Mounts) > 0 || cfg.MountProc || cfg.MountTmpfs
}

// sysProcAttr builds the namespace set for the helper: user, mount, PID,
// IPC, UTS and network namespaces, with the invoking UID and GID mapped to
// root inside via a single-entry mapping. PID namespace makes the target
// PID 1 inside, so tearing the namespace down terminates every descendant.
func sysProcAttr(namespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !namespaces {
		return attr
	}
	attr.Cloneflags = syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID |
		syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS | syscall.CLONE_NEWNET
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

// helperFailure maps a tagged helper exit back onto the setup error
// taxonomy. An untagged exit with the same code is the program's own.
func helperFailure(state *os.ProcessState, stderr []byte) error {
	if !state.Exited() || !bytes.HasPrefix(stderr, []byte(HelperErrPrefix)) {
		return nil
	}
	msg := string(bytes.TrimSpace(stderr))
	switch state.ExitCode() {
	case HelperExitMount:
		return fmt.Errorf("%w: %s", ErrMountFailed, msg)
	case HelperExitPivot:
		return fmt.Errorf("%w: %s", ErrPivotFailed, msg)
	case HelperExitNoExec, HelperExitNotFound:
		return fmt.Errorf("%w: %s", ErrSpawnFailed, msg)
	case HelperExitInternal:
		return fmt.Errorf("%w: %s", ErrSetupFailed, msg)
	}
	return nil
}

func rusageSample(state *os.ProcessState) monitor.Sample {
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return monitor.Sample{}
	}
	return monitor.Sample{
		UserTime:   time.Duration(usage.Utime.Nano()),
		SystemTime: time.Duration(usage.Stime.Nano()),
		// ru_maxrss is in kilobytes on Linux.
		PeakRSSBytes: usage.Maxrss * 1024,
	}
}
