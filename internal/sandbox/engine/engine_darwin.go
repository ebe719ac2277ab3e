//go:build darwin

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
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

// degradedEngine is the macOS strategy: process-group supervision and
// resource measurement only. There is no filesystem or namespace isolation;
// every result it produces reports Isolated=false.
type degradedEngine struct {
	cfg Config
}

func newEngine(cfg Config) (Engine, error) {
	return &degradedEngine{cfg: cfg}, nil
}

func (e *degradedEngine) Run(ctx context.Context, cfg spec.Config) (result.Result, error) {
	if err := cfg.Validate(); err != nil {
		return result.Result{}, err
	}
	ctx = contextkey.WithRunID(ctx, uuid.NewString())
	if len(cfg.Mounts) > 0 || cfg.MountProc || cfg.MountTmpfs {
		// Filesystem staging is a no-op here: the sandbox root is the
		// host's real filesystem. Surfaced via Isolated=false.
		logger.Warn(ctx, "mount rules ignored under degraded supervision")
	}
	if cfg.Filter != nil {
		logger.Warn(ctx, "syscall filter ignored under degraded supervision")
	}

	cmd := exec.Command(cfg.Executable, cfg.Args...)
	cmd.Env = append([]string{}, cfg.Env...)
	cmd.Dir = cfg.WorkDirOrDefault()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdio, err := openStdio(cfg)
	if err != nil {
		return result.Result{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	defer stdio.close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdio.in, stdio.out, stdio.errOut

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.Result{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	pid := cmd.Process.Pid

	mon := monitor.New(
		monitor.Limits{
			CPUTime:     cfg.Limits.CPUTime,
			WallTime:    cfg.Limits.WallTime,
			MemoryBytes: cfg.Limits.MemoryBytes,
		},
		monitor.NewPSSampler(pid),
		func() { _ = unix.Kill(-pid, unix.SIGKILL) },
		e.cfg.PollInterval,
	)
	mon.Start()

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			mon.Kill()
		case <-waitDone:
		}
	}()

	waitErr := cmd.Wait()
	close(waitDone)
	mon.Stop()
	// Reap any stragglers in the group; no-op when everything is dead.
	_ = unix.Kill(-pid, unix.SIGKILL)

	state := cmd.ProcessState
	if state == nil {
		return result.Result{}, fmt.Errorf("wait for sandbox process: %w", waitErr)
	}
	mon.Finalize(rusageSample(state), time.Since(start))

	res := collect(state, mon)
	res.Isolated = false
	logger.Info(ctx, "sandbox run finished",
		zap.String("status", string(res.Status)),
		zap.Duration("wall_time", res.Usage.WallTime))
	return res, nil
}

type stdioFiles struct {
	in, out, errOut *os.File
}

func (s *stdioFiles) close() {
	for _, f := range []*os.File{s.in, s.out, s.errOut} {
		if f != nil {
			_ = f.Close()
		}
	}
}

// openStdio wires the three standard streams to the configured targets,
// defaulting to /dev/null so no handle is ever inherited unconfigured.
func openStdio(cfg spec.Config) (*stdioFiles, error) {
	s := &stdioFiles{}
	var err error
	if s.in, err = os.Open(pathOrDevNull(cfg.StdinPath)); err != nil {
		s.close()
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	if s.out, err = createStream(cfg.StdoutPath); err != nil {
		s.close()
		return nil, fmt.Errorf("open stdout: %w", err)
	}
	if s.errOut, err = createStream(cfg.StderrPath); err != nil {
		s.close()
		return nil, fmt.Errorf("open stderr: %w", err)
	}
	return s, nil
}

func pathOrDevNull(path string) string {
	if path == "" {
		return os.DevNull
	}
	return path
}

func createStream(path string) (*os.File, error) {
	return os.OpenFile(pathOrDevNull(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func rusageSample(state *os.ProcessState) monitor.Sample {
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return monitor.Sample{}
	}
	return monitor.Sample{
		UserTime:   time.Duration(usage.Utime.Nano()),
		SystemTime: time.Duration(usage.Stime.Nano()),
		// ru_maxrss is in bytes on macOS.
		PeakRSSBytes: usage.Maxrss,
	}
}
