// taskbox runs one untrusted program inside the sandbox engine and prints
// the execution result as JSON on stdout.
//
//	taskbox [flags] /path/to/program [arg...]
//	taskbox [flags] -c "/path/to/program arg..."
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"taskbox/internal/sandbox"
	"taskbox/internal/sandbox/result"
	"taskbox/internal/sandbox/spec"
	"taskbox/pkg/utils/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "path to optional YAML config file")
		command      = flag.String("c", "", "command line to run, split shell-style")
		workDir      = flag.String("workdir", "", "working directory inside the sandbox")
		stdinPath    = flag.String("stdin", "", "redirect stdin from this file")
		stdoutPath   = flag.String("stdout", "", "redirect stdout to this file")
		stderrPath   = flag.String("stderr", "", "redirect stderr to this file")
		cpuLimit     = flag.Duration("cpu-limit", 0, "CPU time limit (0 = unlimited)")
		wallLimit    = flag.Duration("wall-limit", 0, "wall clock limit (0 = unlimited)")
		memoryLimit  = flag.Int64("memory-limit", 0, "memory limit in MiB (0 = unlimited)")
		mountProc    = flag.Bool("mount-proc", false, "mount a private /proc")
		mountTmpfs   = flag.Bool("mount-tmpfs", false, "mount a writable tmpfs on /tmp and /dev/shm")
		noNamespaces = flag.Bool("no-namespaces", false, "disable namespace isolation (supervision only)")
	)
	var mounts mountFlags
	var env envFlags
	flag.Var(&mounts, "mount", "bind mount source:target[:ro], repeatable")
	flag.Var(&env, "env", "environment entry KEY=value, repeatable")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 2
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 2
	}
	defer func() {
		_ = logger.Sync()
	}()

	executable, args, err := targetCommand(*command, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	runCfg := spec.Config{
		Executable: executable,
		Args:       args,
		Env:        append(append([]string{}, appCfg.Defaults.Env...), env...),
		WorkDir:    *workDir,
		Mounts:     append(append([]spec.MountRule{}, appCfg.Defaults.Mounts...), mounts...),
		Limits: spec.Limits{
			CPUTime:     *cpuLimit,
			WallTime:    *wallLimit,
			MemoryBytes: *memoryLimit << 20,
		},
		StdinPath:  *stdinPath,
		StdoutPath: *stdoutPath,
		StderrPath: *stderrPath,
		MountProc:  *mountProc,
		MountTmpfs: *mountTmpfs,
	}

	engineCfg := appCfg.engineConfig()
	if *noNamespaces {
		engineCfg.DisableNamespaces = true
	}

	ctx := context.Background()
	start := time.Now()
	res, err := sandbox.Run(ctx, engineCfg, runCfg)
	if err != nil {
		logger.Error(ctx, "sandbox run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return 2
	}
	fmt.Println(string(out))

	if res.Status == result.StatusSuccess {
		return 0
	}
	return 1
}

// targetCommand resolves the program and arguments from either the -c
// command string or the positional arguments, but not both.
func targetCommand(command string, positional []string) (string, []string, error) {
	if command != "" {
		if len(positional) > 0 {
			return "", nil, fmt.Errorf("cannot combine -c with positional arguments")
		}
		tokens, err := shlex.Split(command)
		if err != nil {
			return "", nil, fmt.Errorf("parse -c command: %w", err)
		}
		if len(tokens) == 0 {
			return "", nil, fmt.Errorf("-c command is empty")
		}
		return tokens[0], tokens[1:], nil
	}
	if len(positional) == 0 {
		return "", nil, fmt.Errorf("usage: taskbox [flags] /path/to/program [arg...]")
	}
	return positional[0], positional[1:], nil
}

// mountFlags parses repeated -mount source:target[:ro] values.
type mountFlags []spec.MountRule

func (m *mountFlags) String() string {
	parts := make([]string, len(*m))
	for i, rule := range *m {
		parts[i] = rule.Source + ":" + rule.Target
		if rule.ReadOnly {
			parts[i] += ":ro"
		}
	}
	return strings.Join(parts, ",")
}

func (m *mountFlags) Set(value string) error {
	parts := strings.Split(value, ":")
	switch len(parts) {
	case 2:
		*m = append(*m, spec.MountRule{Source: parts[0], Target: parts[1]})
	case 3:
		if parts[2] != "ro" && parts[2] != "rw" {
			return fmt.Errorf("mount mode must be ro or rw: %q", value)
		}
		*m = append(*m, spec.MountRule{Source: parts[0], Target: parts[1], ReadOnly: parts[2] == "ro"})
	default:
		return fmt.Errorf("mount must be source:target[:ro]: %q", value)
	}
	return nil
}

// envFlags parses repeated -env KEY=value entries.
type envFlags []string

func (e *envFlags) String() string {
	return strings.Join(*e, ",")
}

func (e *envFlags) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("env entry must be KEY=value: %q", value)
	}
	*e = append(*e, value)
	return nil
}
