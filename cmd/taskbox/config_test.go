package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskbox.yaml")
	content := `
logger:
  level: debug
  format: console
engine:
  helperPath: /usr/local/bin/sandbox-init
  scratchRoot: /var/tmp
  pollInterval: 25000000
defaults:
  mounts:
    - source: /usr
      target: /usr
      readOnly: true
  env:
    - PATH=/usr/bin:/bin
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Fatalf("logger level: got %q", cfg.Logger.Level)
	}
	if cfg.Engine.HelperPath != "/usr/local/bin/sandbox-init" {
		t.Fatalf("helper path: got %q", cfg.Engine.HelperPath)
	}
	if cfg.Engine.PollInterval != 25*time.Millisecond {
		t.Fatalf("poll interval: got %v", cfg.Engine.PollInterval)
	}
	if len(cfg.Defaults.Mounts) != 1 || !cfg.Defaults.Mounts[0].ReadOnly {
		t.Fatalf("default mounts: got %+v", cfg.Defaults.Mounts)
	}
	if len(cfg.Defaults.Env) != 1 || cfg.Defaults.Env[0] != "PATH=/usr/bin:/bin" {
		t.Fatalf("default env: got %v", cfg.Defaults.Env)
	}

	ecfg := cfg.engineConfig()
	if ecfg.ScratchRoot != "/var/tmp" || ecfg.PollInterval != 25*time.Millisecond {
		t.Fatalf("engine config: got %+v", ecfg)
	}
}

func TestLoadAppConfigEmptyPath(t *testing.T) {
	cfg, err := loadAppConfig("")
	if err != nil {
		t.Fatalf("load empty path: %v", err)
	}
	if cfg.Engine.HelperPath != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
