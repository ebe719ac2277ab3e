package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"taskbox/internal/sandbox/engine"
	"taskbox/internal/sandbox/spec"
	"taskbox/pkg/utils/logger"
)

// EngineConfig holds sandbox engine settings.
type EngineConfig struct {
	HelperPath        string        `yaml:"helperPath"`
	ScratchRoot       string        `yaml:"scratchRoot"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	DisableNamespaces bool          `yaml:"disableNamespaces"`
}

// DefaultsConfig holds run defaults merged before command-line settings.
type DefaultsConfig struct {
	Mounts []spec.MountRule `yaml:"mounts"`
	Env    []string         `yaml:"env"`
}

// AppConfig is the optional taskbox configuration file.
type AppConfig struct {
	Logger   logger.Config  `yaml:"logger"`
	Engine   EngineConfig   `yaml:"engine"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

func loadAppConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func (c AppConfig) engineConfig() engine.Config {
	return engine.Config{
		HelperPath:        c.Engine.HelperPath,
		ScratchRoot:       c.Engine.ScratchRoot,
		PollInterval:      c.Engine.PollInterval,
		DisableNamespaces: c.Engine.DisableNamespaces,
	}
}
