package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the mixq configuration file (~/.config/mixq/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	LayersDir string `yaml:"layers_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`

	BenchRuns   *int64 `yaml:"bench_runs"`
	BenchWarmup *int64 `yaml:"bench_warmup"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mixq", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// malformed one is an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig fills logging options from the config file when the
// matching flag was not set.
func (a *app) applyLoggingConfig(c *cli.Command) {
	if a.cfg.LogLevel != "" && !c.IsSet("log-level") {
		a.logLevel = a.cfg.LogLevel
	}
	if a.cfg.LogFormat != "" && !c.IsSet("log-format") {
		a.logFormat = a.cfg.LogFormat
	}
}

// layersDir resolves the layer directory: flag, then config, then the
// environment.
func (a *app) layersDir(c *cli.Command, flagValue string) string {
	if c.IsSet("layers-dir") && flagValue != "" {
		return flagValue
	}
	if a.cfg.LayersDir != "" {
		return a.cfg.LayersDir
	}
	return os.Getenv(envLayersDir)
}

func (a *app) applyServeConfig(c *cli.Command, addr *string) {
	if a.cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = a.cfg.ServerAddress
	}
}

func (a *app) applyBenchConfig(c *cli.Command, runs, warmup *int64) {
	if a.cfg.BenchRuns != nil && !c.IsSet("runs") {
		*runs = *a.cfg.BenchRuns
	}
	if a.cfg.BenchWarmup != nil && !c.IsSet("warmup") {
		*warmup = *a.cfg.BenchWarmup
	}
}
