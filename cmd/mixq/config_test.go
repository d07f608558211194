package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LayersDir != "" || cfg.BenchRuns != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	if cfg, err := LoadConfig(""); err != nil || cfg.LogLevel != "" {
		t.Fatalf("empty path: %+v, %v", cfg, err)
	}
}

func TestLoadConfigReadsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
layers_dir: /srv/layers
log_level: debug
log_format: json
server_address: 0.0.0.0:9000
bench_runs: 7
bench_warmup: 0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LayersDir != "/srv/layers" || cfg.LogLevel != "debug" || cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.BenchRuns == nil || *cfg.BenchRuns != 7 {
		t.Fatalf("bench_runs: %v", cfg.BenchRuns)
	}
	// An explicit zero is distinguishable from an absent key.
	if cfg.BenchWarmup == nil || *cfg.BenchWarmup != 0 {
		t.Fatalf("bench_warmup: %v", cfg.BenchWarmup)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bench_runs: [1, 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestConfigPathUnderUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	got := configPath()
	if filepath.Base(got) != "config.yaml" || filepath.Base(filepath.Dir(got)) != "mixq" {
		t.Fatalf("unexpected config path %q", got)
	}
}
