package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

const tinyLayerYAML = `
name: tiny
variant: {in: 8, weight: 2, out: 4, folding: thr}
geometry: {in_dim: 1, in_ch: 4, out_ch: 4, kernel: 1}
in_zero: 9
bias: [0, 10, 20, 30]
weights: [1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1]
threshold_step: {start: 5, step: 10}
`

const convLayerYAML = `
name: conv
variant: {in: 2, weight: 4, out: 2, folding: icn}
geometry:
  in_dim: 6
  in_ch: 8
  out_ch: 8
  kernel: 3
  stride: 2
  padding: {top: 1, bottom: 1, left: 1, right: 1}
in_zero: 1
weight_zero: [7]
weight_fill: {seed: 3}
multipliers: [1073741824]
shifts: [4]
out_zero: 1
`

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI runs mixq in-process with an isolated config file.
func runCLI(t *testing.T, configBody string, args ...string) cliResult {
	t.Helper()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if configBody != "" {
		if err := os.WriteFile(configFile, []byte(configBody), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := newApp()
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	argv := append([]string{"mixq", "--config", configFile, "--log-format", "plain"}, args...)
	err := cmd.Run(context.Background(), argv)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func packLayer(t *testing.T, dir, name, body string) string {
	t.Helper()
	spec := filepath.Join(dir, name+".yaml")
	if err := os.WriteFile(spec, []byte(body), 0o644); err != nil {
		t.Fatalf("write description: %v", err)
	}
	out := filepath.Join(dir, name+".qlf")
	res := runCLI(t, "", "pack", "--spec", spec, "--out", out)
	if res.err != nil {
		t.Fatalf("pack: %v\n%s", res.err, res.stderr)
	}
	if strings.TrimSpace(res.stdout) != out {
		t.Fatalf("pack printed %q, want %q", res.stdout, out)
	}
	return out
}

func TestPackInspectRun(t *testing.T) {
	dir := t.TempDir()
	layer := packLayer(t, dir, "tiny", tinyLayerYAML)

	res := runCLI(t, "", "inspect", "--json", layer)
	if res.err != nil {
		t.Fatalf("inspect: %v", res.err)
	}
	var report inspectReport
	if err := json.Unmarshal([]byte(res.stdout), &report); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, res.stdout)
	}
	if report.Layer.Name != "tiny" || report.Layer.Folding != "thr" || report.Sizes.Input != 4 || report.Sizes.Output != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	var sections []string
	for _, s := range report.Sections {
		sections = append(sections, s.Type)
	}
	if want := []string{"layer_info", "weights", "bias", "weight_zero", "thresholds"}; !slices.Equal(sections, want) {
		t.Fatalf("sections: got %v want %v", sections, want)
	}

	res = runCLI(t, "", "inspect", layer)
	if res.err != nil || !strings.Contains(res.stdout, "u8_u2_u4_thr") {
		t.Fatalf("inspect text: %v\n%s", res.err, res.stdout)
	}

	// Inputs at the zero point leave only the bias: levels 0..3.
	input := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(input, []byte{9, 9, 9, 9}, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	res = runCLI(t, "", "run", "--layer", layer, "--input", input)
	if res.err != nil {
		t.Fatalf("run: %v\n%s", res.err, res.stderr)
	}
	if got := strings.TrimSpace(res.stdout); got != "1032" {
		t.Fatalf("packed output %q, want 1032", got)
	}

	rawOut := filepath.Join(dir, "acc.bin")
	res = runCLI(t, "", "run", "--layer", layer, "--input", input, "--raw", "--output", rawOut)
	if res.err != nil {
		t.Fatalf("run --raw: %v", res.err)
	}
	data, err := os.ReadFile(rawOut)
	if err != nil {
		t.Fatalf("read raw output: %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("raw output has %d bytes", len(data))
	}
	for i, want := range []int32{0, 10, 20, 30} {
		if got := int32(binary.LittleEndian.Uint32(data[4*i:])); got != want {
			t.Fatalf("acc %d: got %d want %d", i, got, want)
		}
	}
}

func TestRunRejectsWrongInputSize(t *testing.T) {
	dir := t.TempDir()
	layer := packLayer(t, dir, "tiny", tinyLayerYAML)
	input := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(input, []byte{9, 9, 9}, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	res := runCLI(t, "", "run", "--layer", layer, "--input", input)
	if res.err == nil {
		t.Fatalf("expected error for a 3 byte input")
	}
	if !strings.Contains(res.err.Error(), "SIZE_MISMATCH") {
		t.Fatalf("unexpected error: %v", res.err)
	}

	if res := runCLI(t, "", "run", "--layer", layer); res.err == nil {
		t.Fatalf("expected error without an input")
	}
}

func TestRunResolvesNameFromLayersDir(t *testing.T) {
	dir := t.TempDir()
	packLayer(t, dir, "conv", convLayerYAML)

	res := runCLI(t, "", "run", "--layers-dir", dir, "--layer", "conv", "--random-input", "--seed", "5")
	if res.err != nil {
		t.Fatalf("run by name: %v\n%s", res.err, res.stderr)
	}
	// 3x3 output x 8 channels at 2 bits is 18 bytes.
	if got := strings.TrimSpace(res.stdout); len(got) != 2*18 {
		t.Fatalf("unexpected hex output %q", got)
	}

	t.Setenv(envLayersDir, dir)
	if res := runCLI(t, "", "run", "--layer", "conv", "--random-input"); res.err != nil {
		t.Fatalf("run via %s: %v", envLayersDir, res.err)
	}

	t.Setenv(envLayersDir, "")
	cfg := "layers_dir: " + dir + "\n"
	if res := runCLI(t, cfg, "run", "--layer", "conv", "--random-input"); res.err != nil {
		t.Fatalf("run via config layers_dir: %v", res.err)
	}
}

func TestVerifyPasses(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct{ name, body string }{
		{"tiny", tinyLayerYAML},
		{"conv", convLayerYAML},
	} {
		layer := packLayer(t, dir, tc.name, tc.body)
		res := runCLI(t, "", "verify", "--layer", layer, "--trials", "4", "--seed", "11")
		if res.err != nil {
			t.Fatalf("verify %s: %v\n%s", tc.name, res.err, res.stderr)
		}
		if !strings.HasPrefix(res.stdout, "OK "+tc.name) {
			t.Fatalf("verify %s printed %q", tc.name, res.stdout)
		}
	}
}

func TestBenchUsesConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	layer := packLayer(t, dir, "conv", convLayerYAML)

	res := runCLI(t, "bench_runs: 3\nbench_warmup: 1\n", "bench", "--layer", layer)
	if res.err != nil {
		t.Fatalf("bench: %v", res.err)
	}
	if !strings.Contains(res.stdout, "runs:    3 (warmup 1)") {
		t.Fatalf("config defaults not applied:\n%s", res.stdout)
	}

	// Flags win over the config file.
	res = runCLI(t, "bench_runs: 3\n", "bench", "--layer", layer, "--runs", "2", "--warmup", "0")
	if res.err != nil {
		t.Fatalf("bench: %v", res.err)
	}
	if !strings.Contains(res.stdout, "runs:    2 (warmup 0)") {
		t.Fatalf("flags did not override config:\n%s", res.stdout)
	}
}

func TestBadConfigFails(t *testing.T) {
	if res := runCLI(t, "bench_runs: [1\n", "version"); res.err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestCPUAndVersion(t *testing.T) {
	res := runCLI(t, "", "cpu", "--json")
	if res.err != nil {
		t.Fatalf("cpu: %v", res.err)
	}
	var report struct {
		GoArch string `json:"goarch"`
		CPUs   int    `json:"cpus"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &report); err != nil {
		t.Fatalf("decode cpu output: %v", err)
	}
	if report.GoArch == "" || report.CPUs < 1 {
		t.Fatalf("unexpected cpu report: %+v", report)
	}

	res = runCLI(t, "", "version")
	if res.err != nil || !strings.HasPrefix(res.stdout, "version:") {
		t.Fatalf("version: %v %q", res.err, res.stdout)
	}
}

func TestPackRejectsInvalidDescription(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "bad.yaml")
	body := strings.Replace(tinyLayerYAML, "in_ch: 4", "in_ch: 3", 1)
	if err := os.WriteFile(spec, []byte(body), 0o644); err != nil {
		t.Fatalf("write description: %v", err)
	}
	out := filepath.Join(dir, "bad.qlf")
	if res := runCLI(t, "", "pack", "--spec", spec, "--out", out); res.err == nil {
		t.Fatalf("expected error for in_ch not a multiple of 4")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("no layer file should be written, stat: %v", err)
	}
}
