package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLayerPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conv1.qlf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write layer: %v", err)
	}

	t.Run("path is returned cleaned", func(t *testing.T) {
		got, err := resolveLayerPath("./layers/../conv1.qlf", "")
		if err != nil {
			t.Fatalf("resolveLayerPath: %v", err)
		}
		if got != "conv1.qlf" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("name is looked up in the directory", func(t *testing.T) {
		got, err := resolveLayerPath("conv1", dir)
		if err != nil {
			t.Fatalf("resolveLayerPath: %v", err)
		}
		if want := filepath.Join(dir, "conv1.qlf"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		if _, err := resolveLayerPath("conv9", dir); err == nil {
			t.Fatalf("expected error for unknown layer")
		}
	})

	t.Run("name without directory", func(t *testing.T) {
		if _, err := resolveLayerPath("conv1", ""); err == nil {
			t.Fatalf("expected error without a layers directory")
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		if _, err := resolveLayerPath("  ", dir); err == nil {
			t.Fatalf("expected error for empty reference")
		}
	})
}

func TestResolvePackOut(t *testing.T) {
	t.Run("explicit output wins", func(t *testing.T) {
		outPath := filepath.Join(t.TempDir(), "nested", "layer.qlf")
		got, err := resolvePackOut("layers/conv.yaml", "conv", outPath)
		if err != nil {
			t.Fatalf("resolvePackOut: %v", err)
		}
		if got != filepath.Clean(outPath) {
			t.Fatalf("got %q want %q", got, outPath)
		}
		if _, err := os.Stat(filepath.Dir(got)); err != nil {
			t.Fatalf("expected output directory to exist: %v", err)
		}
	})

	t.Run("env output dir overrides default", func(t *testing.T) {
		envDir := filepath.Join(t.TempDir(), "pack-out")
		t.Setenv(envPackOutDir, envDir)

		got, err := resolvePackOut(filepath.Join(t.TempDir(), "conv.yaml"), "conv", "")
		if err != nil {
			t.Fatalf("resolvePackOut: %v", err)
		}
		if want := filepath.Join(envDir, "conv.qlf"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("default is next to the description", func(t *testing.T) {
		t.Setenv(envPackOutDir, "")
		dir := t.TempDir()
		got, err := resolvePackOut(filepath.Join(dir, "conv.yaml"), "first", "")
		if err != nil {
			t.Fatalf("resolvePackOut: %v", err)
		}
		if want := filepath.Join(dir, "first.qlf"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})
}
