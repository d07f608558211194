package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/mixq/internal/api"
	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qlf"
)

const (
	envLayersDir  = api.EnvLayersDir
	envPackOutDir = "MIXQ_PACK_OUT_DIR"
)

// resolveLayerPath accepts a file path or a bare layer name looked up in
// layersDir.
func resolveLayerPath(ref, layersDir string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("--layer is required")
	}
	if looksLikePath(ref) {
		return filepath.Clean(ref), nil
	}
	dir := strings.TrimSpace(layersDir)
	if dir == "" {
		return "", fmt.Errorf("layer %q is not a path and no layers directory is set (--layers-dir or %s)", ref, envLayersDir)
	}
	path := filepath.Join(dir, ref+".qlf")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("layer %q not found in %s", ref, dir)
	}
	return path, nil
}

func looksLikePath(v string) bool {
	if strings.ContainsRune(v, filepath.Separator) || strings.Contains(v, "/") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(v), ".qlf")
}

func loadLayer(ctx context.Context, ref, layersDir string) (*qlf.Layer, string, error) {
	path, err := resolveLayerPath(ref, layersDir)
	if err != nil {
		return nil, "", err
	}
	l, err := qlf.ReadLayer(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	logger.FromContext(ctx).Debug("layer loaded", "path", path, "name", l.Name, "variant", l.Params.Variant.String())
	return l, path, nil
}

// resolvePackOut picks the output path of pack: the flag, then
// $MIXQ_PACK_OUT_DIR/<name>.qlf, then <name>.qlf next to the description.
func resolvePackOut(specPath, name, outFlag string) (string, error) {
	out := strings.TrimSpace(outFlag)
	if out == "" {
		dir := strings.TrimSpace(os.Getenv(envPackOutDir))
		if dir == "" {
			dir = filepath.Dir(specPath)
		}
		out = filepath.Join(dir, name+".qlf")
	}
	out = filepath.Clean(out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	return out, nil
}
