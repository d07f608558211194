package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
	"github.com/samcharles93/mixq/pkg/qlf"
)

// EnvLayersDir names the directory searched for .qlf files when the store
// has none configured.
const EnvLayersDir = "MIXQ_LAYERS_DIR"

const layerExt = ".qlf"

// LayerStore holds loaded layers by name. Layers found in the directory
// are loaded on first use.
type LayerStore struct {
	dir    string
	mu     sync.Mutex
	layers map[string]*layerEntry
}

type layerEntry struct {
	layer   *qlf.Layer
	scratch sync.Pool
}

func NewLayerStore(dir string) *LayerStore {
	return &LayerStore{
		dir:    strings.TrimSpace(dir),
		layers: make(map[string]*layerEntry),
	}
}

// Dir is the directory layers are loaded from, or "" if none is set.
func (s *LayerStore) Dir() string {
	if s.dir != "" {
		return s.dir
	}
	return strings.TrimSpace(os.Getenv(EnvLayersDir))
}

// Add registers l under its name, replacing any previous layer.
func (s *LayerStore) Add(l *qlf.Layer) error {
	if l.Name == "" {
		return fmt.Errorf("layer has no name")
	}
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[l.Name] = newLayerEntry(l)
	return nil
}

func newLayerEntry(l *qlf.Layer) *layerEntry {
	e := &layerEntry{layer: l}
	g := l.Params.Geometry
	e.scratch.New = func() any {
		s := qconv.NewScratch(g)
		return &s
	}
	return e
}

// LoadAll loads every .qlf file in the store directory and returns the
// number of layers loaded.
func (s *LayerStore) LoadAll(ctx context.Context) (int, error) {
	dir := s.Dir()
	if dir == "" {
		return 0, nil
	}
	paths, err := discoverLayers(dir)
	if err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		l, err := qlf.ReadLayer(path)
		if err != nil {
			return 0, fmt.Errorf("load %s: %w", path, err)
		}
		if l.Name == "" {
			l.Name = layerName(path)
		}
		if err := s.Add(l); err != nil {
			return 0, fmt.Errorf("load %s: %w", path, err)
		}
		log.Debug("layer loaded", "name", l.Name, "variant", l.Params.Variant.String(), "path", path)
	}
	return len(paths), nil
}

// Get returns the named layer, loading <dir>/<name>.qlf if it is not
// cached yet.
func (s *LayerStore) Get(name string) (*qlf.Layer, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return e.layer, nil
}

func (s *LayerStore) entry(name string) (*layerEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newInvalidRequest("layer is required")
	}
	s.mu.Lock()
	e, ok := s.layers[name]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	dir := s.Dir()
	if dir == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	path := filepath.Join(dir, name+layerExt)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	l, err := qlf.ReadLayer(path)
	if err != nil {
		return nil, err
	}
	l.Name = name

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.layers[name]; ok {
		return existing, nil
	}
	e = newLayerEntry(l)
	s.layers[name] = e
	return e, nil
}

// List returns the cached layers sorted by name.
func (s *LayerStore) List() []*qlf.Layer {
	s.mu.Lock()
	out := make([]*qlf.Layer, 0, len(s.layers))
	for _, e := range s.layers {
		out = append(out, e.layer)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *qlf.Layer) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Len is the number of cached layers.
func (s *LayerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layers)
}

func discoverLayers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), layerExt) {
			continue
		}
		out = append(out, filepath.Join(dir, ent.Name()))
	}
	slices.Sort(out)
	return out, nil
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
