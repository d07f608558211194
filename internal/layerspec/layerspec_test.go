package layerspec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
)

const exampleYAML = `
name: tiny
variant: {in: 8, weight: 2, out: 4, folding: thr}
geometry: {in_dim: 1, in_ch: 4, out_ch: 4, kernel: 1}
in_zero: 9
bias: [0, 10, 20, 30]
weights: [1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1]
threshold_step: {start: 5, step: 10}
`

const exampleJSON = `{
  "variant": {"in": 2, "weight": 4, "out": 2, "folding": "icn"},
  "geometry": {"in_dim": 5, "in_ch": 8, "out_ch": 4, "kernel": 3, "stride": 2,
               "padding": {"top": 1, "bottom": 1, "left": 1, "right": 1}},
  "in_zero": 1,
  "weight_zero": [7, 8, 7, 8],
  "bias": [1, 2, 3, 4],
  "weight_fill": {"seed": 42},
  "multipliers": [1073741824],
  "shifts": [2],
  "out_zero": 1
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func TestLoadYAMLBuildsThresholdLayer(t *testing.T) {
	t.Parallel()

	s, err := Load(testContext(), writeFile(t, "tiny.yaml", exampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	l, err := s.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := l.Params
	if p.Variant != (qconv.Variant{In: qconv.Bits8, Weight: qconv.Bits2, Out: qconv.Bits4, Fold: qconv.FoldThreshold}) {
		t.Fatalf("variant: %+v", p.Variant)
	}
	if p.Geometry.Stride != 1 || !slices.Equal(p.WeightZero, []uint8{0}) {
		t.Fatalf("defaults not applied: stride %d wz %v", p.Geometry.Stride, p.WeightZero)
	}
	if len(p.Quant.Thresholds) != 4*16 {
		t.Fatalf("threshold table length %d", len(p.Quant.Thresholds))
	}
	if p.Quant.Thresholds[16] != 5 || p.Quant.Thresholds[17] != 15 || p.Quant.Thresholds[31] != 0 {
		t.Fatalf("threshold block layout wrong: %v", p.Quant.Thresholds[16:32])
	}
	if !slices.Equal(l.Weights, []byte{0x55, 0x55, 0x55, 0x55}) {
		t.Fatalf("packed weights: %x", l.Weights)
	}

	// The layer runs end to end: one level per channel.
	out := make([]byte, p.OutputLen())
	if err := qconv.Convolve(out, []byte{9, 9, 9, 9}, l.Weights, p, qconv.NewScratch(p.Geometry)); err != nil {
		t.Fatalf("convolve: %v", err)
	}
	if !slices.Equal(out, []byte{0x10, 0x32}) {
		t.Fatalf("output: %x", out)
	}
}

func TestLoadJSONWithWeightFill(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "filled.json", exampleJSON)
	s, err := Load(testContext(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name != "filled" {
		t.Fatalf("name should default to the file stem, got %q", s.Name)
	}
	a, err := s.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := s.Build()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !slices.Equal(a.Weights, b.Weights) {
		t.Fatal("weight_fill is not deterministic")
	}
	vals := make([]uint8, 4*9*8)
	qconv.Unpack(vals, a.Weights, qconv.Bits4)
	if slices.Max(vals) > 15 {
		t.Fatalf("fill exceeded weight range")
	}
	if a.Params.Variant.Fold != qconv.FoldScaleShift || a.Params.Quant.OutZero != 1 {
		t.Fatalf("quant: %+v", a.Params.Quant)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("name: x\nkernal: 3\n"), ".yaml"); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("yaml: got %v", err)
	}
	if _, err := Parse([]byte(`{"kernal": 3}`), ".json"); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("json: got %v", err)
	}
	if _, err := Parse(nil, ".toml"); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("toml: got %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	base := func() *Spec {
		s, err := Parse([]byte(exampleYAML), ".yaml")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return s
	}

	tests := []struct {
		name   string
		mutate func(s *Spec)
		want   error
	}{
		{"bad width", func(s *Spec) { s.Variant.In = 3 }, qconv.ErrUnsupportedBits},
		{"bad folding", func(s *Spec) { s.Variant.Folding = "magic" }, ErrInvalidSpec},
		{"channels", func(s *Spec) { s.Geometry.InCh = 6 }, qconv.ErrSizeMismatch},
		{"weight count", func(s *Spec) { s.Weights = s.Weights[:3] }, ErrInvalidSpec},
		{"weight range", func(s *Spec) { s.Weights[0] = 4 }, ErrInvalidSpec},
		{"no weights", func(s *Spec) { s.Weights = nil }, ErrInvalidSpec},
		{"both weight sources", func(s *Spec) { s.WeightFill = &Fill{} }, ErrInvalidSpec},
		{"weight zero range", func(s *Spec) { s.WeightZero = []int{5} }, ErrInvalidSpec},
		{"no thresholds", func(s *Spec) { s.ThresholdStep = nil }, ErrInvalidSpec},
		{"unsorted thresholds", func(s *Spec) {
			s.ThresholdStep = nil
			s.Thresholds = [][]int16{{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 15, 14}}
		}, ErrInvalidSpec},
		{"short thresholds", func(s *Spec) {
			s.ThresholdStep = nil
			s.Thresholds = [][]int16{{1, 2, 3}}
		}, ErrInvalidSpec},
		{"step overflow", func(s *Spec) { s.ThresholdStep = &ThresholdStep{Start: 32000, Step: 1000} }, ErrInvalidSpec},
		{"scale shift without tables", func(s *Spec) { s.Variant.Folding = "icn" }, ErrInvalidSpec},
	}
	for _, tt := range tests {
		s := base()
		tt.mutate(s)
		if _, err := s.Build(); !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestPerChannelThresholdLists(t *testing.T) {
	t.Parallel()

	s := &Spec{
		Variant:  Variant{In: 2, Weight: 2, Out: 2, Folding: "thr"},
		Geometry: Geometry{InDim: 2, InCh: 4, OutCh: 4, Kernel: 1},
		Thresholds: [][]int16{
			{0, 1, 2}, {-5, 0, 5}, {10, 10, 10}, {-1, -1, 100},
		},
		WeightFill: &Fill{Seed: 1},
	}
	l, err := s.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []int16{0, 1, 2, 0, -5, 0, 5, 0, 10, 10, 10, 0, -1, -1, 100, 0}
	if !slices.Equal(l.Params.Quant.Thresholds, want) {
		t.Fatalf("table: got %v want %v", l.Params.Quant.Thresholds, want)
	}
	if len(l.Params.Bias) != 4 {
		t.Fatalf("bias should default to zeros, got %v", l.Params.Bias)
	}
}
