// Package layerspec reads human-written layer descriptions (YAML or JSON)
// and turns them into packed qlf layers.
package layerspec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
	"github.com/samcharles93/mixq/pkg/qlf"
)

var ErrInvalidSpec = errors.New("layerspec: invalid layer description")

type Spec struct {
	Name     string   `yaml:"name" json:"name"`
	Variant  Variant  `yaml:"variant" json:"variant"`
	Geometry Geometry `yaml:"geometry" json:"geometry"`

	InZero     uint8   `yaml:"in_zero" json:"in_zero"`
	WeightZero []int   `yaml:"weight_zero" json:"weight_zero"`
	Bias       []int32 `yaml:"bias" json:"bias"`

	// Weights holds unpacked values in [out_ch][ky][kx][in_ch] order.
	Weights    []int `yaml:"weights" json:"weights"`
	WeightFill *Fill `yaml:"weight_fill" json:"weight_fill"`

	// Thresholds holds one list of 2^out-1 boundaries per output channel,
	// or a single list shared by all channels.
	Thresholds    [][]int16      `yaml:"thresholds" json:"thresholds"`
	ThresholdStep *ThresholdStep `yaml:"threshold_step" json:"threshold_step"`

	Multipliers []int32 `yaml:"multipliers" json:"multipliers"`
	Shifts      []int8  `yaml:"shifts" json:"shifts"`
	OutZero     uint8   `yaml:"out_zero" json:"out_zero"`
}

type Variant struct {
	In      int    `yaml:"in" json:"in"`
	Weight  int    `yaml:"weight" json:"weight"`
	Out     int    `yaml:"out" json:"out"`
	Folding string `yaml:"folding" json:"folding"`
}

type Geometry struct {
	InDim   int     `yaml:"in_dim" json:"in_dim"`
	InCh    int     `yaml:"in_ch" json:"in_ch"`
	OutCh   int     `yaml:"out_ch" json:"out_ch"`
	Kernel  int     `yaml:"kernel" json:"kernel"`
	Stride  int     `yaml:"stride" json:"stride"`
	Padding Padding `yaml:"padding" json:"padding"`
}

type Padding struct {
	Top    int `yaml:"top" json:"top"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Left   int `yaml:"left" json:"left"`
	Right  int `yaml:"right" json:"right"`
}

// Fill generates uniformly distributed weights in [Min, Max] from a PCG
// source seeded with Seed.
type Fill struct {
	Seed uint64 `yaml:"seed" json:"seed"`
	Min  uint8  `yaml:"min" json:"min"`
	Max  uint8  `yaml:"max" json:"max"`
}

// ThresholdStep generates evenly spaced boundaries Start, Start+Step, ...
// shared by all channels.
type ThresholdStep struct {
	Start int16 `yaml:"start" json:"start"`
	Step  int16 `yaml:"step" json:"step"`
}

// Load parses the description at path. The format follows the extension:
// .json is JSON, .yaml and .yml are YAML.
func Load(ctx context.Context, path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	logger.FromContext(ctx).Debug("layer description loaded", "path", path, "name", s.Name)
	return s, nil
}

// Parse decodes a description. ext selects the format; unknown fields are
// rejected in both formats.
func Parse(data []byte, ext string) (*Spec, error) {
	var s Spec
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalidSpec, ext)
	}
	return &s, nil
}

// Params converts the description to convolution parameters, validating
// widths, folding and channel constraints.
func (s *Spec) Params() (qconv.Params, error) {
	var p qconv.Params
	in, err := qconv.ParseBits(s.Variant.In)
	if err != nil {
		return p, fmt.Errorf("variant.in: %w", err)
	}
	wt, err := qconv.ParseBits(s.Variant.Weight)
	if err != nil {
		return p, fmt.Errorf("variant.weight: %w", err)
	}
	out, err := qconv.ParseBits(s.Variant.Out)
	if err != nil {
		return p, fmt.Errorf("variant.out: %w", err)
	}
	fold, err := qconv.ParseFolding(s.Variant.Folding)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	g := s.Geometry
	p = qconv.Params{
		Variant: qconv.Variant{In: in, Weight: wt, Out: out, Fold: fold},
		Geometry: qconv.Geometry{
			InDim:  g.InDim,
			InCh:   g.InCh,
			OutCh:  g.OutCh,
			Kernel: g.Kernel,
			Stride: g.Stride,
			Pad:    qconv.Padding{Top: g.Padding.Top, Bottom: g.Padding.Bottom, Left: g.Padding.Left, Right: g.Padding.Right},
		},
		InZero: s.InZero,
		Bias:   s.Bias,
	}
	if p.Geometry.Stride == 0 {
		p.Geometry.Stride = 1
	}
	p.WeightZero = []uint8{0}
	if len(s.WeightZero) > 0 {
		p.WeightZero = make([]uint8, len(s.WeightZero))
		for i, z := range s.WeightZero {
			if z < 0 || z > int(wt.MaxLevel()) {
				return p, fmt.Errorf("%w: weight_zero %d outside %s range", ErrInvalidSpec, z, wt)
			}
			p.WeightZero[i] = uint8(z)
		}
	}
	if p.Bias == nil && g.OutCh > 0 {
		p.Bias = make([]int32, g.OutCh)
	}
	if int32(p.InZero) > in.MaxLevel() {
		return p, fmt.Errorf("%w: in_zero %d exceeds %s range", ErrInvalidSpec, p.InZero, in)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}

	p.Quant, err = s.quant(p)
	return p, err
}

func (s *Spec) quant(p qconv.Params) (qconv.Quant, error) {
	q := qconv.Quant{OutZero: s.OutZero}
	out, outCh := p.Variant.Out, p.Geometry.OutCh
	if int32(s.OutZero) > out.MaxLevel() {
		return q, fmt.Errorf("%w: out_zero %d exceeds %s range", ErrInvalidSpec, s.OutZero, out)
	}

	switch p.Variant.Fold {
	case qconv.FoldThreshold:
		table, err := s.thresholdTable(out, outCh)
		if err != nil {
			return q, err
		}
		q.Thresholds = table
	case qconv.FoldScaleShift:
		if len(s.Multipliers) == 0 || len(s.Shifts) == 0 {
			return q, fmt.Errorf("%w: scale/shift folding needs multipliers and shifts", ErrInvalidSpec)
		}
		q.Multipliers, q.Shifts = s.Multipliers, s.Shifts
	}
	return q, nil
}

// thresholdTable lays boundaries out in blocks of 2^out entries per channel
// with the unused last entry set to zero.
func (s *Spec) thresholdTable(out qconv.Bits, outCh int) ([]int16, error) {
	stride := out.Levels()
	n := stride - 1

	lists := s.Thresholds
	if s.ThresholdStep != nil {
		if lists != nil {
			return nil, fmt.Errorf("%w: thresholds and threshold_step are exclusive", ErrInvalidSpec)
		}
		if s.ThresholdStep.Step <= 0 {
			return nil, fmt.Errorf("%w: threshold_step.step must be positive", ErrInvalidSpec)
		}
		row := make([]int16, n)
		v := int32(s.ThresholdStep.Start)
		for i := range row {
			if v > 32767 {
				return nil, fmt.Errorf("%w: threshold_step overflows int16", ErrInvalidSpec)
			}
			row[i] = int16(v)
			v += int32(s.ThresholdStep.Step)
		}
		lists = [][]int16{row}
	}
	switch len(lists) {
	case 0:
		return nil, fmt.Errorf("%w: threshold folding needs thresholds or threshold_step", ErrInvalidSpec)
	case 1, outCh:
	default:
		return nil, fmt.Errorf("%w: %d threshold lists for %d output channels", ErrInvalidSpec, len(lists), outCh)
	}

	table := make([]int16, outCh*stride)
	for ch := 0; ch < outCh; ch++ {
		row := lists[0]
		if len(lists) > 1 {
			row = lists[ch]
		}
		if len(row) != n {
			return nil, fmt.Errorf("%w: channel %d has %d thresholds, need %d", ErrInvalidSpec, ch, len(row), n)
		}
		for i := 1; i < n; i++ {
			if row[i] < row[i-1] {
				return nil, fmt.Errorf("%w: channel %d thresholds are not sorted", ErrInvalidSpec, ch)
			}
		}
		copy(table[ch*stride:], row)
	}
	return table, nil
}

// Build validates the description and packs it into a layer.
func (s *Spec) Build() (*qlf.Layer, error) {
	p, err := s.Params()
	if err != nil {
		return nil, err
	}
	vals, err := s.weightValues(p)
	if err != nil {
		return nil, err
	}
	packed := make([]byte, p.WeightLen())
	if err := qconv.Pack(packed, vals, p.Variant.Weight); err != nil {
		return nil, fmt.Errorf("%w: weights: %v", ErrInvalidSpec, err)
	}
	l := &qlf.Layer{Name: s.Name, Params: p, Weights: packed}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Spec) weightValues(p qconv.Params) ([]uint8, error) {
	n := p.Geometry.OutCh * p.Geometry.ColLen()
	switch {
	case s.Weights != nil && s.WeightFill != nil:
		return nil, fmt.Errorf("%w: weights and weight_fill are exclusive", ErrInvalidSpec)
	case s.Weights != nil:
		if len(s.Weights) != n {
			return nil, fmt.Errorf("%w: %d weights, need %d", ErrInvalidSpec, len(s.Weights), n)
		}
		vals := make([]uint8, n)
		for i, w := range s.Weights {
			if w < 0 || w > int(p.Variant.Weight.MaxLevel()) {
				return nil, fmt.Errorf("%w: weight %d = %d outside %s range", ErrInvalidSpec, i, w, p.Variant.Weight)
			}
			vals[i] = uint8(w)
		}
		return vals, nil
	case s.WeightFill != nil:
		f := *s.WeightFill
		if f.Max == 0 {
			f.Max = uint8(p.Variant.Weight.MaxLevel())
		}
		if f.Min > f.Max || int32(f.Max) > p.Variant.Weight.MaxLevel() {
			return nil, fmt.Errorf("%w: weight_fill range [%d, %d] invalid for %s", ErrInvalidSpec, f.Min, f.Max, p.Variant.Weight)
		}
		r := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
		span := int(f.Max-f.Min) + 1
		vals := make([]uint8, n)
		for i := range vals {
			vals[i] = f.Min + uint8(r.IntN(span))
		}
		return vals, nil
	}
	return nil, fmt.Errorf("%w: weights or weight_fill required", ErrInvalidSpec)
}
