package qlf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mixq/pkg/qconv"
)

const layerInfoVersion = 1

// Layer is one quantized convolution layer with its packed weights.
type Layer struct {
	Name    string
	Params  qconv.Params
	Weights []byte
}

// LayerInfo is the JSON payload of SectionLayerInfo.
type LayerInfo struct {
	Name       string `json:"name"`
	InBits     int    `json:"in_bits"`
	WeightBits int    `json:"weight_bits"`
	OutBits    int    `json:"out_bits"`
	Folding    string `json:"folding"`

	InDim   int    `json:"in_dim"`
	InCh    int    `json:"in_ch"`
	OutCh   int    `json:"out_ch"`
	Kernel  int    `json:"kernel"`
	Stride  int    `json:"stride"`
	Padding [4]int `json:"padding"` // top, bottom, left, right

	InZero  uint8 `json:"in_zero"`
	OutZero uint8 `json:"out_zero"`
}

// Info describes l without its tensors.
func (l *Layer) Info() LayerInfo {
	v, g := l.Params.Variant, l.Params.Geometry
	return LayerInfo{
		Name:       l.Name,
		InBits:     int(v.In),
		WeightBits: int(v.Weight),
		OutBits:    int(v.Out),
		Folding:    v.Fold.String(),
		InDim:      g.InDim,
		InCh:       g.InCh,
		OutCh:      g.OutCh,
		Kernel:     g.Kernel,
		Stride:     g.Stride,
		Padding:    [4]int{g.Pad.Top, g.Pad.Bottom, g.Pad.Left, g.Pad.Right},
		InZero:     l.Params.InZero,
		OutZero:    l.Params.Quant.OutZero,
	}
}

// Params rebuilds the convolution parameters described by info, without
// the per-channel tables.
func (info LayerInfo) Params() (qconv.Params, error) {
	var p qconv.Params
	in, err := qconv.ParseBits(info.InBits)
	if err != nil {
		return p, fmt.Errorf("input: %w", err)
	}
	wt, err := qconv.ParseBits(info.WeightBits)
	if err != nil {
		return p, fmt.Errorf("weights: %w", err)
	}
	out, err := qconv.ParseBits(info.OutBits)
	if err != nil {
		return p, fmt.Errorf("output: %w", err)
	}
	fold, err := qconv.ParseFolding(info.Folding)
	if err != nil {
		return p, err
	}
	p.Variant = qconv.Variant{In: in, Weight: wt, Out: out, Fold: fold}
	p.Geometry = qconv.Geometry{
		InDim:  info.InDim,
		InCh:   info.InCh,
		OutCh:  info.OutCh,
		Kernel: info.Kernel,
		Stride: info.Stride,
		Pad: qconv.Padding{
			Top:    info.Padding[0],
			Bottom: info.Padding[1],
			Left:   info.Padding[2],
			Right:  info.Padding[3],
		},
	}
	p.InZero = info.InZero
	p.Quant.OutZero = info.OutZero
	return p, nil
}

// Validate checks the parameters and that the weights cover the geometry.
func (l *Layer) Validate() error {
	if err := l.Params.Validate(); err != nil {
		return err
	}
	if need := l.Params.WeightLen(); len(l.Weights) != need {
		return fmt.Errorf("%w: layer %q has %d weight bytes, need %d", qconv.ErrSizeMismatch, l.Name, len(l.Weights), need)
	}
	return nil
}

// WriteLayer validates l and stores it at path.
func WriteLayer(path string, l *Layer) (err error) {
	if err := l.Validate(); err != nil {
		return err
	}
	info, err := json.Marshal(l.Info())
	if err != nil {
		return fmt.Errorf("qlf: encode layer info: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := NewWriter(f)
	if err != nil {
		return err
	}
	q := l.Params.Quant
	sections := []struct {
		typ  SectionType
		data []byte
	}{
		{SectionLayerInfo, info},
		{SectionWeights, l.Weights},
		{SectionBias, putInt32s(l.Params.Bias)},
		{SectionWeightZero, l.Params.WeightZero},
		{SectionThresholds, putInt16s(q.Thresholds)},
		{SectionMultipliers, putInt32s(q.Multipliers)},
		{SectionShifts, putInt8s(q.Shifts)},
	}
	for _, s := range sections {
		if len(s.data) == 0 && s.typ >= SectionThresholds {
			continue
		}
		if err := w.WriteSection(s.typ, layerInfoVersion, s.data); err != nil {
			return fmt.Errorf("qlf: write %s: %w", s.typ, err)
		}
	}
	return w.Finalise()
}

// ReadLayer loads the layer stored at path. The returned layer owns its
// memory; the file is closed before returning.
func ReadLayer(path string) (*Layer, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.Layer()
}

// Layer decodes the container into a Layer, copying every section out of
// the file data.
func (f *File) Layer() (*Layer, error) {
	raw, err := f.required(SectionLayerInfo)
	if err != nil {
		return nil, err
	}
	var info LayerInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: layer info: %v", ErrCorruptFile, err)
	}
	p, err := info.Params()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	wts, err := f.required(SectionWeights)
	if err != nil {
		return nil, err
	}
	bias, err := f.required(SectionBias)
	if err != nil {
		return nil, err
	}
	wz, err := f.required(SectionWeightZero)
	if err != nil {
		return nil, err
	}
	if len(bias)%4 != 0 {
		return nil, fmt.Errorf("%w: bias section has %d bytes", ErrCorruptFile, len(bias))
	}
	p.Bias = int32s(bias)
	p.WeightZero = append([]uint8(nil), wz...)

	if s := f.Section(SectionThresholds); s != nil {
		data := f.SectionData(s)
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: threshold section has %d bytes", ErrCorruptFile, len(data))
		}
		p.Quant.Thresholds = int16s(data)
	}
	if s := f.Section(SectionMultipliers); s != nil {
		data := f.SectionData(s)
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%w: multiplier section has %d bytes", ErrCorruptFile, len(data))
		}
		p.Quant.Multipliers = int32s(data)
	}
	if s := f.Section(SectionShifts); s != nil {
		for _, b := range f.SectionData(s) {
			p.Quant.Shifts = append(p.Quant.Shifts, int8(b))
		}
	}

	l := &Layer{
		Name:    info.Name,
		Params:  p,
		Weights: append([]byte(nil), wts...),
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFile, err)
	}
	return l, nil
}

func (f *File) required(t SectionType) ([]byte, error) {
	s := f.Section(t)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSection, t)
	}
	return f.SectionData(s), nil
}

func putInt32s(v []int32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(x))
	}
	return out
}

func putInt16s(v []int16) []byte {
	out := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(x))
	}
	return out
}

func putInt8s(v []int8) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		out[i] = byte(x)
	}
	return out
}

func int32s(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func int16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// IsFormatError reports whether err describes a malformed container rather
// than an I/O failure.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrInvalidMagic) || errors.Is(err, ErrUnsupportedMajor) ||
		errors.Is(err, ErrCorruptFile) || errors.Is(err, ErrMissingSection)
}
