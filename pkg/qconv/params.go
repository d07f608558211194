package qconv

import "fmt"

// Folding selects how accumulators are mapped to output levels.
type Folding uint8

const (
	// FoldThreshold classifies the accumulator against a per-channel table
	// of monotone boundaries.
	FoldThreshold Folding = iota + 1
	// FoldScaleShift applies a per-channel fixed-point multiplier and shift.
	FoldScaleShift
	// FoldClamp saturates the raw accumulator into the output range.
	FoldClamp
)

func (f Folding) String() string {
	switch f {
	case FoldThreshold:
		return "thr"
	case FoldScaleShift:
		return "icn"
	case FoldClamp:
		return "clamp"
	default:
		return fmt.Sprintf("folding(%d)", uint8(f))
	}
}

// ParseFolding accepts the names printed by Folding.String.
func ParseFolding(s string) (Folding, error) {
	switch s {
	case "thr", "threshold":
		return FoldThreshold, nil
	case "icn", "scale_shift", "scaleshift":
		return FoldScaleShift, nil
	case "clamp":
		return FoldClamp, nil
	}
	return 0, fmt.Errorf("qconv: unknown folding %q", s)
}

// Variant tags one precision combination: input, weight and output widths
// plus the folding policy.
type Variant struct {
	In     Bits
	Weight Bits
	Out    Bits
	Fold   Folding
}

func (v Variant) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", v.In, v.Out, v.Weight, v.Fold)
}

// InMultiple is the required divisor of the input channel count.
func (v Variant) InMultiple() int {
	return max(groupLen, v.In.PerByte(), v.Weight.PerByte())
}

// OutMultiple is the required divisor of the output channel count.
func (v Variant) OutMultiple() int {
	return max(2, v.Out.PerByte())
}

// Padding holds the four independent border sizes.
type Padding struct {
	Top, Bottom, Left, Right int
}

// Geometry describes a square input, a square kernel and the output they
// produce.
type Geometry struct {
	InDim  int
	InCh   int
	OutCh  int
	Kernel int
	Stride int
	Pad    Padding
}

// OutDim is the spatial size of the output.
func (g Geometry) OutDim() int {
	if g.Stride <= 0 {
		return 0
	}
	span := g.InDim + g.Pad.Top + g.Pad.Bottom - g.Kernel
	if span < 0 {
		return 0
	}
	return span/g.Stride + 1
}

// ColLen is the number of elements in one im2col column.
func (g Geometry) ColLen() int {
	return g.InCh * g.Kernel * g.Kernel
}

// Quant carries the folding descriptors. Only the fields used by the
// selected Folding are read.
type Quant struct {
	// Thresholds holds 2^out entries per output channel; the first
	// 2^out-1 of each block are the boundaries.
	Thresholds []int16
	// Multipliers and Shifts are per channel, or a single shared value.
	Multipliers []int32
	Shifts      []int8
	OutZero     uint8
}

// Params is the full description of one convolution call.
type Params struct {
	Variant  Variant
	Geometry Geometry

	Bias []int32

	InZero uint8
	// WeightZero is either one shared offset or one per output channel.
	WeightZero []uint8

	Quant Quant
}

// InputLen is the packed input size in bytes.
func (p Params) InputLen() int {
	g := p.Geometry
	return PackedLen(g.InDim*g.InDim*g.InCh, p.Variant.In)
}

// WeightLen is the packed weight size in bytes.
func (p Params) WeightLen() int {
	return PackedLen(p.Geometry.OutCh*p.Geometry.ColLen(), p.Variant.Weight)
}

// OutputLen is the packed output size in bytes.
func (p Params) OutputLen() int {
	g := p.Geometry
	d := g.OutDim()
	return PackedLen(d*d*g.OutCh, p.Variant.Out)
}

// Positions is the number of output pixels.
func (p Params) Positions() int {
	d := p.Geometry.OutDim()
	return d * d
}

func (p Params) weightZero(ch int) int16 {
	if len(p.WeightZero) == 1 {
		return int16(p.WeightZero[0])
	}
	return int16(p.WeightZero[ch])
}

// Scratch holds the caller-owned working buffers of one call. A Scratch
// must not be shared by concurrent calls.
type Scratch struct {
	// Col holds two im2col columns.
	Col []int16
	// Aux is reserved.
	Aux []byte
}

// ScratchLen is the number of int16 values Scratch.Col must hold.
func ScratchLen(g Geometry) int {
	return 2 * g.ColLen()
}

// NewScratch allocates a Scratch sized for g.
func NewScratch(g Geometry) Scratch {
	return Scratch{Col: make([]int16, ScratchLen(g))}
}
