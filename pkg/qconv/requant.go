package qconv

import (
	"fmt"
	"sort"
)

// requantizer maps a raw accumulator of output channel ch to an output level
// in [0, 2^bits-1].
type requantizer interface {
	level(ch int, acc int32) uint8
}

// Saturate clamps v into [0, b.MaxLevel()].
func Saturate(v int32, b Bits) uint8 {
	if v < 0 {
		return 0
	}
	if hi := b.MaxLevel(); v > hi {
		return uint8(hi)
	}
	return uint8(v)
}

// ThresholdLevel returns the number of boundaries in thr that acc strictly
// exceeds. thr must be sorted in non-decreasing order.
func ThresholdLevel(acc int32, thr []int16) int32 {
	return int32(sort.Search(len(thr), func(i int) bool {
		return int32(thr[i]) >= acc
	}))
}

// SplitShift turns a signed shift into a pre-shift applied before the
// high multiply and a post-shift applied after it.
func SplitShift(n int8) (left, right uint) {
	if n < 0 {
		return uint(-int(n)), 0
	}
	return 0, uint(n)
}

// MulHigh returns the upper 32 bits of the 64-bit product a*b.
func MulHigh(a, b int32) int32 {
	return int32((int64(a) * int64(b)) >> 32)
}

// ScaleShift applies the multiplier/shift fold without saturation.
func ScaleShift(acc, m int32, n int8, zeroOut uint8) int32 {
	left, right := SplitShift(n)
	return MulHigh(acc<<left, m)>>right + int32(zeroOut)
}

type thresholdFold struct {
	table  []int16
	stride int
	bits   Bits
}

func (f thresholdFold) level(ch int, acc int32) uint8 {
	base := ch * f.stride
	return Saturate(ThresholdLevel(acc, f.table[base:base+f.stride-1]), f.bits)
}

type scaleShiftFold struct {
	m       []int32
	n       []int8
	zeroOut uint8
	bits    Bits
}

func (f scaleShiftFold) level(ch int, acc int32) uint8 {
	m, n := f.m[0], f.n[0]
	if len(f.m) > 1 {
		m = f.m[ch]
	}
	if len(f.n) > 1 {
		n = f.n[ch]
	}
	return Saturate(ScaleShift(acc, m, n, f.zeroOut), f.bits)
}

type clampFold struct {
	bits Bits
}

func (f clampFold) level(_ int, acc int32) uint8 {
	return Saturate(acc, f.bits)
}

func newRequantizer(p Params) (requantizer, error) {
	out := p.Variant.Out
	ch := p.Geometry.OutCh
	q := p.Quant
	switch p.Variant.Fold {
	case FoldThreshold:
		stride := out.Levels()
		if len(q.Thresholds) < ch*stride {
			return nil, fmt.Errorf("%w: threshold table has %d entries, need %d", ErrMissingQuantization, len(q.Thresholds), ch*stride)
		}
		return thresholdFold{table: q.Thresholds, stride: stride, bits: out}, nil
	case FoldScaleShift:
		if !perChannel(len(q.Multipliers), ch) || !perChannel(len(q.Shifts), ch) {
			return nil, fmt.Errorf("%w: need 1 or %d multipliers and shifts, have %d and %d",
				ErrMissingQuantization, ch, len(q.Multipliers), len(q.Shifts))
		}
		return scaleShiftFold{m: q.Multipliers, n: q.Shifts, zeroOut: q.OutZero, bits: out}, nil
	case FoldClamp:
		return clampFold{bits: out}, nil
	}
	return nil, fmt.Errorf("%w: folding %s", ErrMissingQuantization, p.Variant.Fold)
}

func perChannel(n, ch int) bool {
	return n == 1 || n == ch
}
