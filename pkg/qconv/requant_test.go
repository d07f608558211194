package qconv

import (
	"errors"
	"math"
	"testing"
)

func TestThresholdLevelMonotonic(t *testing.T) {
	t.Parallel()

	thr := []int16{-40, -10, -10, 0, 3, 3, 3, 50, 51, 90, 200, 200, 300, 1000, 2000}
	prev := int32(-1)
	for acc := int32(-100); acc <= 2100; acc++ {
		lvl := ThresholdLevel(acc, thr)
		if lvl < prev {
			t.Fatalf("level decreased at acc=%d: %d after %d", acc, lvl, prev)
		}
		if lvl < 0 || lvl > int32(len(thr)) {
			t.Fatalf("level %d out of range at acc=%d", lvl, acc)
		}
		prev = lvl
	}
	if prev != int32(len(thr)) {
		t.Fatalf("top level: got %d want %d", prev, len(thr))
	}
}

func TestThresholdLevelBoundaries(t *testing.T) {
	t.Parallel()

	thr := []int16{5, 15, 25}
	tests := []struct {
		acc  int32
		want int32
	}{
		{math.MinInt32, 0},
		{5, 0},
		{6, 1},
		{15, 1},
		{16, 2},
		{25, 2},
		{26, 3},
		{math.MaxInt32, 3},
	}
	for _, tt := range tests {
		if got := ThresholdLevel(tt.acc, thr); got != tt.want {
			t.Fatalf("acc %d: got %d want %d", tt.acc, got, tt.want)
		}
	}
}

func TestScaleShiftAnchor(t *testing.T) {
	t.Parallel()

	const m = 1 << 30
	for _, acc := range []int32{0, 1, 3, 4, 7, 100, 1023, -1, -4, -5, -1000, math.MaxInt32, math.MinInt32} {
		if got, want := ScaleShift(acc, m, 0, 0), acc>>2; got != want {
			t.Fatalf("acc %d: got %d want %d", acc, got, want)
		}
	}
}

func TestSplitShift(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n           int8
		left, right uint
	}{
		{0, 0, 0},
		{5, 0, 5},
		{-3, 3, 0},
		{-128, 128, 0},
		{127, 0, 127},
	}
	for _, tt := range tests {
		l, r := SplitShift(tt.n)
		if l != tt.left || r != tt.right {
			t.Fatalf("SplitShift(%d) = (%d, %d), want (%d, %d)", tt.n, l, r, tt.left, tt.right)
		}
	}
}

func TestScaleShiftNegativeShiftPreShifts(t *testing.T) {
	t.Parallel()

	// n = -2 shifts left before the high multiply: (12 << 2) * 2^30 >> 32 = 12.
	if got := ScaleShift(12, 1<<30, -2, 0); got != 12 {
		t.Fatalf("got %d want 12", got)
	}
	// (48 * (2^31-1)) >> 32 = 23, plus the output zero point.
	if got := ScaleShift(12, math.MaxInt32, -2, 1); got != 24 {
		t.Fatalf("got %d want 24", got)
	}
	// Positive shift divides after the multiply.
	if got := ScaleShift(1000, 1<<30, 3, 2); got != (1000>>2)>>3+2 {
		t.Fatalf("got %d", got)
	}
}

func TestMulHigh(t *testing.T) {
	t.Parallel()

	if got := MulHigh(1<<16, 1<<16); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
	if got := MulHigh(-1, 1); got != -1 {
		t.Fatalf("high word of -1 should be -1, got %d", got)
	}
	if got := MulHigh(math.MaxInt32, math.MaxInt32); got != 0x3FFFFFFF {
		t.Fatalf("got %#x", got)
	}
}

func TestSaturate(t *testing.T) {
	t.Parallel()

	if Saturate(-5, Bits2) != 0 || Saturate(2, Bits2) != 2 || Saturate(9, Bits2) != 3 {
		t.Fatalf("2-bit saturation wrong")
	}
	if Saturate(300, Bits8) != 255 || Saturate(16, Bits4) != 15 {
		t.Fatalf("saturation wrong")
	}
}

func TestNewRequantizerRequiresDescriptor(t *testing.T) {
	t.Parallel()

	p := Params{
		Variant:  Variant{In: Bits8, Weight: Bits8, Out: Bits8, Fold: FoldThreshold},
		Geometry: Geometry{InDim: 1, InCh: 4, OutCh: 2, Kernel: 1, Stride: 1},
	}
	if _, err := newRequantizer(p); !errors.Is(err, ErrMissingQuantization) {
		t.Fatalf("threshold without table: got %v", err)
	}

	p.Variant.Fold = FoldScaleShift
	p.Quant.Multipliers = []int32{1, 2, 3}
	p.Quant.Shifts = []int8{0}
	if _, err := newRequantizer(p); !errors.Is(err, ErrMissingQuantization) {
		t.Fatalf("scale/shift with 3 multipliers for 2 channels: got %v", err)
	}

	p.Variant.Fold = FoldClamp
	rq, err := newRequantizer(p)
	if err != nil {
		t.Fatalf("clamp: %v", err)
	}
	if rq.level(0, 300) != 255 || rq.level(1, -2) != 0 || rq.level(0, 77) != 77 {
		t.Fatalf("clamp levels wrong")
	}
}

func TestThresholdFoldUsesChannelBlock(t *testing.T) {
	t.Parallel()

	// Two channels at 2 bits: 4 entries per block, the last one unused.
	f := thresholdFold{
		table:  []int16{0, 10, 20, -999, 100, 200, 300, -999},
		stride: 4,
		bits:   Bits2,
	}
	if got := f.level(0, 15); got != 2 {
		t.Fatalf("channel 0: got %d want 2", got)
	}
	if got := f.level(1, 15); got != 0 {
		t.Fatalf("channel 1: got %d want 0", got)
	}
	if got := f.level(1, 1000); got != 3 {
		t.Fatalf("channel 1 top: got %d want 3", got)
	}
}
