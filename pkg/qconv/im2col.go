package qconv

// window gathers receptive fields of the packed input into widened im2col
// columns. Activation zero points are removed while widening, so padded
// positions hold 0.
type window struct {
	in     []byte
	bits   Bits
	zero   uint8
	dim    int
	ch     int
	k      int
	stride int
	pad    Padding
	rowLen int
	outDim int

	// Output rows in [yLo, yHi] and columns in [xLo, xHi] have windows that
	// lie entirely inside the input.
	yLo, yHi int
	xLo, xHi int
}

func newWindow(in []byte, p Params) *window {
	g := p.Geometry
	w := &window{
		in:     in,
		bits:   p.Variant.In,
		zero:   p.InZero,
		dim:    g.InDim,
		ch:     g.InCh,
		k:      g.Kernel,
		stride: g.Stride,
		pad:    g.Pad,
		rowLen: g.InCh * g.Kernel,
		outDim: g.OutDim(),
	}
	w.yLo, w.yHi = interiorRange(w.outDim, g.InDim, g.Kernel, g.Stride, g.Pad.Top)
	w.xLo, w.xHi = interiorRange(w.outDim, g.InDim, g.Kernel, g.Stride, g.Pad.Left)
	return w
}

// interiorRange returns the inclusive range of output indices o for which
// [o*stride-pad, o*stride-pad+k) lies inside [0, dim). lo is clamped to
// outDim, so an empty range has hi < lo.
func interiorRange(outDim, dim, k, stride, pad int) (lo, hi int) {
	lo = (pad + stride - 1) / stride
	span := dim - k + pad
	if span < 0 {
		hi = -1
	} else {
		hi = span / stride
	}
	return min(lo, outDim), min(hi, outDim-1)
}

// src returns the packed input starting at pixel (y, x).
func (w *window) src(y, x int) []byte {
	return w.in[(y*w.dim+x)*w.ch/w.bits.PerByte():]
}

// interior fills dst for a window known to be in bounds: one contiguous
// run of ch*k elements per kernel row.
func (w *window) interior(dst []int16, oy, ox int) {
	y0 := oy*w.stride - w.pad.Top
	x0 := ox*w.stride - w.pad.Left
	for ky := 0; ky < w.k; ky++ {
		WidenReordered(dst[ky*w.rowLen:], w.src(y0+ky, x0), w.rowLen, w.bits, w.zero)
	}
}

// edge fills dst for a window that may overlap the padding.
func (w *window) edge(dst []int16, oy, ox int) {
	y0 := oy*w.stride - w.pad.Top
	x0 := ox*w.stride - w.pad.Left
	w.gather(dst, y0, x0,
		max(0, -y0), min(w.k, w.dim-y0),
		max(0, -x0), min(w.k, w.dim-x0))
}

// gather copies the kernel rows [kyLo, kyHi) and columns [kxLo, kxHi) of
// the window anchored at (y0, x0) and zero-fills everything else.
func (w *window) gather(dst []int16, y0, x0, kyLo, kyHi, kxLo, kxHi int) {
	for ky := 0; ky < w.k; ky++ {
		row := dst[ky*w.rowLen : (ky+1)*w.rowLen]
		if ky < kyLo || ky >= kyHi || kxLo >= kxHi {
			clear(row)
			continue
		}
		lo, hi := kxLo*w.ch, kxHi*w.ch
		clear(row[:lo])
		WidenReordered(row[lo:], w.src(y0+ky, x0+kxLo), hi-lo, w.bits, w.zero)
		clear(row[hi:])
	}
}
