package qconv

import "fmt"

// Convolve runs one quantized convolution and writes the packed output
// (OutDim x OutDim x OutCh at Variant.Out bits) into out.
//
// All size checks happen before any buffer is touched; a failed check
// returns an error wrapping ErrSizeMismatch.
func Convolve(out, in, wt []byte, p Params, s Scratch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkBuffers(in, wt, s, p); err != nil {
		return err
	}
	if len(out) < p.OutputLen() {
		return fmt.Errorf("%w: output has %d bytes, need %d", ErrSizeMismatch, len(out), p.OutputLen())
	}
	rq, err := newRequantizer(p)
	if err != nil {
		return err
	}
	sweep(in, wt, p, s, newPackedSink(out, rq, p.Geometry.OutCh, p.Variant.Out))
	return nil
}

// ConvolveRaw runs the same pipeline as Convolve but stores the int32
// accumulators (bias included, before re-quantization) in acc, laid out as
// OutDim x OutDim x OutCh.
func ConvolveRaw(acc []int32, in, wt []byte, p Params, s Scratch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkBuffers(in, wt, s, p); err != nil {
		return err
	}
	if need := p.Positions() * p.Geometry.OutCh; len(acc) < need {
		return fmt.Errorf("%w: accumulator buffer has %d entries, need %d", ErrSizeMismatch, len(acc), need)
	}
	sweep(in, wt, p, s, newRawSink(acc, p.Geometry.OutCh))
	return nil
}

// Validate checks the variant and the channel packing constraints.
func (p Params) Validate() error {
	v, g := p.Variant, p.Geometry
	for _, b := range []Bits{v.In, v.Weight, v.Out} {
		if !b.Valid() {
			return fmt.Errorf("%w: %d", ErrUnsupportedBits, b)
		}
	}
	if g.InCh <= 0 || g.InCh%v.InMultiple() != 0 {
		return fmt.Errorf("%w: input channels %d not a multiple of %d", ErrSizeMismatch, g.InCh, v.InMultiple())
	}
	if g.OutCh <= 0 || g.OutCh%v.OutMultiple() != 0 {
		return fmt.Errorf("%w: output channels %d not a multiple of %d", ErrSizeMismatch, g.OutCh, v.OutMultiple())
	}
	if g.InDim <= 0 || g.Kernel <= 0 || g.OutDim() <= 0 {
		return fmt.Errorf("%w: input %d, kernel %d, stride %d gives no output", ErrSizeMismatch, g.InDim, g.Kernel, g.Stride)
	}
	if len(p.Bias) < g.OutCh {
		return fmt.Errorf("%w: %d biases for %d output channels", ErrSizeMismatch, len(p.Bias), g.OutCh)
	}
	if !perChannel(len(p.WeightZero), g.OutCh) {
		return fmt.Errorf("%w: %d weight zero points for %d output channels", ErrSizeMismatch, len(p.WeightZero), g.OutCh)
	}
	return nil
}

func checkBuffers(in, wt []byte, s Scratch, p Params) error {
	if len(in) < p.InputLen() {
		return fmt.Errorf("%w: input has %d bytes, need %d", ErrSizeMismatch, len(in), p.InputLen())
	}
	if len(wt) < p.WeightLen() {
		return fmt.Errorf("%w: weights have %d bytes, need %d", ErrSizeMismatch, len(wt), p.WeightLen())
	}
	if need := ScratchLen(p.Geometry); len(s.Col) < need {
		return fmt.Errorf("%w: scratch has %d entries, need %d", ErrSizeMismatch, len(s.Col), need)
	}
	return nil
}

// sweep walks the output in row-major order, band by band, and feeds the
// kernel every time two columns are buffered.
func sweep(in, wt []byte, p Params, s Scratch, out sink) {
	w := newWindow(in, p)
	k := newKernel(wt, p)
	c := &columns{buf: s.Col, n: k.colLen, k: k, out: out}
	d := w.outDim

	oy := 0
	for ; oy < w.yLo; oy++ {
		for ox := 0; ox < d; ox++ {
			w.edge(c.next(), oy, ox)
			c.done()
		}
	}
	for ; oy <= w.yHi; oy++ {
		ox := 0
		for ; ox < w.xLo; ox++ {
			w.edge(c.next(), oy, ox)
			c.done()
		}
		for ; ox <= w.xHi; ox++ {
			w.interior(c.next(), oy, ox)
			c.done()
		}
		for ; ox < d; ox++ {
			w.edge(c.next(), oy, ox)
			c.done()
		}
	}
	for ; oy < d; oy++ {
		for ox := 0; ox < d; ox++ {
			w.edge(c.next(), oy, ox)
			c.done()
		}
	}
	c.flush()
}

// columns tracks the double-column scratch buffer.
type columns struct {
	buf    []int16
	n      int
	filled int
	pos    int
	k      *kernel
	out    sink
}

// next returns the slot for the column being gathered.
func (c *columns) next() []int16 {
	off := c.filled * c.n
	return c.buf[off : off+c.n]
}

func (c *columns) done() {
	c.filled++
	if c.filled < 2 {
		return
	}
	a, b := c.out.pair(c.pos)
	c.k.run(c.buf, a, b)
	c.pos += 2
	c.filled = 0
}

// flush handles a single leftover column.
func (c *columns) flush() {
	if c.filled == 0 {
		return
	}
	a, _ := c.out.pair(c.pos)
	c.k.runSingle(c.buf[:c.n], a)
	c.pos++
	c.filled = 0
}
