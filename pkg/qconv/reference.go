package qconv

import "fmt"

// Reference computes the raw accumulators of a convolution directly from
// the packed tensors, without im2col, interleaving or blocking. It is slow
// and exists to check Convolve and ConvolveRaw.
func Reference(acc []int32, in, wt []byte, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	g := p.Geometry
	if len(in) < p.InputLen() || len(wt) < p.WeightLen() {
		return fmt.Errorf("%w: input or weights too short", ErrSizeMismatch)
	}
	d := g.OutDim()
	if len(acc) < d*d*g.OutCh {
		return fmt.Errorf("%w: accumulator buffer has %d entries, need %d", ErrSizeMismatch, len(acc), d*d*g.OutCh)
	}

	zIn := int32(p.InZero)
	for oy := 0; oy < d; oy++ {
		for ox := 0; ox < d; ox++ {
			base := (oy*d + ox) * g.OutCh
			for co := 0; co < g.OutCh; co++ {
				sum := p.Bias[co]
				zW := int32(p.weightZero(co))
				for ky := 0; ky < g.Kernel; ky++ {
					y := oy*g.Stride - g.Pad.Top + ky
					if y < 0 || y >= g.InDim {
						continue
					}
					for kx := 0; kx < g.Kernel; kx++ {
						x := ox*g.Stride - g.Pad.Left + kx
						if x < 0 || x >= g.InDim {
							continue
						}
						for ci := 0; ci < g.InCh; ci++ {
							a := int32(element(in, (y*g.InDim+x)*g.InCh+ci, p.Variant.In)) - zIn
							wi := ((co*g.Kernel+ky)*g.Kernel+kx)*g.InCh + ci
							w := int32(element(wt, wi, p.Variant.Weight)) - zW
							sum += a * w
						}
					}
				}
				acc[base+co] = sum
			}
		}
	}
	return nil
}

// Requantize maps raw accumulators (as produced by ConvolveRaw or
// Reference) to a packed output using p's folding policy.
func Requantize(out []byte, acc []int32, p Params) error {
	rq, err := newRequantizer(p)
	if err != nil {
		return err
	}
	g := p.Geometry
	if g.OutCh <= 0 || len(acc)%g.OutCh != 0 {
		return fmt.Errorf("%w: %d accumulators for %d channels", ErrSizeMismatch, len(acc), g.OutCh)
	}
	if need := PackedLen(len(acc), p.Variant.Out); len(out) < need {
		return fmt.Errorf("%w: output has %d bytes, need %d", ErrSizeMismatch, len(out), need)
	}
	w := bitWriter{dst: out, bits: p.Variant.Out}
	for i, v := range acc {
		w.put(rq.level(i%g.OutCh, v))
	}
	w.flush()
	return nil
}
