package qconv

// kernel multiplies packed weight rows against widened im2col columns.
type kernel struct {
	wt     []byte
	bits   Bits
	outCh  int
	colLen int
	bias   []int32
	zero   []int16
}

func newKernel(wt []byte, p Params) *kernel {
	g := p.Geometry
	zero := make([]int16, g.OutCh)
	for ch := range zero {
		zero[ch] = p.weightZero(ch)
	}
	return &kernel{
		wt:     wt,
		bits:   p.Variant.Weight,
		outCh:  g.OutCh,
		colLen: g.ColLen(),
		bias:   p.Bias,
		zero:   zero,
	}
}

// run consumes two buffered columns, two output channels per step, and
// emits column 0 results to a and column 1 results to b. outCh must be even.
// Convolve always passes colLen%4 == 0; the scalar tail serves direct
// kernel use with other column lengths.
func (k *kernel) run(cols []int16, a, b emitter) {
	n := k.colLen
	colA := cols[:n:n]
	colB := cols[n : 2*n : 2*n]
	full := n - n%groupLen

	for ch := 0; ch < k.outCh; ch += 2 {
		rowA := ch * n
		rowB := rowA + n
		zA, zB := Splat(k.zero[ch]), Splat(k.zero[ch+1])

		sum1, sum2 := k.bias[ch], k.bias[ch]
		sum3, sum4 := k.bias[ch+1], k.bias[ch+1]

		for i := 0; i < full; i += groupLen {
			wA1, wA2 := readChunk(k.wt, rowA+i, k.bits)
			wB1, wB2 := readChunk(k.wt, rowB+i, k.bits)
			wA1, wA2 = wA1.Sub(zA), wA2.Sub(zA)
			wB1, wB2 = wB1.Sub(zB), wB2.Sub(zB)

			x, y := load2(colA, i), load2(colB, i)
			sum1 = wA1.MulAdd(x, sum1)
			sum2 = wA1.MulAdd(y, sum2)
			sum3 = wB1.MulAdd(x, sum3)
			sum4 = wB1.MulAdd(y, sum4)

			x, y = load2(colA, i+2), load2(colB, i+2)
			sum1 = wA2.MulAdd(x, sum1)
			sum2 = wA2.MulAdd(y, sum2)
			sum3 = wB2.MulAdd(x, sum3)
			sum4 = wB2.MulAdd(y, sum4)
		}

		for i := full; i < n; i++ {
			wA := int32(element(k.wt, rowA+i, k.bits)) - int32(k.zero[ch])
			wB := int32(element(k.wt, rowB+i, k.bits)) - int32(k.zero[ch+1])
			x, y := int32(colA[i]), int32(colB[i])
			sum1 += wA * x
			sum2 += wA * y
			sum3 += wB * x
			sum4 += wB * y
		}

		a.emit(ch, sum1)
		a.emit(ch+1, sum3)
		b.emit(ch, sum2)
		b.emit(ch+1, sum4)
	}
}

// runSingle computes one column one channel at a time.
func (k *kernel) runSingle(col []int16, e emitter) {
	n := k.colLen
	for ch := 0; ch < k.outCh; ch++ {
		sum := k.bias[ch]
		row := ch * n
		z := int32(k.zero[ch])
		for p := 0; p < n; p++ {
			w := int32(element(k.wt, row+reorderIndex(p, n), k.bits)) - z
			sum += w * int32(col[p])
		}
		e.emit(ch, sum)
	}
}
