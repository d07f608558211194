package qconv

// bitWriter packs output levels channel by channel, advancing one byte once
// every slot of the current byte is filled. The first level of a byte goes
// to the least-significant slot.
type bitWriter struct {
	dst  []byte
	pos  int
	acc  byte
	slot int
	bits Bits
}

func (w *bitWriter) put(v uint8) {
	w.acc |= v << (uint(w.slot) * uint(w.bits))
	w.slot++
	if w.slot == w.bits.PerByte() {
		w.dst[w.pos] = w.acc
		w.pos++
		w.acc = 0
		w.slot = 0
	}
}

// flush writes a partially filled byte.
func (w *bitWriter) flush() {
	if w.slot != 0 {
		w.dst[w.pos] = w.acc
		w.pos++
		w.acc = 0
		w.slot = 0
	}
}

// emitter receives accumulators for one output pixel in ascending channel
// order.
type emitter interface {
	emit(ch int, acc int32)
}

// packedEmitter re-quantizes and packs.
type packedEmitter struct {
	rq requantizer
	w  bitWriter
}

func (e *packedEmitter) emit(ch int, acc int32) {
	e.w.put(e.rq.level(ch, acc))
}

// at positions the emitter at the first byte of output pixel pos.
func (e *packedEmitter) at(pos, outCh int) {
	e.w.pos = pos * outCh / e.w.bits.PerByte()
	e.w.acc = 0
	e.w.slot = 0
}

// rawEmitter stores accumulators untouched.
type rawEmitter struct {
	dst  []int32
	base int
}

func (e *rawEmitter) emit(ch int, acc int32) {
	e.dst[e.base+ch] = acc
}

func (e *rawEmitter) at(pos, outCh int) {
	e.base = pos * outCh
}

// sink hands out the emitters for output pixels pos and pos+1.
type sink interface {
	pair(pos int) (emitter, emitter)
}

type packedSink struct {
	outCh int
	a, b  packedEmitter
}

func newPackedSink(dst []byte, rq requantizer, outCh int, bits Bits) *packedSink {
	return &packedSink{
		outCh: outCh,
		a:     packedEmitter{rq: rq, w: bitWriter{dst: dst, bits: bits}},
		b:     packedEmitter{rq: rq, w: bitWriter{dst: dst, bits: bits}},
	}
}

func (s *packedSink) pair(pos int) (emitter, emitter) {
	s.a.at(pos, s.outCh)
	s.b.at(pos+1, s.outCh)
	return &s.a, &s.b
}

type rawSink struct {
	outCh int
	a, b  rawEmitter
}

func newRawSink(dst []int32, outCh int) *rawSink {
	return &rawSink{outCh: outCh, a: rawEmitter{dst: dst}, b: rawEmitter{dst: dst}}
}

func (s *rawSink) pair(pos int) (emitter, emitter) {
	s.a.at(pos, s.outCh)
	s.b.at(pos+1, s.outCh)
	return &s.a, &s.b
}
