// Package qconv implements mixed-precision quantized 2-D convolution over
// sub-byte packed tensors.
//
// Activations and weights are stored at 2, 4 or 8 bits per element, the
// convolution is computed in int32 with zero-point correction, and every
// accumulator is re-quantized into a packed output at its own bit width.
//
// Bit order: inside a byte the first element occupies the least-significant
// slot. Every reader and writer in this package goes through element/Pack/
// Unpack so the order is defined in one place.
package qconv

import "fmt"

// Bits is the storage width of one tensor element.
type Bits uint8

const (
	Bits2 Bits = 2
	Bits4 Bits = 4
	Bits8 Bits = 8
)

// Valid reports whether b is a supported width.
func (b Bits) Valid() bool {
	return b == Bits2 || b == Bits4 || b == Bits8
}

// PerByte is the number of elements stored in one byte.
func (b Bits) PerByte() int {
	return 8 / int(b)
}

// MaxLevel is the largest unsigned value an element can hold.
func (b Bits) MaxLevel() int32 {
	return int32(1)<<b - 1
}

// Levels is the number of representable values, 2^b.
func (b Bits) Levels() int {
	return 1 << b
}

func (b Bits) mask() byte {
	return byte(1)<<b - 1
}

func (b Bits) String() string {
	return fmt.Sprintf("u%d", uint8(b))
}

// ParseBits converts a bit count into a Bits value.
func ParseBits(n int) (Bits, error) {
	b := Bits(n)
	if n < 0 || n > 8 || !b.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBits, n)
	}
	return b, nil
}

// PackedLen returns the number of bytes needed for n elements.
func PackedLen(n int, b Bits) int {
	per := b.PerByte()
	return (n + per - 1) / per
}

// element extracts element i from a packed buffer.
func element(src []byte, i int, b Bits) uint8 {
	if b == Bits8 {
		return src[i]
	}
	per := b.PerByte()
	shift := uint(i%per) * uint(b)
	return (src[i/per] >> shift) & b.mask()
}

// Pack stores src into dst at width b. Values above b.MaxLevel() are
// rejected rather than truncated.
func Pack(dst []byte, src []uint8, b Bits) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedBits, b)
	}
	if len(dst) < PackedLen(len(src), b) {
		return fmt.Errorf("%w: pack needs %d bytes, have %d", ErrSizeMismatch, PackedLen(len(src), b), len(dst))
	}
	if b == Bits8 {
		copy(dst, src)
		return nil
	}
	per := b.PerByte()
	limit := uint8(b.MaxLevel())
	var acc byte
	for i, v := range src {
		if v > limit {
			return fmt.Errorf("qconv: value %d at %d does not fit in %s", v, i, b)
		}
		slot := i % per
		acc |= v << (uint(slot) * uint(b))
		if slot == per-1 {
			dst[i/per] = acc
			acc = 0
		}
	}
	if rem := len(src) % per; rem != 0 {
		dst[len(src)/per] = acc
	}
	return nil
}

// Unpack expands n elements of src into dst in storage order.
func Unpack(dst []uint8, src []byte, b Bits) {
	if b == Bits8 {
		copy(dst, src)
		return
	}
	for i := range dst {
		dst[i] = element(src, i, b)
	}
}

// MustPack is Pack for values known to be in range.
func MustPack(src []uint8, b Bits) []byte {
	dst := make([]byte, PackedLen(len(src), b))
	if err := Pack(dst, src, b); err != nil {
		panic(err)
	}
	return dst
}
