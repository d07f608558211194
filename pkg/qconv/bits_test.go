package qconv

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	for _, b := range []Bits{Bits2, Bits4, Bits8} {
		levels := b.Levels()
		// Every value appears at every slot position.
		src := make([]uint8, levels*b.PerByte())
		for i := range src {
			src[i] = uint8((i / b.PerByte()) % levels)
		}
		for i := 0; i < len(src); i += 3 {
			src[i] = uint8((i * 7) % levels)
		}

		packed := make([]byte, PackedLen(len(src), b))
		if err := Pack(packed, src, b); err != nil {
			t.Fatalf("%s: pack: %v", b, err)
		}
		got := make([]uint8, len(src))
		Unpack(got, packed, b)
		if !bytes.Equal(got, src) {
			t.Fatalf("%s: round trip mismatch:\n got %v\nwant %v", b, got, src)
		}
	}
}

func TestPackBitOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bits Bits
		in   []uint8
		want []byte
	}{
		{Bits2, []uint8{1, 2, 3, 0}, []byte{0x39}},
		{Bits2, []uint8{3, 0, 0, 0, 0, 0, 0, 2}, []byte{0x03, 0x80}},
		{Bits4, []uint8{0x1, 0xA, 0xF, 0x0}, []byte{0xA1, 0x0F}},
		{Bits8, []uint8{7, 200}, []byte{7, 200}},
	}
	for _, tt := range tests {
		got := MustPack(tt.in, tt.bits)
		if !bytes.Equal(got, tt.want) {
			t.Fatalf("%s pack %v: got %x want %x", tt.bits, tt.in, got, tt.want)
		}
		for i, v := range tt.in {
			if e := element(got, i, tt.bits); e != v {
				t.Fatalf("%s element %d: got %d want %d", tt.bits, i, e, v)
			}
		}
	}
}

func TestPackPartialByte(t *testing.T) {
	t.Parallel()

	got := MustPack([]uint8{1, 1, 1, 1, 2}, Bits2)
	if want := []byte{0x55, 0x02}; !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestPackRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 1)
	if err := Pack(dst, []uint8{0, 4}, Bits2); err == nil {
		t.Fatalf("expected error for value 4 at 2 bits")
	}
	if err := Pack(dst, []uint8{1, 2, 3}, Bits8); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
	if err := Pack(dst, []uint8{1}, Bits(3)); !errors.Is(err, ErrUnsupportedBits) {
		t.Fatalf("expected unsupported bits, got %v", err)
	}
}

func TestParseBits(t *testing.T) {
	t.Parallel()

	for _, n := range []int{2, 4, 8} {
		b, err := ParseBits(n)
		if err != nil || int(b) != n {
			t.Fatalf("ParseBits(%d) = %d, %v", n, b, err)
		}
	}
	for _, n := range []int{-1, 0, 1, 3, 16, 258} {
		if _, err := ParseBits(n); !errors.Is(err, ErrUnsupportedBits) {
			t.Fatalf("ParseBits(%d): expected ErrUnsupportedBits, got %v", n, err)
		}
	}
}

func TestBitsHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bits    Bits
		perByte int
		max     int32
	}{
		{Bits2, 4, 3},
		{Bits4, 2, 15},
		{Bits8, 1, 255},
	}
	for _, tt := range tests {
		if got := tt.bits.PerByte(); got != tt.perByte {
			t.Fatalf("%s PerByte: got %d want %d", tt.bits, got, tt.perByte)
		}
		if got := tt.bits.MaxLevel(); got != tt.max {
			t.Fatalf("%s MaxLevel: got %d want %d", tt.bits, got, tt.max)
		}
	}
	if PackedLen(5, Bits2) != 2 || PackedLen(8, Bits4) != 4 || PackedLen(3, Bits8) != 3 {
		t.Fatalf("PackedLen mismatch")
	}
}
