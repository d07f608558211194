package qconv

// groupLen is the interleave group: logical elements e0 e1 e2 e3 are
// widened as e0 e2 e1 e3 so the kernel reads (e0,e2) and (e1,e3) as Vec2
// words against weight chunks read in the same order.
const groupLen = 4

// reorderIndex maps position p of a widened buffer of length n back to the
// logical element index it holds. The mapping is its own inverse.
func reorderIndex(p, n int) int {
	if p >= n-n%groupLen {
		return p
	}
	switch p % groupLen {
	case 1:
		return p + 1
	case 2:
		return p - 1
	}
	return p
}

// unpack4 returns the four elements of the group starting at element i.
func unpack4(src []byte, i int, b Bits) (e0, e1, e2, e3 uint8) {
	if i%groupLen != 0 {
		return element(src, i, b), element(src, i+1, b), element(src, i+2, b), element(src, i+3, b)
	}
	switch b {
	case Bits2:
		v := src[i>>2]
		return v & 0x3, (v >> 2) & 0x3, (v >> 4) & 0x3, v >> 6
	case Bits4:
		v0, v1 := src[i>>1], src[i>>1+1]
		return v0 & 0xF, v0 >> 4, v1 & 0xF, v1 >> 4
	default:
		s := src[i : i+4 : i+4]
		return s[0], s[1], s[2], s[3]
	}
}

// WidenReordered expands n packed elements from src into dst as int16,
// subtracting zero from each, and applies the group interleave. A trailing
// partial group is stored in order.
func WidenReordered(dst []int16, src []byte, n int, b Bits, zero uint8) {
	z := int16(zero)
	full := n - n%groupLen
	dst = dst[:n]
	for i := 0; i < full; i += groupLen {
		e0, e1, e2, e3 := unpack4(src, i, b)
		dst[i] = int16(e0) - z
		dst[i+1] = int16(e2) - z
		dst[i+2] = int16(e1) - z
		dst[i+3] = int16(e3) - z
	}
	for i := full; i < n; i++ {
		dst[i] = int16(element(src, i, b)) - z
	}
}

// readChunk reads the weight group starting at element i in kernel order.
func readChunk(src []byte, i int, b Bits) (Vec2, Vec2) {
	e0, e1, e2, e3 := unpack4(src, i, b)
	return Vec2{int16(e0), int16(e2)}, Vec2{int16(e1), int16(e3)}
}
