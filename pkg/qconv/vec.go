package qconv

// Vec2 is a pair of 16-bit lanes, the unit consumed by the paired
// multiply-accumulate in the dot-product kernel.
type Vec2 [2]int16

// Splat returns a Vec2 with v in both lanes.
func Splat(v int16) Vec2 {
	return Vec2{v, v}
}

// Add is lane-wise wrapping addition.
func (a Vec2) Add(b Vec2) Vec2 {
	return Vec2{a[0] + b[0], a[1] + b[1]}
}

// Sub is lane-wise wrapping subtraction.
func (a Vec2) Sub(b Vec2) Vec2 {
	return Vec2{a[0] - b[0], a[1] - b[1]}
}

// MulAdd returns acc + a[0]*b[0] + a[1]*b[1], products widened to 32 bits.
func (a Vec2) MulAdd(b Vec2, acc int32) int32 {
	return acc + int32(a[0])*int32(b[0]) + int32(a[1])*int32(b[1])
}

// load2 reads two adjacent int16 values as one Vec2.
func load2(s []int16, i int) Vec2 {
	return Vec2{s[i], s[i+1]}
}
