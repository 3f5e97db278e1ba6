package common

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DivCeil divides x by t rounding up. It is the workgroup count for x elements processed
// t at a time: zero elements yields zero groups.
//
// Parameters:
//   - x: number of elements
//   - t: elements per group, must be non-zero
//
// Returns:
//   - uint32: ceil(x / t)
func DivCeil(x, t uint32) uint32 {
	q := x / t
	if x%t != 0 {
		q++
	}
	return q
}

// AlignUp rounds v up to the next multiple of a, which must be a power of two.
func AlignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= v (1 for v == 0).
func NextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// Halton returns element index of the Halton low-discrepancy sequence in the given base.
// Used for sub-pixel camera jitter.
//
// Parameters:
//   - index: sequence index, starting at 1
//   - base: prime base (2 and 3 for 2D jitter)
//
// Returns:
//   - float32: value in [0, 1)
func Halton(index, base uint32) float32 {
	f := float32(1)
	r := float32(0)
	for i := index; i > 0; i /= base {
		f /= float32(base)
		r += f * float32(i%base)
	}
	return r
}

// PutMat4 writes a column-major 4x4 matrix into dst as 16 little-endian float32 values.
// dst must hold at least 64 bytes.
func PutMat4(dst []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// PutVec4 writes four little-endian float32 values into dst.
func PutVec4(dst []byte, v mgl32.Vec4) {
	for i, c := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(c))
	}
}

// PutUint32s writes the values as consecutive little-endian uint32s into dst.
func PutUint32s(dst []byte, values ...uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], v)
	}
}

// PutFloat32s writes values into dst as consecutive little-endian float32s.
func PutFloat32s(dst []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// Uint32sToBytes packs values into a new little-endian byte slice.
func Uint32sToBytes(values []uint32) []byte {
	out := make([]byte, len(values)*4)
	PutUint32s(out, values...)
	return out
}

// BytesToUint32s unpacks a little-endian byte slice into uint32 values. Trailing bytes that
// do not form a full word are ignored.
func BytesToUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
