// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements I64F32, the signed fixed-point type
// with 32 fractional bits used for HNSW vector distances. No floating
// point appears anywhere on the insert/search path so that two nodes
// with identical inputs always compute byte-identical distances.
//
// This is implemented directly on int64 with a 128-bit intermediate
// for multiplication rather than adopting a third-party dependency
// (see DESIGN.md).
package fixedpoint

import "math/bits"

// FracBits is the number of fractional bits.
const FracBits = 32

// I64F32 is a signed Q32.32 fixed-point number backed by an int64: the
// low 32 bits are the fractional part.
type I64F32 int64

// FromInt converts an integer to I64F32.
func FromInt(v int64) I64F32 { return I64F32(v << FracBits) }

// FromFloat64 converts a float64 to I64F32. Used only at the
// boundary where external callers (contracts, tests, tooling) supply
// vectors as floats; never on the consensus-critical distance path
// itself.
func FromFloat64(v float64) I64F32 {
	return I64F32(v * (1 << FracBits))
}

// Float64 converts back to float64. Besides analytics/reporting, the
// HNSW serializer and root hash use it to encode vector components
// as float32.
func (x I64F32) Float64() float64 {
	return float64(x) / (1 << FracBits)
}

// Add, Sub are plain saturating-free int64 ops; overflow in
// consensus-sized vectors (component magnitudes bounded well under
// 2^31) is not expected. Mul below widens to a 128-bit intermediate
// product since its raw product overflows first; none of the three
// detects a result outside the int64 range.
func (x I64F32) Add(y I64F32) I64F32 { return x + y }
func (x I64F32) Sub(y I64F32) I64F32 { return x - y }

// Mul multiplies two Q32.32 numbers using a 128-bit intermediate
// product so that the result doesn't silently overflow for the
// magnitudes HNSW vectors use.
func (x I64F32) Mul(y I64F32) I64F32 {
	hi, lo := bits.Mul64(uint64(absI64(int64(x))), uint64(absI64(int64(y))))
	neg := (x < 0) != (y < 0)
	// shift the 128-bit product right by FracBits
	shifted := (hi << (64 - FracBits)) | (lo >> FracBits)
	if neg {
		return I64F32(-int64(shifted))
	}
	return I64F32(shifted)
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// SquaredEuclidean computes the squared Euclidean distance between two
// equal-length fixed-point vectors, used by the HNSW index in place of
// a floating-point distance function.
func SquaredEuclidean(a, b []I64F32) I64F32 {
	var sum I64F32
	for i := range a {
		d := a[i].Sub(b[i])
		sum = sum.Add(d.Mul(d))
	}
	return sum
}

// Cmp returns -1, 0, or 1 comparing x to y, so callers don't need to
// reach past the type for ordering.
func (x I64F32) Cmp(y I64F32) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
