package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Align rounds value up to the next multiple of alignment.
// An alignment of 0 or 1 leaves the value untouched.
func Align[T constraints.Unsigned](value, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}
