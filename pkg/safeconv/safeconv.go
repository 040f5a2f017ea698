// Package safeconv provides checked integer conversions for sizes that cross
// the int/uint64 boundary, such as on-disk length headers.
package safeconv

import (
	"errors"
	"fmt"
)

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// ErrOutOfRange is returned when a value does not fit the target type.
var ErrOutOfRange = errors.New("safeconv: value out of range")

// Uint64ToInt converts v to int, failing when it exceeds MaxInt.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(MaxInt) {
		return 0, fmt.Errorf("%w: %d exceeds int", ErrOutOfRange, v)
	}

	return int(v), nil
}

// MustIntToUint64 converts int to uint64, panics if negative.
// Use only when negative values are logically impossible, such as lengths.
func MustIntToUint64(v int) uint64 {
	if v < 0 {
		panic("safeconv: negative int to uint64 conversion")
	}

	return uint64(v)
}

// MustInt64ToUint64 converts int64 to uint64, panics if negative.
// Use only when negative values are logically impossible, such as byte counts.
func MustInt64ToUint64(v int64) uint64 {
	if v < 0 {
		panic("safeconv: negative int64 to uint64 conversion")
	}

	return uint64(v)
}
