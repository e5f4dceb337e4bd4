// Package atomicfloat stores float64 values in atomic integer words so that
// prices and PnL figures can be read, written and compare-and-swapped without
// locks. Values are reinterpreted as their IEEE-754 bit pattern; the encoding
// is exact for every finite float64, so decode(encode(x)) == x.
package atomicfloat

import (
	"math"
	"sync/atomic"
)

// Encode converts a float64 into the uint64 bit pattern used for atomic storage.
func Encode(f float64) uint64 {
	return math.Float64bits(f)
}

// Decode converts a stored bit pattern back into a float64.
func Decode(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// Float64 is an atomic float64 backed by a uint64 word.
//
// The zero value holds 0.0 and is ready to use.
type Float64 struct {
	bits atomic.Uint64
}

// Load returns the current value.
func (f *Float64) Load() float64 {
	return Decode(f.bits.Load())
}

// Store unconditionally replaces the current value.
func (f *Float64) Store(v float64) {
	f.bits.Store(Encode(v))
}

// CompareAndSwap replaces old with new if the stored bits still equal old's
// bits. Note that NaN never compares equal to itself as a float, but two NaNs
// with identical bit patterns do swap here; callers on the trading hot path
// reject non-finite values before they reach storage.
func (f *Float64) CompareAndSwap(old, new float64) bool {
	return f.bits.CompareAndSwap(Encode(old), Encode(new))
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
