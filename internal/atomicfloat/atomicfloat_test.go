package atomicfloat

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []float64{
		0, 1, -1, 0.000000123, 1e18, -1e-18,
		math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1),
	}
	for _, v := range values {
		assert.Equal(t, v, Decode(Encode(v)), "round trip for %v", v)
	}

	// NaN round-trips to NaN (bit equality, not float equality).
	assert.True(t, math.IsNaN(Decode(Encode(math.NaN()))))

	// Negative zero keeps its sign bit.
	assert.True(t, math.Signbit(Decode(Encode(math.Copysign(0, -1)))))
}

func TestFloat64LoadStore(t *testing.T) {
	var f Float64
	assert.Equal(t, 0.0, f.Load())

	f.Store(42.5)
	assert.Equal(t, 42.5, f.Load())
}

func TestFloat64CompareAndSwap(t *testing.T) {
	var f Float64
	f.Store(100)

	require.True(t, f.CompareAndSwap(100, 160))
	require.False(t, f.CompareAndSwap(100, 200), "stale expected value must fail")
	assert.Equal(t, 160.0, f.Load())
}

func TestFloat64ConcurrentCompareAndSwap(t *testing.T) {
	// Counting via read-CAS loops from many goroutines: every increment must
	// land exactly once.
	var f Float64

	var wg sync.WaitGroup
	numGoroutines := 16
	addsPerGoroutine := 1000

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < addsPerGoroutine; j++ {
				for {
					old := f.Load()
					if f.CompareAndSwap(old, old+1) {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(numGoroutines*addsPerGoroutine), f.Load())
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(0))
	assert.True(t, IsFinite(-123.456))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
	assert.False(t, IsFinite(math.Inf(-1)))
}
