package interval

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestUniform_StaysWithinBounds(t *testing.T) {
	g := New(42)
	bounds := []schemas.Range{{Min: 0, Max: 0}, {Min: 5, Max: 5}, {Min: 1, Max: 2}, {Min: 50, Max: 100}, {Min: 1000, Max: 3000}}

	for _, r := range bounds {
		for i := 0; i < 2000; i++ {
			v := g.UniformRange(r)
			require.GreaterOrEqual(t, v, r.Min)
			require.LessOrEqual(t, v, r.Max)
		}
	}
}

// TestUniform_Distribution checks every bucket, including both bounds, is hit
// with roughly equal frequency.
func TestUniform_Distribution(t *testing.T) {
	g := New(7)
	const (
		min     = 10
		max     = 19
		samples = 100000
	)
	counts := make(map[int]int)
	for i := 0; i < samples; i++ {
		counts[g.Uniform(min, max)]++
	}

	require.Len(t, counts, max-min+1, "both bounds must be reachable")
	expected := float64(samples) / float64(max-min+1)
	for v := min; v <= max; v++ {
		assert.InDelta(t, expected, float64(counts[v]), expected*0.1, "bucket %d is off", v)
	}
}

func TestUniform_DeterministicWithSeed(t *testing.T) {
	a, b := New(99), New(99)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Uniform(0, 1000), b.Uniform(0, 1000))
	}
}

func TestUniform_PanicsOnInvertedBounds(t *testing.T) {
	g := New(1)
	assert.Panics(t, func() { g.Uniform(5, 4) })
}

func TestMillis(t *testing.T) {
	g := New(3)
	d := g.Millis(schemas.Range{Min: 250, Max: 250})
	assert.Equal(t, 250*time.Millisecond, d)
}

func TestUniform_ConcurrentUse(t *testing.T) {
	g := NewRandom()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := g.Uniform(1, 6)
				if v < 1 || v > 6 {
					t.Errorf("value %d out of range", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
