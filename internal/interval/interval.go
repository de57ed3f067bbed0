// Package interval draws randomized durations and distances from inclusive bounds.
package interval

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Generator produces integers uniformly distributed over an inclusive range.
// It is safe for concurrent use.
type Generator struct {
	// mu guards rng; *rand.Rand is not safe for concurrent use.
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator with a fixed seed, for reproducible sequences.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// NewRandom returns a generator seeded from the clock.
func NewRandom() *Generator {
	return New(time.Now().UnixNano())
}

// Uniform returns an integer in [min, max]. Both bounds are reachable.
// min must not exceed max; callers validate configuration before drawing.
func (g *Generator) Uniform(min, max int) int {
	if min > max {
		panic(fmt.Sprintf("interval: min %d is greater than max %d", min, max))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rng.Intn(max-min+1)
}

// UniformRange draws from r.
func (g *Generator) UniformRange(r schemas.Range) int {
	return g.Uniform(r.Min, r.Max)
}

// Millis draws a duration from a range expressed in milliseconds.
func (g *Generator) Millis(r schemas.Range) time.Duration {
	return time.Duration(g.UniformRange(r)) * time.Millisecond
}
