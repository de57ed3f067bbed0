// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"sync"

	"github.com/xkilldash9x/webpilot/internal/interval"
	"go.uber.org/zap"
)

// Humanoid drives human-like scrolling in a single page context.
type Humanoid struct {
	// mu serializes scroll operations; one page is only ever scrolled by one caller.
	mu       sync.Mutex
	config   Config
	logger   *zap.Logger
	executor Executor
	rng      *interval.Generator
}

// New creates a Humanoid bound to executor. A nil rng gets a clock-seeded generator.
func New(cfg Config, logger *zap.Logger, executor Executor, rng *interval.Generator) *Humanoid {
	if rng == nil {
		rng = interval.NewRandom()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Humanoid{
		config:   cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
	}
}

// NewTestHumanoid creates a Humanoid with a deterministic generator for tests.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	return New(DefaultConfig(), zap.NewNop(), executor, interval.New(seed))
}
