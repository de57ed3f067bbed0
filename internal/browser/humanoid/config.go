package humanoid

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Config holds the wheel ranges used when a request leaves them unset.
type Config struct {
	WheelDistance  schemas.Range
	WheelInterval  schemas.Range
	SmoothPosition bool
}

// DefaultConfig mirrors the defaults registered with viper.
func DefaultConfig() Config {
	return Config{
		WheelDistance:  schemas.Range{Min: 50, Max: 100},
		WheelInterval:  schemas.Range{Min: 500, Max: 1000},
		SmoothPosition: true,
	}
}

// NewConfig converts the application's humanoid section.
func NewConfig(cfg config.HumanoidConfig) Config {
	return Config{
		WheelDistance:  schemas.Range{Min: cfg.WheelDistanceMin, Max: cfg.WheelDistanceMax},
		WheelInterval:  schemas.Range{Min: cfg.WheelIntervalMinMs, Max: cfg.WheelIntervalMaxMs},
		SmoothPosition: cfg.SmoothPosition,
	}
}
