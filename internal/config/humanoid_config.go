// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which holds the tunable
// parameters of the scroll simulation. A scroll step that omits its wheel
// ranges falls back to these values.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// HumanoidConfig holds wheel-scroll defaults, in px and ms.
type HumanoidConfig struct {
	WheelDistanceMin   int  `mapstructure:"wheel_distance_min" yaml:"wheel_distance_min"`
	WheelDistanceMax   int  `mapstructure:"wheel_distance_max" yaml:"wheel_distance_max"`
	WheelIntervalMinMs int  `mapstructure:"wheel_interval_min_ms" yaml:"wheel_interval_min_ms"`
	WheelIntervalMaxMs int  `mapstructure:"wheel_interval_max_ms" yaml:"wheel_interval_max_ms"`
	SmoothPosition     bool `mapstructure:"smooth_position" yaml:"smooth_position"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.wheel_distance_min", 50)
	v.SetDefault("humanoid.wheel_distance_max", 100)
	v.SetDefault("humanoid.wheel_interval_min_ms", 500)
	v.SetDefault("humanoid.wheel_interval_max_ms", 1000)
	v.SetDefault("humanoid.smooth_position", true)
}

// Validate rejects ranges the interval generator cannot draw from.
func (h HumanoidConfig) Validate() error {
	if h.WheelDistanceMin <= 0 {
		return fmt.Errorf("humanoid.wheel_distance_min must be positive")
	}
	if h.WheelDistanceMin > h.WheelDistanceMax {
		return fmt.Errorf("humanoid.wheel_distance_min must not exceed humanoid.wheel_distance_max")
	}
	if h.WheelIntervalMinMs < 0 || h.WheelIntervalMinMs > h.WheelIntervalMaxMs {
		return fmt.Errorf("humanoid.wheel_interval_min_ms must be between 0 and humanoid.wheel_interval_max_ms")
	}
	return nil
}
