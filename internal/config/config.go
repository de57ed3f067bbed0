// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Executor() ExecutorConfig
	Humanoid() HumanoidConfig
	Store() StoreConfig
	Control() ControlConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDriver(string)

	// Store Setters
	SetStoreBackend(string)
	SetStorePath(string)

	// Control Setters
	SetControlListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	HumanoidCfg HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
	ControlCfg  ControlConfig  `mapstructure:"control" yaml:"control"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Executor() ExecutorConfig   { return c.ExecutorCfg }
func (c *Config) Humanoid() HumanoidConfig   { return c.HumanoidCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Control() ControlConfig     { return c.ControlCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriver(d string)     { c.BrowserCfg.Driver = d }
func (c *Config) SetStoreBackend(b string)      { c.StoreCfg.Backend = b }
func (c *Config) SetStorePath(p string)         { c.StoreCfg.Path = p }
func (c *Config) SetControlListenAddr(a string) { c.ControlCfg.ListenAddr = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig is only read when the postgres store backend is selected.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Browser drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// BrowserConfig controls the browser the executor drives.
type BrowserConfig struct {
	Driver      string   `mapstructure:"driver" yaml:"driver"`
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath    string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args        []string `mapstructure:"args" yaml:"args"`
	ViewportW   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportH   int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	// OpTimeout bounds a single host command. Page load waits are not bounded.
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// ExecutorConfig holds the fixed pads the step executor inserts.
type ExecutorConfig struct {
	// PostLoadBuffer is waited after every load-complete event.
	PostLoadBuffer time.Duration `mapstructure:"post_load_buffer" yaml:"post_load_buffer"`
	// PositionSettle and WheelSettle follow a completed scroll step.
	PositionSettle time.Duration `mapstructure:"position_settle" yaml:"position_settle"`
	WheelSettle    time.Duration `mapstructure:"wheel_settle" yaml:"wheel_settle"`
	// RecoverOnStart restarts a run that was active when the process exited.
	RecoverOnStart bool `mapstructure:"recover_on_start" yaml:"recover_on_start"`
}

// Store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects where the run state is persisted.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ControlConfig configures the control server.
type ControlConfig struct {
	ListenAddr string  `mapstructure:"listen_addr" yaml:"listen_addr"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	// AuthSecret, when set, requires an HS256 bearer token signed with it.
	AuthSecret string `mapstructure:"auth_secret" yaml:"auth_secret"`
	// AllowedOrigins lists browser origins accepted in addition to loopback pages.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// MinAuthSecretLength is the shortest accepted control.auth_secret.
const MinAuthSecretLength = 32

// NewDefaultConfig returns a configuration built only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only fires on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.op_timeout", "30s")

	// -- Executor --
	v.SetDefault("executor.post_load_buffer", "1s")
	v.SetDefault("executor.position_settle", "500ms")
	v.SetDefault("executor.wheel_settle", "1s")
	v.SetDefault("executor.recover_on_start", true)

	// -- Humanoid --
	setHumanoidDefaults(v)

	// -- Store --
	v.SetDefault("store.backend", StoreBackendFile)
	v.SetDefault("store.path", "~/.webpilot/state.json")

	// -- Control --
	v.SetDefault("control.listen_addr", "127.0.0.1:8765")
	v.SetDefault("control.rate_limit", 10.0)
	v.SetDefault("control.rate_burst", 20)
	v.SetDefault("control.auth_secret", "")
	v.SetDefault("control.allowed_origins", []string{})
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries credentials, so it gets an explicit env binding.
	_ = v.BindEnv("database.url", "WEBPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreCfg.Backend == StoreBackendPostgres && cfg.DatabaseCfg.URL == "" {
		cfg.DatabaseCfg.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverRod, c.BrowserCfg.Driver)
	}
	switch c.StoreCfg.Backend {
	case StoreBackendFile:
		if c.StoreCfg.Path == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case StoreBackendPostgres:
		if c.DatabaseCfg.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", StoreBackendFile, StoreBackendPostgres, c.StoreCfg.Backend)
	}
	if c.ExecutorCfg.PostLoadBuffer < 0 || c.ExecutorCfg.PositionSettle < 0 || c.ExecutorCfg.WheelSettle < 0 {
		return fmt.Errorf("executor delays must not be negative")
	}
	if err := c.HumanoidCfg.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	if c.ControlCfg.ListenAddr == "" {
		return fmt.Errorf("control.listen_addr is required")
	}
	if c.ControlCfg.RateLimit <= 0 || c.ControlCfg.RateBurst <= 0 {
		return fmt.Errorf("control.rate_limit and control.rate_burst must be positive")
	}
	if n := len(c.ControlCfg.AuthSecret); n > 0 && n < MinAuthSecretLength {
		return fmt.Errorf("control.auth_secret must be at least %d characters", MinAuthSecretLength)
	}
	return nil
}
