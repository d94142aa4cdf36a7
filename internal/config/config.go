package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete terminal-hook configuration
type Config struct {
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Capture CaptureConfig `mapstructure:"capture"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BridgeConfig controls the protocol bridge listener
type BridgeConfig struct {
	// Host is the interface the bridge binds to. Must be a loopback address;
	// the bridge never accepts non-local connections.
	Host string `mapstructure:"host"`
	// Port is the TCP port the bridge listens on (default: 7432).
	// Overridable via TERMINAL_HOOK_BRIDGE_PORT.
	Port int `mapstructure:"port"`
}

// CaptureConfig controls session output capture
type CaptureConfig struct {
	// BufferLines is the maximum number of normalized lines retained per
	// session. Oldest lines are evicted first when the buffer is full.
	BufferLines int `mapstructure:"buffer_lines"`
	// DefaultOutputLines is how many lines get-output returns when the
	// caller does not specify a count.
	DefaultOutputLines int `mapstructure:"default_output_lines"`
	// PIDResolveTimeoutMs bounds how long the asynchronous process-id
	// resolution may run after a terminal opens.
	PIDResolveTimeoutMs int `mapstructure:"pid_resolve_timeout_ms"`
}

// ProxyConfig controls the stdio client proxy
type ProxyConfig struct {
	// TimeoutMs is the maximum time the proxy waits for a bridge response
	// before surfacing a timeout failure.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
	// Dir is where the log file is written. Empty means stderr.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with all default values set
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Host: "127.0.0.1",
			Port: 7432,
		},
		Capture: CaptureConfig{
			BufferLines:         1000,
			DefaultOutputLines:  100,
			PIDResolveTimeoutMs: 5000,
		},
		Proxy: ProxyConfig{
			TimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			Dir:   "",
		},
	}
}

// PIDResolveTimeout returns the PID resolution timeout as a duration.
func (c *CaptureConfig) PIDResolveTimeout() time.Duration {
	return time.Duration(c.PIDResolveTimeoutMs) * time.Millisecond
}

// Timeout returns the proxy response timeout as a duration.
func (c *ProxyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SetDefaults registers all default values with viper.
// This ensures defaults are available even without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("bridge.host", defaults.Bridge.Host)
	viper.SetDefault("bridge.port", defaults.Bridge.Port)

	viper.SetDefault("capture.buffer_lines", defaults.Capture.BufferLines)
	viper.SetDefault("capture.default_output_lines", defaults.Capture.DefaultOutputLines)
	viper.SetDefault("capture.pid_resolve_timeout_ms", defaults.Capture.PIDResolveTimeoutMs)

	viper.SetDefault("proxy.timeout_ms", defaults.Proxy.TimeoutMs)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
