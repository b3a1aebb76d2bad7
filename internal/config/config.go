// Package config provides configuration management for the CodeChat server
// using Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Ports are fixed at build time; peer editor plug-ins hard-code them. The
// configurable surface is deliberately small: binding mode, log settings,
// and worker-pool size. Environment variables use the CODECHAT_ prefix
// (e.g. CODECHAT_LOG_LEVEL=debug).
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// The three service ports. Editor plug-ins and the bundled viewer assets
// assume these values, so they are constants rather than configuration.
const (
	// RPCPort accepts framed RPC connections from editor plug-ins.
	RPCPort = 9090
	// HTTPPort serves the viewer page and rendered output.
	HTTPPort = 9091
	// WebSocketPort pushes build/errors/url events to viewers.
	WebSocketPort = 9092

	// Localhost is the default bind address and viewer host.
	Localhost = "127.0.0.1"
	// AllInterfaces is the insecure bind address.
	AllInterfaces = "0.0.0.0"
)

type Config struct {
	// Insecure binds the HTTP and WebSocket listeners to all interfaces
	// and enables the /insecure warning page link.
	Insecure bool `yaml:"insecure"`
	// Quiet raises the log level to warn for foreground serving.
	Quiet bool `yaml:"quiet"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
	// Workers sizes the render worker pool.
	Workers int `yaml:"workers"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Workaround for viper bool/string handling when values arrive from
	// bound flags rather than the config file.
	if viper.IsSet("insecure") {
		config.Insecure = viper.GetBool("insecure")
	}
	if viper.IsSet("quiet") {
		config.Quiet = viper.GetBool("quiet")
	}
	if viper.IsSet("log_level") {
		config.LogLevel = viper.GetString("log_level")
	}
	if viper.IsSet("log_format") {
		config.LogFormat = viper.GetString("log_format")
	}
	if viper.IsSet("workers") {
		config.Workers = viper.GetInt("workers")
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
	if config.Workers == 0 {
		config.Workers = DefaultWorkers()
	}
	if config.Quiet && config.LogLevel == "info" {
		config.LogLevel = "warn"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultWorkers sizes the render pool: enough parallelism for several
// editors on a small machine without oversubscribing large ones.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 4 {
		return 4
	}
	return n
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", config.LogLevel)
	}

	switch config.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not one of text, json", config.LogFormat)
	}

	if config.Workers < 1 || config.Workers > 256 {
		return fmt.Errorf("workers %d is not in valid range 1-256", config.Workers)
	}

	return nil
}

// BindHost returns the address the service listeners bind to.
func (c *Config) BindHost() string {
	if c.Insecure {
		return AllInterfaces
	}
	return Localhost
}
