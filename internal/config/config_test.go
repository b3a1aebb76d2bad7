package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Insecure)
	assert.False(t, cfg.Quiet)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, DefaultWorkers(), cfg.Workers)
	assert.Equal(t, Localhost, cfg.BindHost())
}

func TestLoadFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("insecure", true)
	viper.Set("log_level", "debug")
	viper.Set("log_format", "json")
	viper.Set("workers", 2)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Insecure)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, AllInterfaces, cfg.BindHost())
}

func TestQuietRaisesLogLevel(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("quiet", true)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	// An explicit level wins over quiet.
	viper.Set("log_level", "debug")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"bad log level", "log_level", "loud"},
		{"bad log format", "log_format", "xml"},
		{"negative workers", "workers", -1},
		{"huge workers", "workers", 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPortsAreAdjacent(t *testing.T) {
	// Editor plug-ins derive the HTTP and WebSocket ports from the RPC
	// port by offset.
	assert.Equal(t, RPCPort+1, HTTPPort)
	assert.Equal(t, RPCPort+2, WebSocketPort)
}
