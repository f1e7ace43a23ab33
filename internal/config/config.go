// Package config loads cmd/enclaved's broker configuration via viper,
// the way sam-saffron-jarvis-term-llm's internal/config package loads its
// CLI configuration: defaults registered up front, an optional YAML file
// layered on top, environment variables layered on top of that.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is cmd/enclaved's broker configuration.
type Config struct {
	Addr string `mapstructure:"addr"`

	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`

	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	DefaultProfile string `mapstructure:"default_profile"`

	MaxToolCalls  int `mapstructure:"max_tool_calls"`
	MaxChainSteps int `mapstructure:"max_chain_steps"`

	// RequireUnsafeOptIn is loaded from configuration but not read by the
	// broker; this module ships no unsafe host backend for it to gate.
	RequireUnsafeOptIn bool `mapstructure:"require_unsafe_opt_in"`
}

// Defaults returns the broker's built-in configuration, mirroring the
// single-source-of-truth GetDefaults() pattern the pack's CLI config
// loaders use.
func Defaults() map[string]any {
	return map[string]any{
		"addr":                    ":8443",
		"max_concurrent_sessions": 64,
		"default_timeout":         "30s",
		"heartbeat_interval":      "15s",
		"default_profile":         "standard",
		"max_tool_calls":          50,
		"max_chain_steps":         10,
		"require_unsafe_opt_in":   true,
	}
}

// Load reads configFile (if non-empty and present) over Defaults(), then
// layers ENCLAVED_-prefixed environment variables on top.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("enclaved")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
