package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
//  1. Environment variables (LOGCORR_ prefix)
//  2. Configuration file (logcorrelate.yaml)
//  3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("logcorrelate")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/logcorrelate/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("LOGCORR")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults without touching the filesystem or
// environment, useful for tests and library callers that assemble their own
// Config by hand.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("default_time_window", 5*time.Minute)
	v.SetDefault("max_events", 100000)
	v.SetDefault("late_tolerance", 30*time.Second)
	v.SetDefault("join_type", "and")
	v.SetDefault("buffer_size", 10000)
	v.SetDefault("processing_interval", 100*time.Millisecond)
	v.SetDefault("max_memory_mb", 512)
	v.SetDefault("gc_interval", time.Minute)

	v.SetDefault("dedup.enabled", true)
	v.SetDefault("dedup.ttl", 5*time.Minute)
	v.SetDefault("dedup.max_cache", 50000)
	v.SetDefault("dedup.redis_db", 0)

	v.SetDefault("backpressure.max_buffer_size", 10000)
	v.SetDefault("backpressure.high_watermark", 8000)
	v.SetDefault("backpressure.low_watermark", 2000)
}

func validateConfig(cfg *Config) error {
	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	validJoinTypes := []string{"and", "or", "unless"}
	if !contains(validJoinTypes, cfg.JoinType) {
		return fmt.Errorf("invalid join_type: %s", cfg.JoinType)
	}
	if cfg.MaxEvents < 0 {
		return fmt.Errorf("max_events must be >= 0")
	}
	if cfg.MaxMemoryMB <= 0 {
		return fmt.Errorf("max_memory_mb must be positive")
	}
	if cfg.Backpressure.HighWatermark <= cfg.Backpressure.LowWatermark {
		return fmt.Errorf("backpressure.high_watermark must exceed low_watermark")
	}
	if cfg.Backpressure.MaxBufferSize < cfg.Backpressure.HighWatermark {
		return fmt.Errorf("backpressure.max_buffer_size must be >= high_watermark")
	}
	if cfg.Dedup.Enabled && cfg.Dedup.MaxCache <= 0 {
		return fmt.Errorf("dedup.max_cache must be positive when dedup is enabled")
	}
	return nil
}
