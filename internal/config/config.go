// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Market-data pipeline
	QueueCapacity        int `mapstructure:"queue_capacity"`
	BatchSize            int `mapstructure:"batch_size"`
	DrainIntervalMs      int `mapstructure:"drain_interval_ms"`
	MonitorIntervalSec   int `mapstructure:"monitor_interval_sec"`
	UtilizationThreshold int `mapstructure:"utilization_threshold"`
	LatencyThresholdMs   int `mapstructure:"latency_threshold_ms"`

	// Position manager
	PriceWorkers    int `mapstructure:"price_workers"`
	EvalIntervalMs  int `mapstructure:"eval_interval_ms"`
	CleanupDelaySec int `mapstructure:"cleanup_delay_sec"`
	PersistRetries  int `mapstructure:"persist_retries"`

	// History
	HistoryRetentionMin int `mapstructure:"history_retention_min"`
	HistoryMaxPoints    int `mapstructure:"history_max_points"`

	// Collaborators
	PostgresURL    string `mapstructure:"postgres_url"`
	StrategiesFile string `mapstructure:"strategies_file"`

	// Logging
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogDir       string `mapstructure:"log_dir"`

	// Metrics
	MetricsAddr string `mapstructure:"metrics_addr"`
}

const (
	DefaultQueueCapacity        = 4096
	DefaultBatchSize            = 256
	DefaultDrainIntervalMs      = 50
	DefaultMonitorIntervalSec   = 10
	DefaultUtilizationThreshold = 80
	DefaultLatencyThresholdMs   = 10
	DefaultPriceWorkers         = 8
	DefaultEvalIntervalMs       = 500
	DefaultCleanupDelaySec      = 60
	DefaultPersistRetries       = 3
	DefaultHistoryRetentionMin  = 120
	DefaultHistoryMaxPoints     = 10000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"queue_capacity":        DefaultQueueCapacity,
		"batch_size":            DefaultBatchSize,
		"drain_interval_ms":     DefaultDrainIntervalMs,
		"monitor_interval_sec":  DefaultMonitorIntervalSec,
		"utilization_threshold": DefaultUtilizationThreshold,
		"latency_threshold_ms":  DefaultLatencyThresholdMs,
		"price_workers":         DefaultPriceWorkers,
		"eval_interval_ms":      DefaultEvalIntervalMs,
		"cleanup_delay_sec":     DefaultCleanupDelaySec,
		"persist_retries":       DefaultPersistRetries,
		"history_retention_min": DefaultHistoryRetentionMin,
		"history_max_points":    DefaultHistoryMaxPoints,
		"log_dir":               "logs",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

// DrainInterval returns the router drain interval as a duration.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalMs) * time.Millisecond
}

// MonitorInterval returns the queue monitoring interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSec) * time.Second
}

// EvalInterval returns the exit-scan interval as a duration.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.EvalIntervalMs) * time.Millisecond
}

// CleanupDelay returns the closed-position cleanup interval as a duration.
func (c *Config) CleanupDelay() time.Duration {
	return time.Duration(c.CleanupDelaySec) * time.Second
}

// HistoryRetention returns the history window as a duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionMin) * time.Minute
}

func validateConfig(cfg *Config) error {
	if cfg.StrategiesFile == "" {
		return errors.New("missing strategies_file in configuration")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.QueueCapacity <= 0 {
		return errors.New("invalid queue_capacity")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("invalid batch_size")
	}
	if cfg.DrainIntervalMs <= 0 {
		return errors.New("invalid drain_interval_ms")
	}
	if cfg.MonitorIntervalSec <= 0 {
		return errors.New("invalid monitor_interval_sec")
	}
	if cfg.UtilizationThreshold <= 0 || cfg.UtilizationThreshold > 100 {
		return errors.New("invalid utilization_threshold")
	}
	if cfg.PriceWorkers <= 0 {
		return errors.New("invalid price_workers")
	}
	if cfg.EvalIntervalMs <= 0 {
		return errors.New("invalid eval_interval_ms")
	}
	if cfg.PersistRetries < 0 {
		return errors.New("invalid persist_retries")
	}
	if cfg.HistoryRetentionMin <= 0 {
		return errors.New("invalid history_retention_min")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("TRADING_CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envPostgres := v.GetString("POSTGRES_URL")
	if envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}

	envStrategies := v.GetString("STRATEGIES_FILE")
	if envStrategies != "" {
		cfg.StrategiesFile = envStrategies
	}
	return nil
}
