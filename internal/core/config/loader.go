package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/errhandler"
	"github.com/vietddude/faultline/internal/resilience/breaker"
	"github.com/vietddude/faultline/internal/resilience/recovery"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("storage driver %q requires redis.url", c.Storage.Driver)
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("storage driver %q requires database.url", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Audit.RotateBlock > c.Audit.MaxEntries {
		return fmt.Errorf("audit.rotate_block (%d) exceeds audit.max_entries (%d)",
			c.Audit.RotateBlock, c.Audit.MaxEntries)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "faultline.db"
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = "faultline"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = cfg.Storage.Namespace
	}

	a := &cfg.Audit
	if a.FlushInterval <= 0 {
		a.FlushInterval = audit.DefaultConfig.FlushInterval
	}
	if a.MaxEntries <= 0 {
		a.MaxEntries = audit.DefaultConfig.MaxEntries
	}
	if a.RotateBlock <= 0 {
		a.RotateBlock = audit.DefaultConfig.RotateBlock
	}
	if a.Retention <= 0 {
		a.Retention = audit.DefaultConfig.Retention
	}
	if a.MaxArrayLength <= 0 {
		a.MaxArrayLength = audit.DefaultConfig.MaxArrayLength
	}

	r := &cfg.Recovery
	if r.Retry == (recovery.RetryConfig{}) {
		r.Retry = recovery.DefaultRetryConfig
	}
	if r.Retry.MaxAttempts <= 0 {
		r.Retry.MaxAttempts = recovery.DefaultRetryConfig.MaxAttempts
	}
	if r.Retry.InitialDelay <= 0 {
		r.Retry.InitialDelay = recovery.DefaultRetryConfig.InitialDelay
	}
	if r.Retry.MaxDelay <= 0 {
		r.Retry.MaxDelay = recovery.DefaultRetryConfig.MaxDelay
	}
	if r.Retry.BackoffMultiplier <= 0 {
		r.Retry.BackoffMultiplier = recovery.DefaultRetryConfig.BackoffMultiplier
	}
	if r.Queue.Interval <= 0 {
		r.Queue.Interval = recovery.DefaultQueueConfig.Interval
	}
	if r.Queue.MaxRetries <= 0 {
		r.Queue.MaxRetries = recovery.DefaultQueueConfig.MaxRetries
	}
	if r.CacheTTL <= 0 {
		r.CacheTTL = recovery.DefaultConfig.CacheTTL
	}
	if r.CacheStale <= 0 {
		r.CacheStale = recovery.DefaultConfig.CacheStale
	}

	b := &cfg.Breaker
	if b.FailureThreshold <= 0 {
		b.FailureThreshold = breaker.DefaultConfig.FailureThreshold
	}
	if b.SuccessThreshold <= 0 {
		b.SuccessThreshold = breaker.DefaultConfig.SuccessThreshold
	}
	if b.ResetTimeout <= 0 {
		b.ResetTimeout = breaker.DefaultConfig.ResetTimeout
	}

	e := &cfg.ErrorHandler
	if e.MaxErrorRate == 0 {
		e.MaxErrorRate = errhandler.DefaultConfig.MaxErrorRate
	}
	if e.RateWindow <= 0 {
		e.RateWindow = errhandler.DefaultConfig.RateWindow
	}
	if e.CriticalThreshold <= 0 {
		e.CriticalThreshold = errhandler.DefaultConfig.CriticalThreshold
	}
	if e.NotifyTimeout <= 0 {
		e.NotifyTimeout = errhandler.DefaultConfig.NotifyTimeout
	}
}
