package config

import (
	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/errhandler"
	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/infra/storage/postgres"
	"github.com/vietddude/faultline/internal/infra/storage/sqlite"
	"github.com/vietddude/faultline/internal/resilience/breaker"
	"github.com/vietddude/faultline/internal/resilience/recovery"
	"github.com/vietddude/faultline/internal/validation"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Storage      StorageConfig      `yaml:"storage"`
	Redis        redisclient.Config `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	Audit        audit.Config       `yaml:"audit"`
	Recovery     recovery.Config    `yaml:"recovery"`
	Breaker      breaker.Config     `yaml:"breaker"`
	ErrorHandler errhandler.Config  `yaml:"error_handler"`
	Identity     IdentityConfig     `yaml:"identity"`
	// Validation overrides or extends the built-in parameter rules.
	Validation map[string]validation.BoundsRule `yaml:"validation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig selects the KV backend for audit persistence.
type StorageConfig struct {
	Driver    string        `yaml:"driver"` // memory, sqlite, redis, postgres
	SQLite    sqlite.Config `yaml:"sqlite"`
	Namespace string        `yaml:"namespace"`
	// Quota caps the memory backend in bytes; 0 = unlimited.
	Quota int `yaml:"quota"`
}

// IdentityConfig holds the actor stamped on audit entries.
type IdentityConfig struct {
	ActorID string `yaml:"actor_id"`
}
