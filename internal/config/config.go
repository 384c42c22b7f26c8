// Package config loads and validates the application configuration from
// environment variables and an optional YAML file.
package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Scan     ScanConfig     `mapstructure:"scan" validate:"required"`
	Delivery DeliveryConfig `mapstructure:"delivery" validate:"required"`
	Health   HealthConfig   `mapstructure:"health" validate:"required"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup" validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// ScanConfig contains capture pipeline settings. Every external process
// invocation carries one of these timeouts.
type ScanConfig struct {
	WorkDir        string        `mapstructure:"work_dir" validate:"required"`
	MaxPages       int           `mapstructure:"max_pages" validate:"required,gt=0"`
	PageTimeout    time.Duration `mapstructure:"page_timeout" validate:"required"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout" validate:"required"`
	ConvertTimeout time.Duration `mapstructure:"convert_timeout" validate:"required"`
	MaxConcurrent  int           `mapstructure:"max_concurrent" validate:"required,gt=0"`
}

// DeliveryConfig contains the delivery retry and probe settings.
type DeliveryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" validate:"required,gt=0"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"required"`
}

// HealthConfig contains the device health monitor settings.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}

// CleanupConfig bounds local retention of undelivered artifacts and finished
// job rows. Schedule is a standard 5-field cron expression or a @-macro.
type CleanupConfig struct {
	Schedule     string        `mapstructure:"schedule" validate:"required"`
	MaxAge       time.Duration `mapstructure:"max_age" validate:"required"`
	MaxArtifacts int           `mapstructure:"max_artifacts" validate:"required,gt=0"`
}
