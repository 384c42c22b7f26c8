package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence and use the SCAN2TARGET_ prefix with underscores for nesting,
// e.g. SCAN2TARGET_SERVER_PORT=8080.
// Returns a populated Config or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults apply.
	}

	v.SetEnvPrefix("SCAN2TARGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// No usable default: must come from the environment or the config file.
	// The empty default still registers the key so AutomaticEnv binds it.
	v.SetDefault("database.url", "")

	v.SetDefault("scan.work_dir", "/var/lib/scan2target/scans")
	v.SetDefault("scan.max_pages", 100)
	v.SetDefault("scan.page_timeout", "120s")
	v.SetDefault("scan.batch_timeout", "300s")
	v.SetDefault("scan.convert_timeout", "180s")
	v.SetDefault("scan.max_concurrent", 2)

	v.SetDefault("delivery.max_retries", 3)
	v.SetDefault("delivery.probe_timeout", "10s")

	v.SetDefault("health.interval", "60s")

	v.SetDefault("cleanup.schedule", "@hourly")
	v.SetDefault("cleanup.max_age", "168h")
	v.SetDefault("cleanup.max_artifacts", 50)
}
