package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults for everything that has a sensible one. Secrets (database
	// URL, JWT secret) have no default and must be provided.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 10080)
	v.SetDefault("auth.bcrypt_cost", 10)

	// General API traffic: 100 requests per 15 minutes.
	v.SetDefault("rate_limit.api.window_seconds", 900)
	v.SetDefault("rate_limit.api.max_requests", 100)
	// Authentication endpoints: 5 attempts per 15 minutes per (IP, email).
	v.SetDefault("rate_limit.auth.window_seconds", 900)
	v.SetDefault("rate_limit.auth.max_requests", 5)
	// Task creation: 10 per minute.
	v.SetDefault("rate_limit.task.window_seconds", 60)
	v.SetDefault("rate_limit.task.max_requests", 10)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; environment variables may carry
		// everything.
	}

	// Environment variables with TASKLIGHT_ prefix take precedence, e.g.
	// TASKLIGHT_DATABASE_URL, TASKLIGHT_AUTH_JWT_SECRET.
	v.SetEnvPrefix("TASKLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
