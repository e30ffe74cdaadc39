/**
 * @description
 * Configuration management for the recurring-service. Settings are loaded
 * from environment variables via Viper, with defaults for the scheduler
 * cadences and operational knobs.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all configuration for the recurring service.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	LedgerServiceURL    string `mapstructure:"LEDGER_SERVICE_URL"`
	HouseholdServiceURL string `mapstructure:"HOUSEHOLD_SERVICE_URL"`
	InternalAPIKey      string `mapstructure:"INTERNAL_API_KEY"`
	ClerkJWKSURL        string `mapstructure:"CLERK_JWKS_URL"`

	EventExchange string `mapstructure:"EVENT_EXCHANGE"`

	DueScanSchedule    string `mapstructure:"DUE_SCAN_SCHEDULE"`
	RetrySweepSchedule string `mapstructure:"RETRY_SWEEP_SCHEDULE"`

	ExecutionRetryLimit     int `mapstructure:"EXECUTION_RETRY_LIMIT"`
	MaxConcurrentExecutions int `mapstructure:"MAX_CONCURRENT_EXECUTIONS"`
	LedgerTimeoutSeconds    int `mapstructure:"LEDGER_TIMEOUT_SECONDS"`
	RetrySweepBatchSize     int `mapstructure:"RETRY_SWEEP_BATCH_SIZE"`
	ClaimTTLMinutes         int `mapstructure:"CLAIM_TTL_MINUTES"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8087")
	viper.SetDefault("EVENT_EXCHANGE", "transfa.events")
	viper.SetDefault("DUE_SCAN_SCHEDULE", "0 * * * *")      // Hourly.
	viper.SetDefault("RETRY_SWEEP_SCHEDULE", "30 */4 * * *") // Every 4 hours, offset from the scan.
	viper.SetDefault("EXECUTION_RETRY_LIMIT", 3)
	viper.SetDefault("MAX_CONCURRENT_EXECUTIONS", 8)
	viper.SetDefault("LEDGER_TIMEOUT_SECONDS", 30)
	viper.SetDefault("RETRY_SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("CLAIM_TTL_MINUTES", 15)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_URL")
	_ = viper.BindEnv("HOUSEHOLD_SERVICE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("DUE_SCAN_SCHEDULE")
	_ = viper.BindEnv("RETRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("EXECUTION_RETRY_LIMIT")
	_ = viper.BindEnv("MAX_CONCURRENT_EXECUTIONS")
	_ = viper.BindEnv("LEDGER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("RETRY_SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("CLAIM_TTL_MINUTES")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be configured")
	}
	if config.LedgerServiceURL == "" {
		return nil, errors.New("LEDGER_SERVICE_URL must be configured")
	}

	return &config, nil
}
