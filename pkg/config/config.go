// Package config loads service configuration: environment variables for
// the runtime settings and a YAML file for the notification channel
// topology.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigurationError reports a setting the service cannot start with.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Setting, e.Reason)
}

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisURL      string
	ClassifierURL string
	ReviewURL     string
	ChannelsFile  string
	PatientSalt   string
	AckTimeout    time.Duration
	MaxIntervs    int
	SessionMax    time.Duration
	OTLPEndpoint  string
	MetricsOn     bool
}

// Load loads configuration from environment variables, filling defaults
// suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		LogLevel:      getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		ClassifierURL: getenv("CLASSIFIER_URL", "http://localhost:9090"),
		ReviewURL:     os.Getenv("REVIEW_SERVICE_URL"),
		ChannelsFile:  getenv("CHANNELS_FILE", "channels.yaml"),
		PatientSalt:   getenv("PATIENT_ID_SALT", "dev-only-salt"),
		AckTimeout:    5 * time.Minute,
		MaxIntervs:    10,
		SessionMax:    120 * time.Minute,
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MetricsOn:     os.Getenv("METRICS_ENABLED") == "true",
	}

	if v := os.Getenv("ACK_TIMEOUT_SECONDS"); v != "" {
		secs, err := positiveInt("ACK_TIMEOUT_SECONDS", v)
		if err != nil {
			return nil, err
		}
		cfg.AckTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("MAX_INTERVENTIONS"); v != "" {
		n, err := positiveInt("MAX_INTERVENTIONS", v)
		if err != nil {
			return nil, err
		}
		cfg.MaxIntervs = n
	}
	if v := os.Getenv("SESSION_MAX_MINUTES"); v != "" {
		n, err := positiveInt("SESSION_MAX_MINUTES", v)
		if err != nil {
			return nil, err
		}
		cfg.SessionMax = time.Duration(n) * time.Minute
	}

	return cfg, nil
}

func positiveInt(setting, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &ConfigurationError{
			Setting: setting,
			Reason:  fmt.Sprintf("must be a positive integer, got %q", v),
		}
	}
	return n, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
