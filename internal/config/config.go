// Package config loads service settings from defaults, an optional file and
// the environment. Environment variables use the key path with dots replaced
// by underscores, e.g. PROCESSOR_SECRET_KEY for processor.secret_key.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Checkout  CheckoutConfig  `mapstructure:"checkout"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the sustained payment intent requests per second. Zero
	// disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Audience  string `mapstructure:"audience"`
	Issuer    string `mapstructure:"issuer"`
}

type ProcessorConfig struct {
	SecretKey           string        `mapstructure:"secret_key"`
	WebhookSecret       string        `mapstructure:"webhook_secret"`
	WebhookTolerance    time.Duration `mapstructure:"webhook_tolerance"`
	Currency            string        `mapstructure:"currency"`
	EphemeralKeyVersion string        `mapstructure:"ephemeral_key_version"`
}

type CheckoutConfig struct {
	RejectUnknownItems bool `mapstructure:"reject_unknown_items"`
}

type OutboxConfig struct {
	Brokers   []string      `mapstructure:"brokers"`
	Topic     string        `mapstructure:"topic"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports every setting the payments server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Processor.SecretKey == "" {
		errs = append(errs, errors.New("processor.secret_key is required"))
	}
	if c.Processor.WebhookSecret == "" {
		errs = append(errs, errors.New("processor.webhook_secret is required"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst < 1 {
		errs = append(errs, errors.New("http.rate_burst must be at least 1"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ValidateOutbox reports the settings the relay needs.
func (c *Config) ValidateOutbox() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if len(c.Outbox.Brokers) == 0 {
		errs = append(errs, errors.New("outbox.brokers is required"))
	}
	if c.Outbox.Topic == "" {
		errs = append(errs, errors.New("outbox.topic is required"))
	}
	if c.Outbox.Interval <= 0 {
		errs = append(errs, errors.New("outbox.interval must be positive"))
	}
	if c.Outbox.BatchSize < 1 {
		errs = append(errs, errors.New("outbox.batch_size must be at least 1"))
	}
	return errors.Join(errs...)
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
