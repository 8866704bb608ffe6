package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the settings used when nothing overrides them.
// Secrets have no defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Processor: ProcessorConfig{
			WebhookTolerance: 5 * time.Minute,
			Currency:         "usd",
		},
		Outbox: OutboxConfig{
			Brokers:   []string{"localhost:9092"},
			Topic:     "order-events",
			Interval:  time.Second,
			BatchSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// setDefaults registers every key so the environment can override keys that
// no config file mentions.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", d.HTTP.RateBurst)

	v.SetDefault("database.url", d.Database.URL)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("processor.secret_key", d.Processor.SecretKey)
	v.SetDefault("processor.webhook_secret", d.Processor.WebhookSecret)
	v.SetDefault("processor.webhook_tolerance", d.Processor.WebhookTolerance)
	v.SetDefault("processor.currency", d.Processor.Currency)
	v.SetDefault("processor.ephemeral_key_version", d.Processor.EphemeralKeyVersion)

	v.SetDefault("checkout.reject_unknown_items", d.Checkout.RejectUnknownItems)

	v.SetDefault("outbox.brokers", d.Outbox.Brokers)
	v.SetDefault("outbox.topic", d.Outbox.Topic)
	v.SetDefault("outbox.interval", d.Outbox.Interval)
	v.SetDefault("outbox.batch_size", d.Outbox.BatchSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
