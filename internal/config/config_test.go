package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	d := DefaultConfig()
	assert.Equal(t, d.HTTP, cfg.HTTP)
	assert.Equal(t, d.Outbox, cfg.Outbox)
	assert.Equal(t, d.Log, cfg.Log)
	assert.Equal(t, "usd", cfg.Processor.Currency)
	assert.Equal(t, time.Second, cfg.Outbox.Interval)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://shop@db/shop")
	t.Setenv("PROCESSOR_SECRET_KEY", "sk_test_env")
	t.Setenv("PROCESSOR_CURRENCY", "eur")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("CHECKOUT_REJECT_UNKNOWN_ITEMS", "true")
	t.Setenv("OUTBOX_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://shop@db/shop", cfg.Database.URL)
	assert.Equal(t, "sk_test_env", cfg.Processor.SecretKey)
	assert.Equal(t, "eur", cfg.Processor.Currency)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.True(t, cfg.Checkout.RejectUnknownItems)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Outbox.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.yaml")
	content := `
http:
  addr: ":9090"
processor:
  secret_key: sk_test_file
  webhook_secret: whsec_file
outbox:
  topic: orders
  batch_size: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PROCESSOR_SECRET_KEY", "sk_test_env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "whsec_file", cfg.Processor.WebhookSecret)
	assert.Equal(t, "sk_test_env", cfg.Processor.SecretKey, "environment wins over the file")
	assert.Equal(t, "orders", cfg.Outbox.Topic)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, 40, cfg.HTTP.RateBurst)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.URL = "postgres://localhost/shop"
	cfg.Auth.JWTSecret = "jwt"
	cfg.Processor.SecretKey = "sk_test"
	cfg.Processor.WebhookSecret = "whsec"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"database":       {func(c *Config) { c.Database.URL = "" }, "database.url"},
		"jwt":            {func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		"secret key":     {func(c *Config) { c.Processor.SecretKey = "" }, "processor.secret_key"},
		"webhook secret": {func(c *Config) { c.Processor.WebhookSecret = "" }, "processor.webhook_secret"},
		"rate limit":     {func(c *Config) { c.HTTP.RateLimit = -1 }, "http.rate_limit"},
		"rate burst":     {func(c *Config) { c.HTTP.RateBurst = 0 }, "http.rate_burst"},
		"log level":      {func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		"log format":     {func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEverything(t *testing.T) {
	err := DefaultConfig().Validate()
	require.Error(t, err)
	for _, key := range []string{"database.url", "auth.jwt_secret", "processor.secret_key", "processor.webhook_secret"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidateOutbox(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.URL = "postgres://localhost/shop"
	require.NoError(t, cfg.ValidateOutbox())

	cfg.Outbox.Brokers = nil
	cfg.Outbox.BatchSize = 0
	err := cfg.ValidateOutbox()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox.brokers")
	assert.Contains(t, err.Error(), "outbox.batch_size")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "order_id", 42)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"order_id":42`)

	_, err = LogConfig{Level: "chatty", Format: "text"}.NewLogger(&buf)
	assert.Error(t, err)
}
