package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("STOREFRONT_HTTP_ADDR", ":9090")
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STOREFRONT_ORDERS_PENDING_TTL", "2h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Hour, cfg.Orders.PendingTTL)
	assert.Equal(t, ProviderSandbox, cfg.Payment.Provider)
	assert.Equal(t, "usd", cfg.Payment.Currency)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwt_secret: from-file
  admin_user_ids: ["u-admin"]
payment:
  provider: stripe
  secret_key: sk_test_123
orders:
  pending_ttl: 30m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"u-admin"}, cfg.Auth.AdminUserIDs)
	assert.Equal(t, ProviderStripe, cfg.Payment.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Orders.PendingTTL)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Postgres: PostgresConfig{URL: "postgres://x"},
		Auth:     AuthConfig{JWTSecret: "x"},
		Payment:  PaymentConfig{Provider: ProviderStripe},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment.secret_key")

	cfg.Payment.Provider = "paypal"
	require.Error(t, cfg.Validate())

	cfg.Payment.Provider = ProviderSandbox
	require.NoError(t, cfg.Validate())

	cfg.Auth.JWTSecret = ""
	require.Error(t, cfg.Validate())
}
