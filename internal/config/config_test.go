package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MERCHANT_ID", "12345")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(12345), cfg.MerchantID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, "es", cfg.ContentLanguage)
	assert.Equal(t, "MX", cfg.TargetCountry)
	assert.Equal(t, "wp_", cfg.SourceTablePrefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MERCHANT_ID", "1")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("RETRY_MAX_DELAY", "90s")
	t.Setenv("REQUEST_TIMEOUT", "15")
	t.Setenv("STORE_BASE_URL", "https://shop.example.com/")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "https://shop.example.com", cfg.StoreBaseURL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
}

func TestLoadRejectsBadMerchantID(t *testing.T) {
	t.Setenv("MERCHANT_ID", "abc")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("MERCHANT_ID", "")
	t.Setenv("BATCH_SIZE", "0")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MERCHANT_ID")
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}
