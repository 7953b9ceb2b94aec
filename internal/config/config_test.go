// internal/config/config_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, OverflowPolicyReject, cfg.GroupBuy.OverflowPolicy)
	assert.True(t, cfg.GroupBuy.EarlySuccess)
	assert.Equal(t, 5, cfg.GroupBuy.JoinRetries)
	assert.Equal(t, 30, cfg.GroupBuy.TickInterval)
	assert.Equal(t, "id", cfg.I18n.DefaultLocale)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		Database: "lapakwarga",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=lapakwarga sslmode=disable",
		cfg.DSN())
}

func TestGroupBuyOverflowPolicyFromEnv(t *testing.T) {
	t.Setenv("GROUPBUY_OVERFLOW_POLICY", "clamp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, OverflowPolicyClamp, cfg.GroupBuy.OverflowPolicy)
}

func TestValidateRejectsUnknownOverflowPolicy(t *testing.T) {
	t.Setenv("GROUPBUY_OVERFLOW_POLICY", "waitlist")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsZeroJoinRetries(t *testing.T) {
	t.Setenv("GROUPBUY_JOIN_RETRIES", "0")

	_, err := Load()
	assert.Error(t, err)
}
