package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrefersPrefixedNames(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback/ledger")
	t.Setenv("TEST_DATABASE_URL", "postgres://prefixed/ledger")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := loadConfig("TEST")
	require.NoError(t, err)

	assert.Equal(t, "postgres://prefixed/ledger", cfg.DatabaseURL)
	assert.Equal(t, uint(9090), cfg.ServerPort)
	assert.Equal(t, uint(60), cfg.IdempotencyBucketSec)
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEST_DATABASE_URL", "")

	_, err := loadConfig("TEST")
	assert.Error(t, err)
}

func TestLoadConfigRejectsWindowShorterThanBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("IDEMPOTENCY_WINDOW_SEC", "30")
	t.Setenv("IDEMPOTENCY_BUCKET_SEC", "60")

	_, err := loadConfig("TEST")
	assert.Error(t, err)
}
