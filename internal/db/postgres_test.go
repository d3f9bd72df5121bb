package db

import (
	"testing"

	"donationledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	t.Run("defaults the search path to the ledger schema", func(t *testing.T) {
		cfg, err := PoolConfig(&types.Config{DatabaseURL: "postgres://user:pw@localhost:5432/app", DatabaseMaxConns: 4})
		require.NoError(t, err)

		assert.Equal(t, Schema, cfg.ConnConfig.RuntimeParams["search_path"])
		assert.Equal(t, int32(4), cfg.MaxConns)
	})

	t.Run("keeps an explicit search path", func(t *testing.T) {
		cfg, err := PoolConfig(&types.Config{DatabaseURL: "postgres://localhost:5432/app?search_path=custom"})
		require.NoError(t, err)

		assert.Equal(t, "custom", cfg.ConnConfig.RuntimeParams["search_path"])
	})

	t.Run("requires a url", func(t *testing.T) {
		_, err := PoolConfig(&types.Config{})
		assert.Error(t, err)
	})
}
