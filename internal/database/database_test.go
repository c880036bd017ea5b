package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/glenn-app/glenn-backend/internal/config"
	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaDeclaresGuards(t *testing.T) {
	s := Schema()
	assert.Contains(t, s, "UNIQUE (tournament_id, participant_id)")
	assert.Contains(t, s, "UNIQUE (follower_id, following_id)")
	assert.Contains(t, s, "CHECK (balance >= 0)")
	assert.Contains(t, s, "tournament_slot_counters")
}

func TestNewPoolInvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{URL: "://not a dsn"}, logger.Nop())
	require.Error(t, err)
}

func TestMigrateIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, config.DatabaseConfig{URL: dsn}, logger.Nop())
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	// Applying twice must be harmless.
	require.NoError(t, Migrate(ctx, pool))
}
