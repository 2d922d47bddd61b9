package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/config"
	"checkout/internal/testinfra"
)

func TestRedisClaimRepository_SetNXAndDel(t *testing.T) {
	client := testinfra.Redis(t)
	repo := NewCircuitBreakerRepository(NewRepository(client), "redis-claims", config.CircuitBreakerConfig{Enabled: true})
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "saga:claim:test:o1:t1", time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetNX(ctx, "saga:claim:test:o1:t1", time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Del(ctx, "saga:claim:test:o1:t1"))

	ok, err = repo.SetNX(ctx, "saga:claim:test:o1:t1", time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "closed", repo.State())
}

func TestRedisClaimRepository_TTLExpires(t *testing.T) {
	client := testinfra.Redis(t)
	repo := NewRepository(client)
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "saga:claim:test:o2:t2", 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(2 * time.Second)

	ok, err = repo.SetNX(ctx, "saga:claim:test:o2:t2", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
