package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/pkg/models"
)

type flakyClaims struct {
	calls int
	err   error
}

func (f *flakyClaims) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.calls++
	return f.err == nil, f.err
}

func (f *flakyClaims) Del(ctx context.Context, key string) error {
	f.calls++
	return f.err
}

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestCircuitBreakerRepository_OpensAfterFailures(t *testing.T) {
	inner := &flakyClaims{err: fmt.Errorf("redis: connection refused")}
	repo := NewCircuitBreakerRepository(inner, "test-claims-open", breakerConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(ctx, "k", 1, time.Minute)
		require.Error(t, err)
	}
	assert.Equal(t, "open", repo.State())

	_, err := repo.SetNX(ctx, "k", 1, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, inner.calls)
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	inner := &flakyClaims{}
	repo := NewCircuitBreakerRepository(inner, "test-claims-disabled", config.CircuitBreakerConfig{})

	claimed, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, repo.Del(context.Background(), "k"))
	assert.Equal(t, "disabled", repo.State())
	assert.Equal(t, 2, inner.calls)
}

func TestGuard_OpenBreakerFallsBackToStore(t *testing.T) {
	inner := &flakyClaims{err: fmt.Errorf("redis: timeout")}
	claims := NewCircuitBreakerRepository(inner, "test-claims-guard", breakerConfig())
	g := NewGuard(models.SourceInventory, &fakeRecords{}, config.IdempotencyConfig{ClaimEnabled: true}, logger.NopLogger(),
		WithClaims(claims))

	for i := 0; i < 3; i++ {
		assert.NoError(t, g.Check(context.Background(), event("o1", fmt.Sprintf("t%d", i))))
	}
	assert.Equal(t, "open", claims.State())
	assert.Equal(t, 2, inner.calls)
}
