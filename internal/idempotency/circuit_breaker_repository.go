package idempotency

import (
	"context"
	"fmt"
	"time"

	"checkout/internal/config"
	"checkout/pkg/circuitbreaker"
)

// CircuitBreakerRepository stops calling Redis after repeated failures. An
// open breaker surfaces as an ordinary claim error, so the guard's
// on_redis_error fallback applies.
type CircuitBreakerRepository struct {
	repo ClaimRepository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo ClaimRepository, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromSettings(name, cfg)),
	}
}

func (r *CircuitBreakerRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if r.cb == nil {
		return r.repo.SetNX(ctx, key, value, ttl)
	}

	result, err := r.cb.Execute(ctx, func() (interface{}, error) {
		return r.repo.SetNX(ctx, key, value, ttl)
	})
	if err != nil {
		if r.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for %s: %w", r.cb.Name(), err)
		}
		return false, err
	}

	claimed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("claim repository returned %T, want bool", result)
	}
	return claimed, nil
}

func (r *CircuitBreakerRepository) Del(ctx context.Context, key string) error {
	if r.cb == nil {
		return r.repo.Del(ctx, key)
	}

	_, err := r.cb.Execute(ctx, func() (interface{}, error) {
		return nil, r.repo.Del(ctx, key)
	})
	return err
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
