package idempotency

import (
	"context"
	"fmt"
	"time"

	"checkout/internal/config"
	"checkout/internal/constants"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
)

// RecordChecker is the participant store lookup the guard relies on.
type RecordChecker interface {
	ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error)
}

// Guard rejects a second forward execution for the same saga instance. The
// participant store is authoritative; the optional Redis claim only closes the
// window between two concurrent deliveries and the first store write.
type Guard struct {
	source     models.Source
	records    RecordChecker
	claims     ClaimRepository
	cfg        config.IdempotencyConfig
	duplicated string
	logger     logger.Logger
}

type Option func(*Guard)

// WithClaims enables the Redis in-flight claim.
func WithClaims(repo ClaimRepository) Option {
	return func(g *Guard) {
		g.claims = repo
	}
}

// WithDuplicateMessage sets the history text used for a duplicate.
func WithDuplicateMessage(msg string) Option {
	return func(g *Guard) {
		g.duplicated = msg
	}
}

func NewGuard(source models.Source, records RecordChecker, cfg config.IdempotencyConfig, log logger.Logger, opts ...Option) *Guard {
	g := &Guard{
		source:     source,
		records:    records,
		cfg:        cfg,
		duplicated: "duplicate detected",
		logger:     log,
	}
	for _, opt := range opts {
		opt(g)
	}
	if !cfg.ClaimEnabled {
		g.claims = nil
	}
	return g
}

func (g *Guard) HasExistingRecord(ctx context.Context, orderID, transactionID string) (bool, error) {
	return g.records.ExistsBy(ctx, orderID, transactionID)
}

// Check returns a DUPLICATE_IN_PROGRESS error when the saga instance was
// already seen by this participant. Any other error is infrastructure and is
// returned unchanged.
func (g *Guard) Check(ctx context.Context, event models.Event) error {
	exists, err := g.HasExistingRecord(ctx, event.OrderID, event.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to check existing record: %w", err)
	}
	if exists {
		metrics.IncIdempotencyRejection(string(g.source), "record_exists")
		return errors.ErrDuplicateInProgress.WithDetail("message", g.duplicated)
	}

	if g.claims == nil {
		return nil
	}

	claimed, err := g.claims.SetNX(ctx, g.claimKey(event.Key()), time.Now().Unix(), g.ttl())
	if err != nil {
		return g.handleClaimError(ctx, err)
	}
	if !claimed {
		metrics.IncIdempotencyRejection(string(g.source), "claim_held")
		return errors.ErrDuplicateInProgress.WithDetail("message", g.duplicated)
	}
	return nil
}

// Release drops the claim for key so a later delivery is judged by the store
// alone.
func (g *Guard) Release(ctx context.Context, key models.Key) {
	if g.claims == nil {
		return
	}
	if err := g.claims.Del(ctx, g.claimKey(key)); err != nil {
		g.logger.WarnwCtx(ctx, "Failed to release idempotency claim", "error", err)
	}
}

func (g *Guard) handleClaimError(ctx context.Context, err error) error {
	if g.cfg.OnRedisError == constants.FallbackDeny {
		metrics.FallbackUsageTotal.WithLabelValues(string(g.source), "deny_on_error", "redis").Inc()
		return errors.ErrServiceUnavailable.WithCause(err).AsRetryable()
	}

	metrics.FallbackUsageTotal.WithLabelValues(string(g.source), "allow_on_error", "redis").Inc()
	g.logger.WarnwCtx(ctx, "Redis error during idempotency claim, relying on store check (fallback: allow)",
		"error", err,
	)
	return nil
}

func (g *Guard) claimKey(key models.Key) string {
	return constants.CacheKeyPrefixClaim + string(g.source) + ":" + key.String()
}

func (g *Guard) ttl() time.Duration {
	if g.cfg.TTLSeconds <= 0 {
		return time.Duration(constants.DefaultClaimTTLSeconds) * time.Second
	}
	return time.Duration(g.cfg.TTLSeconds) * time.Second
}
