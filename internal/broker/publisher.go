package broker

import (
	"context"
	"time"

	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
	"checkout/pkg/retry"
)

// Publisher sends saga events through a Producer. With MaxAttempts above one
// it retries transport failures with exponential backoff; otherwise a failure
// is reported after the first attempt. It never blocks the caller beyond the
// configured policy.
type Publisher struct {
	producer    Producer
	policy      retry.Policy
	logger      logger.Logger
	serviceName string
}

func NewPublisher(producer Producer, cfg config.RetryConfig, serviceName string, log logger.Logger) *Publisher {
	policy := retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  cfg.MaxElapsedTime,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2.0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 200 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}

	return &Publisher{
		producer:    producer,
		policy:      policy,
		logger:      log,
		serviceName: serviceName,
	}
}

// Publish returns a TRANSPORT_FAILURE error when every attempt failed. The
// failure is logged and counted here, so callers may ignore it.
func (p *Publisher) Publish(ctx context.Context, topic string, event models.Event) error {
	var err error
	if p.policy.MaxAttempts == 1 {
		err = p.producer.Publish(ctx, topic, event)
	} else {
		err = retry.RetryWithCallback(ctx, p.policy, func() error {
			return p.producer.Publish(ctx, topic, event)
		}, func(attempt int, err error, nextDelay time.Duration) {
			metrics.RetryAttemptsTotal.WithLabelValues(p.serviceName, topic).Inc()
			p.logger.WarnwCtx(ctx, "Retrying event publish",
				"attempt", attempt,
				"max_attempts", p.policy.MaxAttempts,
				"next_delay", nextDelay,
				"error", err,
				"topic", topic,
			)
		})
	}
	if err == nil {
		p.logger.DebugwCtx(ctx, "Event published",
			"topic", topic,
			"source", event.Source,
			"status", event.Status,
		)
		return nil
	}

	if !errors.Is(err, errors.ErrTransport) {
		err = errors.ErrTransport.WithCause(err)
	}
	metrics.IncPublishFailure(p.serviceName, topic)
	p.logger.ErrorwCtx(ctx, "Failed to publish event",
		"error", err,
		"error_kind", errors.ErrTransport.Code,
		"topic", topic,
		"source", event.Source,
		"status", event.Status,
	)
	return err
}
