package participant

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/idempotency"
	"checkout/internal/logger"
	"checkout/pkg/cel"
	"checkout/pkg/errors"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
	"checkout/pkg/tracing"
)

// Handler runs a Participant against envelopes from the bus. Neither
// operation returns an error: every outcome becomes a status and one history
// entry, and the envelope is always published.
type Handler struct {
	participant Participant
	guard       *idempotency.Guard
	policy      *cel.Policy
	publisher   Publisher
	topics      config.ParticipantTopics
	logger      logger.Logger
}

type HandlerOption func(*Handler)

// WithPolicy adds rules evaluated after the idempotency check and before the
// local transaction.
func WithPolicy(p *cel.Policy) HandlerOption {
	return func(h *Handler) {
		h.policy = p
	}
}

func NewHandler(p Participant, guard *idempotency.Guard, publisher Publisher, topics config.ParticipantTopics, log logger.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		participant: p,
		guard:       guard,
		publisher:   publisher,
		topics:      topics,
		logger:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register subscribes the forward and compensation topics.
func (h *Handler) Register(consumer broker.Consumer) {
	consumer.Subscribe(h.topics.Forward, h.HandleForward)
	consumer.Subscribe(h.topics.Compensate, h.HandleCompensate)
}

func (h *Handler) HandleForward(ctx context.Context, event models.Event) error {
	h.Process(ctx, event)
	return nil
}

func (h *Handler) HandleCompensate(ctx context.Context, event models.Event) error {
	h.Compensate(ctx, event)
	return nil
}

// Process is the forward path. The result is SUCCESS on the success topic or
// ROLLBACK_PENDING on the fail topic.
func (h *Handler) Process(ctx context.Context, event models.Event) models.Event {
	source := h.participant.Source()
	ctx, span := tracing.GetTracer(string(source)).Start(ctx, "participant.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.order_id", event.OrderID),
		attribute.String("saga.transaction_id", event.TransactionID),
	)

	start := time.Now()
	out := event.Clone()
	msgs := h.participant.Messages()

	err := h.forward(ctx, &out)

	out.Source = source
	topic := h.topics.Success
	if err == nil {
		out.Status = models.StatusSuccess
		out.AddHistory(msgs.Success)
		h.logger.InfowCtx(ctx, "Step executed", "source", source)
	} else {
		out.Status = models.StatusRollbackPending
		out.AddHistory(msgs.FailPrefix + errors.Message(err))
		topic = h.topics.Fail
		h.logFailure(ctx, "Step failed", err)
		span.RecordError(err)
	}

	metrics.IncSagaStep(string(source), "process", string(out.Status))
	metrics.ObserveSagaStepDuration(string(source), "process", time.Since(start))

	h.publish(ctx, topic, out)
	return out
}

func (h *Handler) forward(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return errors.BusinessRule(err.Error())
	}

	if err := h.guard.Check(ctx, *event); err != nil {
		return err
	}

	if h.policy.Len() > 0 {
		if err := h.policy.Check(ctx, *event); err != nil {
			metrics.IncPolicyEvaluation(string(h.participant.Source()), "rejected")
			return err
		}
		metrics.IncPolicyEvaluation(string(h.participant.Source()), "passed")
	}

	if err := safeCall(func() error { return h.participant.Execute(ctx, event) }); err != nil {
		return err
	}

	h.guard.Release(ctx, event.Key())
	return nil
}

// Compensate is the backward path. The result is always FAIL on the fail
// topic. An already compensated record counts as a successful rollback.
func (h *Handler) Compensate(ctx context.Context, event models.Event) models.Event {
	source := h.participant.Source()
	ctx, span := tracing.GetTracer(string(source)).Start(ctx, "participant.compensate")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.order_id", event.OrderID),
		attribute.String("saga.transaction_id", event.TransactionID),
	)

	start := time.Now()
	out := event.Clone()
	msgs := h.participant.Messages()

	err := safeCall(func() error { return h.participant.Compensate(ctx, &out) })

	out.Source = source
	out.Status = models.StatusFail
	switch {
	case err == nil:
		out.AddHistory(msgs.Rollback)
		h.logger.InfowCtx(ctx, "Step compensated", "source", source)
	case errors.Is(err, errors.ErrAlreadyCompensated):
		out.AddHistory(msgs.Rollback)
		h.logger.InfowCtx(ctx, "Step already compensated", "source", source)
	default:
		out.AddHistory(msgs.RollbackFailPrefix + errors.Message(err))
		h.logFailure(ctx, "Compensation failed", err)
		span.RecordError(err)
	}
	h.guard.Release(ctx, out.Key())

	metrics.IncSagaStep(string(source), "compensate", string(out.Status))
	metrics.ObserveSagaStepDuration(string(source), "compensate", time.Since(start))

	h.publish(ctx, h.topics.Fail, out)
	return out
}

func (h *Handler) publish(ctx context.Context, topic string, event models.Event) {
	if err := h.publisher.Publish(ctx, topic, event); err != nil {
		h.logger.ErrorwCtx(ctx, "Envelope not published, saga may stall",
			"error", err,
			"topic", topic,
			"status", event.Status,
		)
	}
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	kind := errors.Kind(err)
	switch kind {
	case errors.ErrBusinessRule.Code, errors.ErrDuplicateInProgress.Code:
		h.logger.WarnwCtx(ctx, msg, "error_kind", kind, "reason", errors.Message(err))
	default:
		h.logger.ErrorwCtx(ctx, msg, "error_kind", kind, "error", err)
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return fn()
}
