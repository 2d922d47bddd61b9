package saga

import (
	"context"
	"fmt"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
	"checkout/pkg/tracing"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}

// TerminalNotifier receives every saga exactly once per terminal envelope.
type TerminalNotifier interface {
	OnSagaTerminal(ctx context.Context, event models.Event) error
}

// BusNotifier hands terminal envelopes to the order service over the bus.
type BusNotifier struct {
	publisher Publisher
	topic     string
}

func NewBusNotifier(publisher Publisher, topic string) *BusNotifier {
	return &BusNotifier{publisher: publisher, topic: topic}
}

func (n *BusNotifier) OnSagaTerminal(ctx context.Context, event models.Event) error {
	return n.publisher.Publish(ctx, n.topic, event)
}

// Orchestrator consumes participant outcomes and publishes the next
// instruction. It keeps no per-saga state and writes no history.
type Orchestrator struct {
	router    *Router
	pipeline  *Pipeline
	publisher Publisher
	notifier  TerminalNotifier
	startSaga string
	logger    logger.Logger
}

func NewOrchestrator(pipeline *Pipeline, publisher Publisher, notifier TerminalNotifier, topics config.TopicsConfig, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		router:    NewRouter(pipeline),
		pipeline:  pipeline,
		publisher: publisher,
		notifier:  notifier,
		startSaga: topics.StartSaga,
		logger:    log,
	}
}

// Register subscribes the start topic and every participant outcome topic.
func (o *Orchestrator) Register(consumer broker.Consumer) {
	consumer.Subscribe(o.startSaga, o.Start)
	for _, step := range o.pipeline.Steps() {
		consumer.Subscribe(step.Topics.Success, o.Handle)
		consumer.Subscribe(step.Topics.Fail, o.Handle)
	}
}

// Start takes a new envelope from the initiator and sends it to the first
// step.
func (o *Orchestrator) Start(ctx context.Context, event models.Event) error {
	if err := event.Validate(); err != nil {
		return errors.ErrValidation.WithCause(err)
	}

	event.Source = models.SourceOrchestrator
	event.Status = models.StatusPending
	metrics.SagasStartedTotal.Inc()
	o.logger.InfowCtx(ctx, "Saga started")

	return o.Handle(ctx, event)
}

// Handle routes one envelope. Only an unroutable envelope is returned as an
// error; publish failures are logged by the publisher.
func (o *Orchestrator) Handle(ctx context.Context, event models.Event) error {
	ctx, span := tracing.GetTracer("orchestrator").Start(ctx, "saga.route")
	defer span.End()

	decision, err := o.router.Route(event)
	if err != nil {
		metrics.IncSagaTransition(string(event.Source), string(event.Status), "rejected")
		o.logger.ErrorwCtx(ctx, "Envelope cannot be routed",
			"error", err,
			"source", event.Source,
			"status", event.Status,
		)
		return errors.ErrValidation.WithCause(err)
	}
	metrics.IncSagaTransition(string(event.Source), string(event.Status), string(decision.Action))

	switch decision.Action {
	case ActionForward, ActionCompensate:
		o.logger.InfowCtx(ctx, "Routing envelope",
			"action", decision.Action,
			"from", event.Source,
			"status", event.Status,
			"to", decision.Step,
			"topic", decision.Topic,
		)
		_ = o.publisher.Publish(ctx, decision.Topic, event)
		return nil

	case ActionFinish:
		return o.finish(ctx, event, decision.Status)
	}
	return fmt.Errorf("unhandled action %s", decision.Action)
}

func (o *Orchestrator) finish(ctx context.Context, event models.Event, status models.Status) error {
	event.Source = models.SourceOrchestrator
	event.Status = status
	metrics.SagasFinishedTotal.WithLabelValues(string(status)).Inc()

	if status == models.StatusSuccess {
		o.logger.InfowCtx(ctx, "Saga finished successfully", "steps", event.Version())
	} else {
		o.logger.WarnwCtx(ctx, "Saga finished with errors", "steps", event.Version())
	}

	if err := o.notifier.OnSagaTerminal(ctx, event); err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to notify saga end", "error", err)
	}
	return nil
}
