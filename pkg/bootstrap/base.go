package bootstrap

import (
	"context"
	"fmt"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/logger"
)

type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Producer  broker.Producer
	Consumer  broker.Consumer
	Publisher *broker.Publisher

	serviceName string
}

func NewBase(cfg *config.Config, log logger.Logger, serviceName string) *Base {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &Base{
		Config:      cfg,
		Logger:      log,
		serviceName: serviceName,
	}
}

func (b *Base) ServiceName() string {
	return b.serviceName
}

// InitBroker connects the producer and consumer for the configured broker
// type and wraps the producer in a retrying Publisher.
func (b *Base) InitBroker() error {
	producer, consumer, err := broker.New(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker clients: %w", err)
	}

	if named, ok := producer.(interface{ SetServiceName(string) }); ok {
		named.SetServiceName(b.serviceName)
	}
	consumer.SetServiceName(b.serviceName)

	b.Producer = producer
	b.Consumer = consumer
	b.Publisher = broker.NewPublisher(producer, b.Config.Saga.PublishRetry, b.serviceName, b.Logger)
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	// The memory broker is both sides; closing it once is enough.
	if b.Producer != nil && any(b.Producer) != any(b.Consumer) {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Infow("Shutting down application...", "service", b.serviceName)

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Infow("Application exited successfully", "service", b.serviceName)
	return nil
}
