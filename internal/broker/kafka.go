package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"checkout/internal/config"
	"checkout/internal/constants"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/logging"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
	"checkout/pkg/retry"
	"checkout/pkg/tracing"
)

const (
	headerDLQReason      = "dlq_reason"
	headerDLQSourceTopic = "dlq_source_topic"
	headerDLQTimestamp   = "dlq_timestamp"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

// NewKafkaProducer keys every message by transaction id. With the hash
// balancer all events of one saga land on the same partition, which keeps
// them ordered for the consumer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	return p.publish(ctx, topic, event, nil)
}

func (p *KafkaProducer) publish(ctx context.Context, topic string, event models.Event, extra []kafka.Header) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, extra)

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(event.TransactionID),
			Value:   body,
			Headers: headers,
			Time:    start,
		},
	)
	metrics.ObserveWriteDuration(p.serviceName, topic, time.Since(start))

	if err != nil {
		return errors.ErrTransport.WithCause(fmt.Errorf("failed to write kafka message to %s: %w", topic, err))
	}

	metrics.IncMessagesWritten(p.serviceName, topic)
	metrics.ObserveMessageSize(p.serviceName, topic, "out", len(body))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	logger      logger.Logger
	dlqProducer *KafkaProducer
	serviceName string

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	readers  []*kafka.Reader
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
		handlers:    make(map[string]HandlerFunc),
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if c.dlqProducer != nil {
		c.dlqProducer.SetServiceName(name)
	}
}

func (c *KafkaConsumer) Subscribe(topic string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

// Run starts one reader per subscribed topic. Within a topic messages are
// handled one at a time in partition order.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if len(c.handlers) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("kafka consumer has no subscriptions")
	}
	g, gctx := errgroup.WithContext(ctx)
	for topic, handler := range c.handlers {
		c.logger.Infow("Creating Kafka reader",
			"topic", topic,
			"brokers", c.cfg.Brokers,
			"group_id", c.cfg.GroupID,
			"service_name", c.serviceName,
		)
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
		c.readers = append(c.readers, reader)

		topic, handler := topic, handler
		g.Go(func() error {
			c.consume(gctx, reader, topic, handler)
			return nil
		})
	}
	c.mu.Unlock()

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *KafkaConsumer) consume(ctx context.Context, reader *kafka.Reader, topic string, handler HandlerFunc) {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			time.Sleep(time.Second)
			continue
		}

		metrics.IncMessagesRead(c.serviceName, topic)
		metrics.ObserveMessageSize(c.serviceName, topic, "in", len(m.Value))
		if lag := reader.Stats().Lag; lag >= 0 {
			metrics.SetKafkaConsumerLag(c.serviceName, topic, m.Partition, lag)
		}

		var event models.Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			c.logger.ErrorwCtx(consumeCtx, "Failed to unmarshal event",
				"error", err,
				"topic", topic,
			)
			c.commit(consumeCtx, reader, m, topic)
			continue
		}

		c.dispatch(ctx, reader, m, topic, event, handler)
	}
}

func (c *KafkaConsumer) dispatch(ctx context.Context, reader *kafka.Reader, m kafka.Message, topic string, event models.Event, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume "+topic, m.Headers)
	defer span.End()

	if traceID := tracing.TraceID(msgCtx); traceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, traceID)
	}
	msgCtx = logging.WithSaga(msgCtx, event.OrderID, event.TransactionID)
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	err := processWithRetry(msgCtx, c.logger, c.serviceName, topic, retryPolicy(c.cfg.Retry), func() error {
		return handler(msgCtx, event)
	})
	if err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to process event after retries",
			"error", err,
			"topic", topic,
		)
		if c.dlqProducer != nil {
			if dlqErr := c.sendToDLQ(msgCtx, event, err, topic); dlqErr != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to send event to DLQ",
					"error", dlqErr,
					"topic", topic,
				)
			}
		} else {
			c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing message to avoid blocking",
				"topic", topic,
			)
		}
	}

	c.commit(msgCtx, reader, m, topic)
}

func (c *KafkaConsumer) commit(ctx context.Context, reader *kafka.Reader, m kafka.Message, topic string) {
	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", topic,
		)
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for _, r := range c.readers {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.readers = nil
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, event models.Event, originalErr error, sourceTopic string) error {
	headers := []kafka.Header{
		{Key: headerDLQReason, Value: []byte(originalErr.Error())},
		{Key: headerDLQSourceTopic, Value: []byte(sourceTopic)},
		{Key: headerDLQTimestamp, Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	}

	if err := c.dlqProducer.publish(ctx, c.cfg.DLQTopic, event, headers); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, "max_retries_exceeded").Inc()
	c.logger.InfowCtx(ctx, "Event sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", originalErr.Error(),
	)

	return nil
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

// processWithRetry runs fn under policy and turns a handler panic into a
// fatal error so it is not retried.
func processWithRetry(ctx context.Context, log logger.Logger, service, topic string, policy retry.Policy, fn func() error) error {
	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				log.ErrorwCtx(ctx, "Panic recovered during event processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return fn()
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(service, topic).Inc()
		log.WarnwCtx(ctx, "Retrying event processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}
