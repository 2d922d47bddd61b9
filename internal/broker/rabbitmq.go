package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/logging"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
	"checkout/pkg/tracing"
)

func rabbitURL(cfg config.RabbitMQConfig) string {
	vhost := cfg.VHost
	if vhost == "" || vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, vhost)
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// RabbitMQProducer publishes every saga topic as a routing key on one durable
// topic exchange.
type RabbitMQProducer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	logger      logger.Logger
	serviceName string

	mu sync.Mutex
}

func NewRabbitMQProducer(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQProducer, error) {
	conn, err := amqp.Dial(rabbitURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &RabbitMQProducer{
		conn:        conn,
		channel:     ch,
		exchange:    cfg.Exchange,
		logger:      log,
		serviceName: "unknown",
	}, nil
}

func (p *RabbitMQProducer) SetServiceName(name string) {
	p.serviceName = name
}

func (p *RabbitMQProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: event.TransactionID,
		Timestamp:     time.Now(),
		Headers:       tracing.InjectAMQPHeaders(ctx, nil),
		Body:          body,
	}

	start := time.Now()
	p.mu.Lock()
	err = p.channel.Publish(p.exchange, topic, false, false, msg)
	p.mu.Unlock()
	metrics.ObserveWriteDuration(p.serviceName, topic, time.Since(start))

	if err != nil {
		return errors.ErrTransport.WithCause(fmt.Errorf("failed to publish to %s: %w", topic, err))
	}

	metrics.IncMessagesWritten(p.serviceName, topic)
	metrics.ObserveMessageSize(p.serviceName, topic, "out", len(body))
	return nil
}

func (p *RabbitMQProducer) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if closeErr := p.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// RabbitMQConsumer binds one durable queue per subscribed topic. Replicas of
// a service share QueuePrefix and therefore compete for the same queue.
type RabbitMQConsumer struct {
	cfg         config.RabbitMQConfig
	conn        *amqp.Connection
	logger      logger.Logger
	serviceName string

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	channels []*amqp.Channel
}

func NewRabbitMQConsumer(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(rabbitURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return &RabbitMQConsumer{
		cfg:         cfg,
		conn:        conn,
		logger:      log,
		serviceName: "unknown",
		handlers:    make(map[string]HandlerFunc),
	}, nil
}

func (c *RabbitMQConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *RabbitMQConsumer) Subscribe(topic string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

func (c *RabbitMQConsumer) queueName(topic string) string {
	prefix := c.cfg.QueuePrefix
	if prefix == "" {
		prefix = c.serviceName
	}
	return prefix + "." + topic
}

func (c *RabbitMQConsumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if len(c.handlers) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("rabbitmq consumer has no subscriptions")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for topic, handler := range c.handlers {
		deliveries, err := c.bind(topic)
		if err != nil {
			c.mu.Unlock()
			cancel()
			_ = g.Wait()
			return err
		}

		topic, handler := topic, handler
		g.Go(func() error {
			return c.consume(gctx, deliveries, topic, handler)
		})
	}
	c.mu.Unlock()

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *RabbitMQConsumer) bind(topic string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	c.channels = append(c.channels, ch)

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set qos: %w", err)
		}
	}
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", c.cfg.Exchange, err)
	}

	queue := c.queueName(topic)
	var args amqp.Table
	if dlx := c.cfg.DeadLetterExchange; dlx != "" {
		if err := declareExchange(ch, dlx); err != nil {
			return nil, fmt.Errorf("failed to declare dead letter exchange %s: %w", dlx, err)
		}
		dlq := queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, topic, dlx, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", dlq, err)
		}
		args = amqp.Table{"x-dead-letter-exchange": dlx}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, c.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	c.logger.Infow("Bound RabbitMQ queue",
		"topic", topic,
		"queue", queue,
		"exchange", c.cfg.Exchange,
		"service_name", c.serviceName,
	)

	return ch.Consume(queue, c.serviceName, false, false, false, false, nil)
}

func (c *RabbitMQConsumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, topic string, handler HandlerFunc) error {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	for {
		select {
		case <-ctx.Done():
			c.logger.InfowCtx(consumeCtx, "Stopped consuming",
				"topic", topic,
				"reason", "context canceled",
			)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("rabbitmq delivery channel for %s closed", topic)
			}
			c.handleDelivery(ctx, d, topic, handler)
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, topic string, handler HandlerFunc) {
	metrics.IncMessagesRead(c.serviceName, topic)
	metrics.ObserveMessageSize(c.serviceName, topic, "in", len(d.Body))

	var event models.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to unmarshal event",
			"error", err,
			"topic", topic,
		)
		c.reject(d, topic, "unmarshal_error")
		return
	}

	msgCtx, span := tracing.StartSpanFromAMQPDelivery(ctx, "amqp.consume "+topic, d.Headers)
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
		c.logger.ErrorwCtx(msgCtx, "Failed to process event after retries, rejecting",
			"error", err,
			"topic", topic,
			"dead_letter_exchange", c.cfg.DeadLetterExchange,
		)
		c.reject(d, topic, "max_retries_exceeded")
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to ack delivery",
			"error", err,
			"topic", topic,
		)
	}
}

// reject nacks without requeue. The broker routes the delivery to the dead
// letter exchange when one is configured and drops it otherwise.
func (c *RabbitMQConsumer) reject(d amqp.Delivery, topic, reason string) {
	if c.cfg.DeadLetterExchange != "" {
		metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, topic, reason).Inc()
	} else {
		metrics.BrokerMessagesRejectedTotal.WithLabelValues(c.serviceName, topic, reason).Inc()
	}
	if err := d.Nack(false, false); err != nil {
		c.logger.Errorw("Failed to nack delivery",
			"error", err,
			"topic", topic,
		)
	}
}

func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for _, ch := range c.channels {
		if closeErr := ch.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.channels = nil
	if c.conn != nil {
		if closeErr := c.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
