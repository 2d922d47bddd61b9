package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  type: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultTopics(), cfg.Saga.Topics)
	assert.Equal(t, 1, cfg.Saga.PublishRetry.MaxAttempts)
	assert.Equal(t, 300, cfg.Idempotency.TTLSeconds)
	assert.Equal(t, "allow", cfg.Idempotency.OnRedisError)
	assert.Equal(t, 0.10, cfg.Payment.MinimumAmount)
	assert.Empty(t, cfg.Saga.Participant("payment").Rules)
	assert.Equal(t, "checkout.saga.dlx", cfg.Broker.RabbitMQ.DeadLetterExchange)
	assert.Equal(t, 3, cfg.Broker.RabbitMQ.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Broker.RabbitMQ.Retry.InitialInterval)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
broker:
  type: kafka
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    group_id: checkout
    retry:
      max_attempts: 5
      initial_interval: 100ms
      max_interval: 1s
      multiplier: 1.5
saga:
  topics:
    payment:
      forward: pay-now
  publish_retry:
    max_attempts: 4
    initial_interval: 50ms
    max_interval: 500ms
    multiplier: 2
  participants:
    payment:
      rules:
        - "payload.totalAmount < 1000.0"
idempotency:
  claim_enabled: true
  on_redis_error: deny
payment:
  minimum_amount: 1.5
order:
  rate_limit:
    enabled: true
    rps: 5
    burst: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 100*time.Millisecond, cfg.Broker.Kafka.Retry.InitialInterval)
	assert.Equal(t, "pay-now", cfg.Saga.Topics.Payment.Forward)
	assert.Equal(t, "payment-success", cfg.Saga.Topics.Payment.Success)
	assert.Equal(t, 4, cfg.Saga.PublishRetry.MaxAttempts)
	assert.Equal(t, []string{"payload.totalAmount < 1000.0"}, cfg.Saga.Participant("payment").Rules)
	assert.True(t, cfg.Idempotency.ClaimEnabled)
	assert.Equal(t, "deny", cfg.Idempotency.OnRedisError)
	assert.Equal(t, 1.5, cfg.Payment.MinimumAmount)
	assert.True(t, cfg.Order.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.Order.RateLimit.RPS)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("LOGGING_LEVEL", "debug")
	path := writeConfig(t, `
broker:
  type: kafka
  kafka:
    brokers: ["ignored:9092"]
    group_id: checkout
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "unknown broker",
			body:  "broker:\n  type: nats\n",
			field: "broker.type",
		},
		{
			name:  "kafka without brokers",
			body:  "broker:\n  type: kafka\n  kafka:\n    group_id: g\n",
			field: "broker.kafka.brokers",
		},
		{
			name: "shared topic",
			body: `
broker:
  type: memory
saga:
  topics:
    payment:
      fail: inventory-fail
`,
			field: "is already used by",
		},
		{
			name:  "rabbitmq dead letters into its own exchange",
			body:  "broker:\n  type: rabbitmq\n  rabbitmq:\n    host: localhost\n    port: 5672\n    dead_letter_exchange: checkout.saga\n",
			field: "broker.rabbitmq.dead_letter_exchange",
		},
		{
			name:  "rabbitmq negative retry",
			body:  "broker:\n  type: rabbitmq\n  rabbitmq:\n    host: localhost\n    port: 5672\n    retry:\n      max_attempts: -1\n",
			field: "broker.rabbitmq.retry.max_attempts",
		},
		{
			name:  "bad redis fallback",
			body:  "broker:\n  type: memory\nidempotency:\n  on_redis_error: maybe\n",
			field: "idempotency.on_redis_error",
		},
		{
			name:  "negative minimum amount",
			body:  "broker:\n  type: memory\npayment:\n  minimum_amount: -1\n",
			field: "payment.minimum_amount",
		},
		{
			name:  "bad mongo uri",
			body:  "broker:\n  type: memory\ndatabase:\n  mongodb:\n    uri: http://localhost\n    database: checkout\n",
			field: "database.mongodb.uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
