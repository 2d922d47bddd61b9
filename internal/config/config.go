package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Saga           SagaConfig
	Idempotency    IdempotencyConfig
	Payment        PaymentConfig
	Order          OrderConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type     string         `mapstructure:"type"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Exchange string `mapstructure:"exchange"`
	// QueuePrefix namespaces the durable queue bound per topic, usually the
	// service name, so replicas of one service share a queue.
	QueuePrefix string `mapstructure:"queue_prefix"`
	Prefetch    int    `mapstructure:"prefetch"`
	// DeadLetterExchange receives deliveries rejected after Retry is
	// exhausted, each topic landing in "<queue>.dlq". Empty drops them.
	DeadLetterExchange string      `mapstructure:"dead_letter_exchange"`
	Retry              RetryConfig `mapstructure:"retry"`
}

type KafkaConfig struct {
	Brokers  []string    `mapstructure:"brokers"`
	GroupID  string      `mapstructure:"group_id"`
	DLQTopic string      `mapstructure:"dlq_topic"`
	Retry    RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SagaConfig holds every topic name and per-participant setting. It is built
// once at startup and passed to each component.
type SagaConfig struct {
	Topics       TopicsConfig                 `mapstructure:"topics"`
	PublishRetry RetryConfig                  `mapstructure:"publish_retry"`
	Participants map[string]ParticipantConfig `mapstructure:"participants"`
}

type TopicsConfig struct {
	StartSaga         string            `mapstructure:"start_saga"`
	NotifyEnding      string            `mapstructure:"notify_ending"`
	ProductValidation ParticipantTopics `mapstructure:"product_validation"`
	Payment           ParticipantTopics `mapstructure:"payment"`
	Inventory         ParticipantTopics `mapstructure:"inventory"`
}

// ParticipantTopics are the four topics one participant owns: the
// orchestrator publishes to Forward and Compensate, the participant publishes
// to Success and Fail.
type ParticipantTopics struct {
	Forward    string `mapstructure:"forward"`
	Compensate string `mapstructure:"compensate"`
	Success    string `mapstructure:"success"`
	Fail       string `mapstructure:"fail"`
}

type ParticipantConfig struct {
	// Rules are CEL boolean expressions evaluated before the local
	// transaction. A false result rejects the step.
	Rules []string `mapstructure:"rules"`
}

type IdempotencyConfig struct {
	// ClaimEnabled adds a Redis in-flight claim in front of the store lookup.
	ClaimEnabled bool   `mapstructure:"claim_enabled"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnRedisError string `mapstructure:"on_redis_error"`
}

type PaymentConfig struct {
	MinimumAmount float64 `mapstructure:"minimum_amount"`
}

type OrderConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// Participant returns the settings for name, or the zero value.
func (c SagaConfig) Participant(name string) ParticipantConfig {
	return c.Participants[name]
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
