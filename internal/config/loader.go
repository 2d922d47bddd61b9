package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"checkout/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", "10s")
	v.SetDefault("server.write_timeout_seconds", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.kafka.retry.max_attempts", 3)
	v.SetDefault("broker.kafka.retry.initial_interval", "1s")
	v.SetDefault("broker.kafka.retry.max_interval", "30s")
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)
	v.SetDefault("broker.rabbitmq.exchange", constants.DefaultRabbitMQExchange)
	v.SetDefault("broker.rabbitmq.prefetch", 10)
	v.SetDefault("broker.rabbitmq.dead_letter_exchange", constants.DefaultRabbitMQDLX)
	v.SetDefault("broker.rabbitmq.retry.max_attempts", 3)
	v.SetDefault("broker.rabbitmq.retry.initial_interval", "1s")
	v.SetDefault("broker.rabbitmq.retry.max_interval", "30s")
	v.SetDefault("broker.rabbitmq.retry.multiplier", 2.0)

	topics := DefaultTopics()
	v.SetDefault("saga.topics.start_saga", topics.StartSaga)
	v.SetDefault("saga.topics.notify_ending", topics.NotifyEnding)
	for key, pt := range map[string]ParticipantTopics{
		"product_validation": topics.ProductValidation,
		"payment":            topics.Payment,
		"inventory":          topics.Inventory,
	} {
		v.SetDefault("saga.topics."+key+".forward", pt.Forward)
		v.SetDefault("saga.topics."+key+".compensate", pt.Compensate)
		v.SetDefault("saga.topics."+key+".success", pt.Success)
		v.SetDefault("saga.topics."+key+".fail", pt.Fail)
	}
	v.SetDefault("saga.publish_retry.max_attempts", 1)
	v.SetDefault("saga.publish_retry.initial_interval", "200ms")
	v.SetDefault("saga.publish_retry.max_interval", "5s")
	v.SetDefault("saga.publish_retry.multiplier", 2.0)

	v.SetDefault("idempotency.ttl_seconds", constants.DefaultClaimTTLSeconds)
	v.SetDefault("idempotency.on_redis_error", constants.FallbackAllow)
	v.SetDefault("payment.minimum_amount", constants.DefaultMinimumPaymentAmount)
}

// DefaultTopics returns the topic layout used when the config file does not
// override it.
func DefaultTopics() TopicsConfig {
	participant := func(prefix string) ParticipantTopics {
		return ParticipantTopics{
			Forward:    prefix + "-start",
			Compensate: prefix + "-rollback",
			Success:    prefix + "-success",
			Fail:       prefix + "-fail",
		}
	}
	return TopicsConfig{
		StartSaga:         constants.DefaultStartSagaTopic,
		NotifyEnding:      constants.DefaultNotifyEndingTopic,
		ProductValidation: participant("product-validation"),
		Payment:           participant("payment"),
		Inventory:         participant("inventory"),
	}
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.type", "BROKER_TYPE")
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	v.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	v.BindEnv("broker.rabbitmq.host", "BROKER_RABBITMQ_HOST")
	v.BindEnv("broker.rabbitmq.port", "BROKER_RABBITMQ_PORT")
	v.BindEnv("broker.rabbitmq.user", "BROKER_RABBITMQ_USER")
	v.BindEnv("broker.rabbitmq.password", "BROKER_RABBITMQ_PASSWORD")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles values viper cannot map on its own, such as a
// comma separated broker list.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := v.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}
}
