package broker

import (
	"fmt"

	"checkout/internal/config"
	"checkout/internal/constants"
	"checkout/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case constants.BrokerRabbitMQ:
		return NewRabbitMQProducer(cfg.RabbitMQ, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case constants.BrokerRabbitMQ:
		return NewRabbitMQConsumer(cfg.RabbitMQ, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// New returns a producer and consumer pair. The memory broker is shared by
// both sides so a single process can run the whole saga.
func New(cfg config.BrokerConfig, log logger.Logger) (Producer, Consumer, error) {
	if cfg.Type == constants.BrokerMemory {
		bus := NewMemoryBus(log)
		return bus, bus, nil
	}

	producer, err := NewProducer(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	consumer, err := NewConsumer(cfg, log)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	return producer, consumer, nil
}
