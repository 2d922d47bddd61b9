package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultStartSagaTopic    = "start-saga"
	DefaultNotifyEndingTopic = "notify-ending"
	DefaultRabbitMQExchange  = "checkout.saga"
	DefaultRabbitMQDLX       = "checkout.saga.dlx"
)

const (
	DefaultMongoDBName      = "checkout"
	OrderCollection         = "orders"
	EventCollection         = "events"
	DefaultClaimTTLSeconds  = 300
	CacheKeyPrefixClaim     = "saga:claim:"
	TransactionIDSeparator  = "_"
	DefaultHistoryPageLimit = 100
)

const (
	DefaultMinimumPaymentAmount = 0.10
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
	BrokerMemory   = "memory"
)

const (
	ServiceOrchestrator      = "orchestrator-service"
	ServiceProductValidation = "product-validation-service"
	ServicePayment           = "payment-service"
	ServiceInventory         = "inventory-service"
	ServiceOrder             = "order-service"
)
