package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SagaStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_steps_total",
			Help: "Total number of participant invocations by outcome (count)",
		},
		[]string{"service", "operation", "status"},
	)

	SagaStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_step_duration_ms",
			Help:    "Duration of a participant invocation in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "operation"},
	)

	SagaTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_transitions_total",
			Help: "Total number of orchestrator routing decisions (count)",
		},
		[]string{"source", "status", "action"},
	)

	SagasStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sagas_started_total",
			Help: "Total number of sagas started by the orchestrator (count)",
		},
	)

	SagasFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sagas_finished_total",
			Help: "Total number of sagas that reached a terminal status (count)",
		},
		[]string{"status"},
	)

	IdempotencyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_rejections_total",
			Help: "Total number of forward events rejected as duplicates (count)",
		},
		[]string{"service", "reason"},
	)

	PolicyEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_evaluations_total",
			Help: "Total number of participant policy rule evaluations (count)",
		},
		[]string{"service", "result"},
	)

	PublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_failures_total",
			Help: "Total number of events that could not be published after all attempts (count)",
		},
		[]string{"service", "topic"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"service", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"service", "topic"},
	)

	BrokerMessagesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_rejected_total",
			Help: "Total number of deliveries rejected without a dead letter destination (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	BrokerMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_size_bytes",
			Help:    "Size of broker messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Duration of writing messages to the broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var (
	sagaOnce           sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	httpOnce           sync.Once
	databaseOnce       sync.Once
)

func RegisterSagaMetrics() {
	sagaOnce.Do(func() {
		prometheus.MustRegister(SagaStepsTotal)
		prometheus.MustRegister(SagaStepDuration)
		prometheus.MustRegister(SagaTransitionsTotal)
		prometheus.MustRegister(SagasStartedTotal)
		prometheus.MustRegister(SagasFinishedTotal)
		prometheus.MustRegister(IdempotencyRejectionsTotal)
		prometheus.MustRegister(PolicyEvaluationsTotal)
		prometheus.MustRegister(FallbackUsageTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(PublishFailuresTotal)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(BrokerMessagesReadTotal)
		prometheus.MustRegister(BrokerMessagesWrittenTotal)
		prometheus.MustRegister(BrokerMessagesRejectedTotal)
		prometheus.MustRegister(BrokerMessageSizeBytes)
		prometheus.MustRegister(BrokerWriteDuration)
		prometheus.MustRegister(KafkaConsumerLag)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterHTTPMetrics() {
	httpOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func RegisterDatabaseMetrics() {
	databaseOnce.Do(func() {
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func IncSagaStep(service, operation, status string) {
	SagaStepsTotal.WithLabelValues(service, operation, status).Inc()
}

func ObserveSagaStepDuration(service, operation string, duration time.Duration) {
	SagaStepDuration.WithLabelValues(service, operation).Observe(float64(duration.Milliseconds()))
}

func IncSagaTransition(source, status, action string) {
	SagaTransitionsTotal.WithLabelValues(source, status, action).Inc()
}

func IncIdempotencyRejection(service, reason string) {
	IdempotencyRejectionsTotal.WithLabelValues(service, reason).Inc()
}

func IncPolicyEvaluation(service, result string) {
	PolicyEvaluationsTotal.WithLabelValues(service, result).Inc()
}

func IncPublishFailure(service, topic string) {
	PublishFailuresTotal.WithLabelValues(service, topic).Inc()
}

func IncMessagesRead(service, topic string) {
	BrokerMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncMessagesWritten(service, topic string) {
	BrokerMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveMessageSize(service, topic, direction string, sizeBytes int) {
	BrokerMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveWriteDuration(service, topic string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

// ObserveQuery records one database call and its outcome.
func ObserveQuery(service, database, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	IncDatabaseQuery(service, database, operation, status)
	ObserveDatabaseQueryDuration(service, database, operation, time.Since(start))
}
