package broker

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/internal/testinfra"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

func TestKafka_RoundTripAndDLQ(t *testing.T) {
	brokers := testinfra.Kafka(t)
	log := logger.NopLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:  brokers,
		GroupID:  "checkout-test",
		DLQTopic: "checkout-dlq",
		Retry:    config.RetryConfig{MaxAttempts: 1},
	}

	producer := NewKafkaProducer(cfg, log)
	producer.SetServiceName("test")
	defer producer.Close()

	ok := testEvent("1700000000000_ok")
	ok.AddHistory("Saga started!")
	require.NoError(t, producer.Publish(ctx, "payment-start", ok))
	require.NoError(t, producer.Publish(ctx, "payment-start", testEvent("1700000000000_bad")))

	consumer := NewKafkaConsumer(cfg, log)
	consumer.SetServiceName("test")
	defer consumer.Close()

	received := make(chan models.Event, 2)
	consumer.Subscribe("payment-start", func(ctx context.Context, e models.Event) error {
		received <- e
		if e.TransactionID == "1700000000000_bad" {
			return errors.BusinessRule("rejected for the test")
		}
		return nil
	})

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	got := make(map[string]models.Event)
	for len(got) < 2 {
		select {
		case e := <-received:
			got[e.TransactionID] = e
		case <-ctx.Done():
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}

	require.Contains(t, got, "1700000000000_bad")
	require.Contains(t, got, "1700000000000_ok")
	require.Len(t, got["1700000000000_ok"].EventHistory, 1)
	assert.Equal(t, "Saga started!", got["1700000000000_ok"].EventHistory[0].Message)

	dlq := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     cfg.DLQTopic,
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	defer dlq.Close()

	m, err := dlq.ReadMessage(ctx)
	require.NoError(t, err)
	stop()
	<-done
	assert.Equal(t, []byte("1700000000000_bad"), m.Key)

	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "payment-start", headers[headerDLQSourceTopic])
	assert.Contains(t, headers[headerDLQReason], "rejected for the test")
}
