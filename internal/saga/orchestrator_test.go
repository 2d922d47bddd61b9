package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/idempotency"
	"checkout/internal/inventory"
	"checkout/internal/logger"
	"checkout/internal/participant"
	"checkout/internal/payment"
	"checkout/internal/productvalidation"
	"checkout/pkg/models"
)

type harness struct {
	bus        *broker.MemoryBus
	topics     config.TopicsConfig
	catalog    *productvalidation.MemoryRepository
	payments   *payment.MemoryRepository
	stock      *inventory.MemoryRepository
	terminated []models.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NopLogger()
	h := &harness{
		bus:      broker.NewMemoryBus(log),
		topics:   config.DefaultTopics(),
		catalog:  productvalidation.NewMemoryRepository("COMIC_BOOKS", "BOOKS", "MOVIES", "MUSIC"),
		payments: payment.NewMemoryRepository(),
		stock:    inventory.NewMemoryRepository(map[string]int64{"BOOKS": 10, "MOVIES": 1}),
	}
	publisher := broker.NewPublisher(h.bus, config.RetryConfig{}, "test", log)

	steps := []struct {
		p       participant.Participant
		records idempotency.RecordChecker
		topics  config.ParticipantTopics
	}{
		{productvalidation.NewService(h.catalog, h.catalog, log), h.catalog, h.topics.ProductValidation},
		{payment.NewService(h.payments, config.PaymentConfig{}, log), h.payments, h.topics.Payment},
		{inventory.NewService(h.stock, log), h.stock, h.topics.Inventory},
	}
	for _, s := range steps {
		guard := idempotency.NewGuard(s.p.Source(), s.records, config.IdempotencyConfig{}, log,
			idempotency.WithDuplicateMessage(s.p.Messages().Duplicate))
		participant.NewHandler(s.p, guard, publisher, s.topics, log).Register(h.bus)
	}

	orchestrator := NewOrchestrator(DefaultPipeline(h.topics), publisher,
		NewBusNotifier(publisher, h.topics.NotifyEnding), h.topics, log)
	orchestrator.Register(h.bus)

	h.bus.Subscribe(h.topics.NotifyEnding, func(ctx context.Context, e models.Event) error {
		h.terminated = append(h.terminated, e)
		return nil
	})
	return h
}

func (h *harness) run(t *testing.T, event models.Event) models.Event {
	t.Helper()
	ctx := context.Background()
	before := len(h.terminated)
	require.NoError(t, h.bus.Publish(ctx, h.topics.StartSaga, event))
	require.NoError(t, h.bus.Drain(ctx))
	require.Len(t, h.terminated, before+1, "saga must end exactly once")
	return h.terminated[len(h.terminated)-1]
}

func newOrder(code string, unitValue float64, quantity int64) models.Event {
	return models.Event{
		OrderID:       "order-1",
		TransactionID: "1700000000000_5f1c",
		Payload: models.Order{
			ID:            "order-1",
			TransactionID: "1700000000000_5f1c",
			Products: []models.OrderProduct{
				{Product: models.Product{Code: code, UnitValue: unitValue}, Quantity: quantity},
			},
		},
	}
}

func historyOf(e models.Event) []string {
	out := make([]string, len(e.EventHistory))
	for i, h := range e.EventHistory {
		out[i] = string(h.Source) + ":" + string(h.Status)
	}
	return out
}

func TestOrchestrator_Success(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, newOrder("BOOKS", 50, 2))

	assert.Equal(t, models.SourceOrchestrator, final.Source)
	assert.Equal(t, models.StatusSuccess, final.Status)
	assert.True(t, final.IsTerminal())
	assert.Equal(t, []string{
		"PRODUCT_VALIDATION_SERVICE:SUCCESS",
		"PAYMENT_SERVICE:SUCCESS",
		"INVENTORY_SERVICE:SUCCESS",
	}, historyOf(final))
	assert.Equal(t, 100.0, final.Payload.TotalAmount)
	assert.Equal(t, int64(2), final.Payload.TotalItems)
	assert.Equal(t, int64(8), h.stock.Available("BOOKS"))

	assert.Equal(t, []string{
		"start-saga",
		"product-validation-start", "product-validation-success",
		"payment-start", "payment-success",
		"inventory-start", "inventory-success",
		"notify-ending",
	}, h.bus.Topics())
}

func TestOrchestrator_PaymentFailureCompensatesBackwards(t *testing.T) {
	h := newHarness(t)
	order := newOrder("BOOKS", 0.05, 1)

	final := h.run(t, order)

	assert.Equal(t, models.SourceOrchestrator, final.Source)
	assert.Equal(t, models.StatusFail, final.Status)
	assert.Equal(t, []string{
		"PRODUCT_VALIDATION_SERVICE:SUCCESS",
		"PAYMENT_SERVICE:ROLLBACK_PENDING",
		"PAYMENT_SERVICE:FAIL",
		"PRODUCT_VALIDATION_SERVICE:FAIL",
	}, historyOf(final))
	assert.Equal(t, "Fail trying to realize payment: Amount must be greater than 0.10!", final.EventHistory[1].Message)

	assert.Equal(t, []string{
		"start-saga",
		"product-validation-start", "product-validation-success",
		"payment-start", "payment-fail",
		"payment-rollback", "payment-fail",
		"product-validation-rollback", "product-validation-fail",
		"notify-ending",
	}, h.bus.Topics())

	p, err := h.payments.FindBy(context.Background(), order.OrderID, order.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, p.Status)
	assert.Equal(t, int64(10), h.stock.Available("BOOKS"))

	v, err := h.catalog.FindBy(context.Background(), order.OrderID, order.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, productvalidation.StatusCompensated, v.Status)
}

func TestOrchestrator_InventoryFailureCompensatesEveryStep(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, newOrder("MOVIES", 20, 3))

	assert.Equal(t, models.StatusFail, final.Status)
	assert.Equal(t, []string{
		"PRODUCT_VALIDATION_SERVICE:SUCCESS",
		"PAYMENT_SERVICE:SUCCESS",
		"INVENTORY_SERVICE:ROLLBACK_PENDING",
		"INVENTORY_SERVICE:FAIL",
		"PAYMENT_SERVICE:FAIL",
		"PRODUCT_VALIDATION_SERVICE:FAIL",
	}, historyOf(final))
	assert.Equal(t, "Fail to update inventory: Product MOVIES is out of stock!", final.EventHistory[2].Message)
	assert.Equal(t, int64(1), h.stock.Available("MOVIES"))
}

func TestOrchestrator_UnknownProductFailsAtFirstStep(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, newOrder("TOYS", 10, 1))

	assert.Equal(t, models.StatusFail, final.Status)
	assert.Equal(t, []string{
		"PRODUCT_VALIDATION_SERVICE:ROLLBACK_PENDING",
		"PRODUCT_VALIDATION_SERVICE:FAIL",
	}, historyOf(final))
	assert.Zero(t, h.payments.Count())
}

func TestOrchestrator_DuplicateStartDoesNotRepeatWork(t *testing.T) {
	h := newHarness(t)
	order := newOrder("BOOKS", 50, 2)

	first := h.run(t, order)
	require.Equal(t, models.StatusSuccess, first.Status)

	second := h.run(t, order)

	assert.Equal(t, models.StatusFail, second.Status)
	assert.Equal(t, "Fail to validate products: There's another validation in progress for this order.",
		second.EventHistory[0].Message)
	assert.Equal(t, 1, h.catalog.Count())
	assert.Equal(t, 1, h.payments.Count())
	assert.Equal(t, int64(8), h.stock.Available("BOOKS"))
}

func TestOrchestrator_UnroutableEnvelopeIsRejected(t *testing.T) {
	log := logger.NopLogger()
	bus := broker.NewMemoryBus(log)
	topics := config.DefaultTopics()
	o := NewOrchestrator(DefaultPipeline(topics), bus, NewBusNotifier(bus, topics.NotifyEnding), topics, log)

	err := o.Handle(context.Background(), models.Event{
		OrderID: "o", TransactionID: "t", Source: "SHIPPING_SERVICE", Status: models.StatusSuccess,
	})
	assert.Error(t, err)

	err = o.Start(context.Background(), models.Event{OrderID: "o"})
	assert.Error(t, err)
	assert.Empty(t, bus.Topics())
}
