package participant

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/idempotency"
	"checkout/internal/logger"
	"checkout/pkg/cel"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

var testTopics = config.ParticipantTopics{
	Forward:    "step-start",
	Compensate: "step-rollback",
	Success:    "step-success",
	Fail:       "step-fail",
}

var testMessages = Messages{
	Duplicate:          "Step already ran!",
	Success:            "Step done!",
	FailPrefix:         "Step failed: ",
	Rollback:           "Step rolled back!",
	RollbackFailPrefix: "Step rollback failed: ",
}

type fakeParticipant struct {
	executed    map[models.Key]bool
	executeErr  error
	compensate  error
	panicOnExec bool
	compensated int
}

func newFakeParticipant() *fakeParticipant {
	return &fakeParticipant{executed: make(map[models.Key]bool)}
}

func (f *fakeParticipant) Source() models.Source { return models.SourcePayment }

func (f *fakeParticipant) Messages() Messages { return testMessages }

func (f *fakeParticipant) Execute(ctx context.Context, event *models.Event) error {
	if f.panicOnExec {
		panic("boom")
	}
	f.executed[event.Key()] = true
	if f.executeErr != nil {
		return f.executeErr
	}
	event.Payload.TotalItems = event.Payload.CalculateTotalItems()
	return nil
}

func (f *fakeParticipant) Compensate(ctx context.Context, event *models.Event) error {
	f.compensated++
	return f.compensate
}

func (f *fakeParticipant) ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error) {
	return f.executed[models.Key{OrderID: orderID, TransactionID: transactionID}], nil
}

func sagaEvent() models.Event {
	e := models.Event{
		OrderID:       "order-1",
		TransactionID: "1700000000000_tx",
		Source:        models.SourceProductValidation,
		Status:        models.StatusSuccess,
		Payload: models.Order{
			ID: "order-1",
			Products: []models.OrderProduct{
				{Product: models.Product{Code: "BOOKS", UnitValue: 50}, Quantity: 2},
			},
		},
	}
	e.AddHistory("Products validated successfully!")
	return e
}

func newTestHandler(t *testing.T, p *fakeParticipant, opts ...HandlerOption) (*Handler, *broker.MemoryBus) {
	t.Helper()
	log := logger.NopLogger()
	bus := broker.NewMemoryBus(log)
	guard := idempotency.NewGuard(p.Source(), p, config.IdempotencyConfig{}, log,
		idempotency.WithDuplicateMessage(testMessages.Duplicate))
	return NewHandler(p, guard, bus, testTopics, log, opts...), bus
}

func TestHandler_ProcessSuccess(t *testing.T) {
	p := newFakeParticipant()
	h, bus := newTestHandler(t, p)
	in := sagaEvent()

	out := h.Process(context.Background(), in)

	assert.Equal(t, models.SourcePayment, out.Source)
	assert.Equal(t, models.StatusSuccess, out.Status)
	require.Len(t, out.EventHistory, in.Version()+1)
	last := out.EventHistory[len(out.EventHistory)-1]
	assert.Equal(t, "Step done!", last.Message)
	assert.Equal(t, models.SourcePayment, last.Source)
	assert.Equal(t, models.StatusSuccess, last.Status)
	assert.Equal(t, int64(2), out.Payload.TotalItems)

	// The input envelope is left untouched.
	assert.Len(t, in.EventHistory, 1)
	assert.Zero(t, in.Payload.TotalItems)

	assert.Equal(t, []string{"step-success"}, bus.Topics())
}

func TestHandler_ProcessFailureIsRollbackPending(t *testing.T) {
	p := newFakeParticipant()
	p.executeErr = errors.BusinessRule("Amount must be greater than 0.10!")
	h, bus := newTestHandler(t, p)

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Equal(t, "Step failed: Amount must be greater than 0.10!", out.EventHistory[len(out.EventHistory)-1].Message)
	assert.Equal(t, []string{"step-fail"}, bus.Topics())
}

func TestHandler_ProcessInfrastructureFailure(t *testing.T) {
	p := newFakeParticipant()
	p.executeErr = fmt.Errorf("connection refused")
	h, _ := newTestHandler(t, p)

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Equal(t, "Step failed: connection refused", out.EventHistory[len(out.EventHistory)-1].Message)
}

func TestHandler_ProcessInvalidEnvelope(t *testing.T) {
	p := newFakeParticipant()
	h, _ := newTestHandler(t, p)
	in := sagaEvent()
	in.TransactionID = ""

	out := h.Process(context.Background(), in)

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Empty(t, p.executed)
}

func TestHandler_DuplicateForwardDoesNotExecuteTwice(t *testing.T) {
	p := newFakeParticipant()
	h, bus := newTestHandler(t, p)
	ctx := context.Background()

	first := h.Process(ctx, sagaEvent())
	require.Equal(t, models.StatusSuccess, first.Status)

	p.executeErr = fmt.Errorf("must not run again")
	second := h.Process(ctx, sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, second.Status)
	assert.Equal(t, "Step failed: Step already ran!", second.EventHistory[len(second.EventHistory)-1].Message)
	assert.Equal(t, []string{"step-success", "step-fail"}, bus.Topics())
}

func TestHandler_PanicBecomesRollbackPending(t *testing.T) {
	p := newFakeParticipant()
	p.panicOnExec = true
	h, bus := newTestHandler(t, p)

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Equal(t, []string{"step-fail"}, bus.Topics())
}

func TestHandler_PolicyRejects(t *testing.T) {
	evaluator, err := cel.NewEvaluator()
	require.NoError(t, err)
	policy, err := evaluator.NewPolicy([]string{"size(payload.products) > 1"})
	require.NoError(t, err)

	p := newFakeParticipant()
	h, _ := newTestHandler(t, p, WithPolicy(policy))

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Contains(t, out.EventHistory[len(out.EventHistory)-1].Message, "size(payload.products) > 1")
	assert.Empty(t, p.executed)
}

func TestHandler_Compensate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{name: "rolled back", err: nil, message: "Step rolled back!"},
		{name: "already compensated", err: errors.ErrAlreadyCompensated, message: "Step rolled back!"},
		{name: "failure", err: fmt.Errorf("db down"), message: "Step rollback failed: db down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeParticipant()
			p.compensate = tt.err
			h, bus := newTestHandler(t, p)
			in := sagaEvent()
			in.Status = models.StatusRollbackPending

			out := h.Compensate(context.Background(), in)

			assert.Equal(t, models.StatusFail, out.Status)
			assert.Equal(t, models.SourcePayment, out.Source)
			require.Len(t, out.EventHistory, in.Version()+1)
			assert.Equal(t, tt.message, out.EventHistory[len(out.EventHistory)-1].Message)
			assert.Equal(t, []string{"step-fail"}, bus.Topics())
			assert.Equal(t, 1, p.compensated)
		})
	}
}

func TestHandler_RegisterSubscribesBothPaths(t *testing.T) {
	p := newFakeParticipant()
	h, bus := newTestHandler(t, p)
	h.Register(bus)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, testTopics.Forward, sagaEvent()))
	rollback := sagaEvent()
	rollback.Status = models.StatusRollbackPending
	require.NoError(t, bus.Publish(ctx, testTopics.Compensate, rollback))
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, []string{"step-start", "step-rollback", "step-success", "step-fail"}, bus.Topics())
}

func TestHandler_PublishFailureIsSwallowed(t *testing.T) {
	p := newFakeParticipant()
	h, bus := newTestHandler(t, p)
	bus.FailPublish(func(topic string) error { return fmt.Errorf("broker down") })

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusSuccess, out.Status)
	assert.Empty(t, bus.Topics())
}
