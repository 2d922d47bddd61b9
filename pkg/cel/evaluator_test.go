package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/pkg/errors"
	"checkout/pkg/models"
)

func sampleEvent() models.Event {
	return models.Event{
		OrderID:       "order-1",
		TransactionID: "1700000000000_abc",
		Source:        models.SourceOrchestrator,
		Status:        models.StatusPending,
		Payload: models.Order{
			ID: "order-1",
			Products: []models.OrderProduct{
				{Product: models.Product{Code: "COMIC_BOOKS", UnitValue: 15.5}, Quantity: 3},
				{Product: models.Product{Code: "BOOKS", UnitValue: 9.9}, Quantity: 1},
			},
			TotalAmount: 56.4,
			TotalItems:  4,
		},
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "valid payload access", expr: `payload.totalAmount > 10.0`},
		{name: "valid identity access", expr: `orderId == "order-1"`},
		{name: "invalid syntax", expr: `invalid syntax here!!!`, wantError: true},
		{name: "undefined variable", expr: `metadata.trace_id == "x"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	assert.NoError(t, eval.ValidateRule(`status == "PENDING"`))
	assert.Error(t, eval.ValidateRule(`payload.totalAmount`), "non-bool rule must be rejected")
	assert.Error(t, eval.ValidateRule(`orderId + "x"`))
}

// ruleExamples are participant policy rules over the saga envelope.
var ruleExamples = map[string]string{
	"max_items":         `payload.totalItems <= 100.0`,
	"max_amount":        `payload.totalAmount < 10000.0`,
	"has_products":      `size(payload.products) > 0`,
	"all_quantities":    `payload.products.all(p, p.quantity > 0.0)`,
	"blocked_product":   `!payload.products.exists(p, p.product.code == "BLOCKED")`,
	"order_id_prefix":   `orderId.startsWith("order-")`,
	"transaction_shape": `transactionId.contains("_")`,
	"pending_only":      `status == "PENDING"`,
	"combined":          `size(payload.products) <= 10 && payload.products.all(p, p.quantity <= 20.0)`,
}

func TestRuleExamples(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	event := sampleEvent()
	for name, expr := range ruleExamples {
		t.Run(name, func(t *testing.T) {
			ok, err := eval.EvaluateRule(context.Background(), expr, event)
			require.NoError(t, err)
			assert.True(t, ok, "rule %s should pass for the sample order", expr)
		})
	}
}

func TestEvaluateRule_ListMacros(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	event := sampleEvent()
	event.Payload.Products[0].Product.Code = "BLOCKED"

	ok, err := eval.EvaluateRule(context.Background(), ruleExamples["blocked_product"], event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicy_Check(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	policy, err := eval.NewPolicy([]string{`size(payload.products) > 0`, `payload.totalAmount < 50.0`})
	require.NoError(t, err)
	assert.Equal(t, 2, policy.Len())

	err = policy.Check(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
	assert.Equal(t, "Policy rule rejected the order: payload.totalAmount < 50.0", errors.Message(err))

	event := sampleEvent()
	event.Payload.TotalAmount = 20
	assert.NoError(t, policy.Check(context.Background(), event))
}

func TestPolicy_MissingFieldRejects(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	policy, err := eval.NewPolicy([]string{`payload.coupon == "FREE"`})
	require.NoError(t, err)

	err = policy.Check(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
}

func TestPolicy_NilAndInvalid(t *testing.T) {
	var p *Policy
	assert.NoError(t, p.Check(context.Background(), sampleEvent()))
	assert.Zero(t, p.Len())

	eval, err := NewEvaluator()
	require.NoError(t, err)
	_, err = eval.NewPolicy([]string{`payload.totalItems`})
	assert.Error(t, err)
}
