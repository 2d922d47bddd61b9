package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

func inventoryEvent(lines map[string]int64) *models.Event {
	e := &models.Event{OrderID: "order-1", TransactionID: "1700000000000_tx"}
	for code, qty := range lines {
		e.Payload.Products = append(e.Payload.Products, models.OrderProduct{
			Product:  models.Product{Code: code, UnitValue: 10},
			Quantity: qty,
		})
	}
	return e
}

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository(map[string]int64{"BOOKS": 10, "MOVIES": 5})
	return NewService(repo, logger.NopLogger()), repo
}

func TestService_ExecuteReservesStock(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	event := inventoryEvent(map[string]int64{"BOOKS": 3})

	require.NoError(t, svc.Execute(ctx, event))

	assert.Equal(t, int64(7), repo.Available("BOOKS"))
	res, err := repo.FindBy(ctx, event.OrderID, event.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(10), res.Items[0].OldQuantity)
	assert.Equal(t, int64(7), res.Items[0].NewQuantity)
}

func TestService_ExecuteRejects(t *testing.T) {
	tests := []struct {
		name    string
		lines   map[string]int64
		wantErr string
	}{
		{name: "empty", lines: nil, wantErr: "Product list is empty!"},
		{name: "out of stock", lines: map[string]int64{"MOVIES": 6}, wantErr: "Product MOVIES is out of stock!"},
		{name: "unknown product", lines: map[string]int64{"TOYS": 1}, wantErr: "Inventory not found by informed product!"},
		{name: "zero quantity", lines: map[string]int64{"BOOKS": 0}, wantErr: "Product quantity must be greater than zero!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newTestService()
			event := inventoryEvent(tt.lines)

			err := svc.Execute(ctx, event)

			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrBusinessRule))
			assert.Equal(t, tt.wantErr, errors.Message(err))
			assert.Equal(t, int64(10), repo.Available("BOOKS"))
			assert.Equal(t, int64(5), repo.Available("MOVIES"))

			exists, err := repo.ExistsBy(ctx, event.OrderID, event.TransactionID)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestService_CompensateRestoresStock(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	event := inventoryEvent(map[string]int64{"BOOKS": 4, "MOVIES": 5})
	require.NoError(t, svc.Execute(ctx, event))
	assert.Equal(t, int64(0), repo.Available("MOVIES"))

	require.NoError(t, svc.Compensate(ctx, event))

	assert.Equal(t, int64(10), repo.Available("BOOKS"))
	assert.Equal(t, int64(5), repo.Available("MOVIES"))
	res, err := repo.FindBy(ctx, event.OrderID, event.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompensated, res.Status)

	err = svc.Compensate(ctx, event)
	assert.True(t, errors.Is(err, errors.ErrAlreadyCompensated))
	assert.Equal(t, int64(10), repo.Available("BOOKS"))
}

func TestService_CompensatePendingReservation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	event := inventoryEvent(map[string]int64{"BOOKS": 2})
	require.NoError(t, repo.Save(ctx, newReservation(event, StatusPending, svc.now())))

	require.NoError(t, svc.Compensate(ctx, event))

	assert.Equal(t, int64(10), repo.Available("BOOKS"))
	res, err := repo.FindBy(ctx, event.OrderID, event.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompensated, res.Status)
}

func TestService_CompensateWithoutReservation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	event := inventoryEvent(map[string]int64{"BOOKS": 2})

	require.NoError(t, svc.Compensate(ctx, event))

	assert.Equal(t, int64(10), repo.Available("BOOKS"))
	exists, err := repo.ExistsBy(ctx, event.OrderID, event.TransactionID)
	require.NoError(t, err)
	assert.True(t, exists)
}
