package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/testinfra"
	"checkout/pkg/errors"
	"checkout/pkg/migrations"
	"checkout/pkg/models"
)

func TestPostgresRepository(t *testing.T) {
	db, _ := testinfra.Postgres(t)
	require.NoError(t, migrations.MigratePostgres(db, migrations.SchemaPayment))

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	_, err := repo.FindBy(ctx, "order-1", "tx-1")
	assert.True(t, errors.IsNotFound(err))

	event := &models.Event{
		OrderID:       "order-1",
		TransactionID: "tx-1",
		Payload: models.Order{Products: []models.OrderProduct{
			{Product: models.Product{Code: "BOOKS", UnitValue: 12.5}, Quantity: 3},
		}},
	}
	p := newPayment(event, StatusPending, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, p))

	p.transition(StatusRefunded, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.FindBy(ctx, "order-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, found.Status)
	assert.Equal(t, 37.5, found.TotalAmount)
	assert.Equal(t, int64(3), found.TotalItems)
	assert.Equal(t, p.ID, found.ID)
}
