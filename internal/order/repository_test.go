package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/testinfra"
	"checkout/pkg/migrations"
	"checkout/pkg/models"
)

func TestMongoRepository(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoIndexes(ctx, db))
	require.NoError(t, migrations.EnsureMongoIndexes(ctx, db))

	repo := NewMongoRepository(db)
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.SaveOrder(ctx, &models.Order{ID: "order-1", TransactionID: "tx-1", CreatedAt: base}))

	first := &models.Event{ID: "event-1", OrderID: "order-1", TransactionID: "tx-1", Status: models.StatusPending, CreatedAt: base}
	require.NoError(t, repo.SaveEvent(ctx, first))
	other := &models.Event{ID: "event-2", OrderID: "order-2", TransactionID: "tx-2", Status: models.StatusPending, CreatedAt: base.Add(time.Second)}
	require.NoError(t, repo.SaveEvent(ctx, other))

	final := first.Clone()
	final.Status = models.StatusFail
	final.Source = models.SourceOrchestrator
	final.CreatedAt = base.Add(2 * time.Second)
	require.NoError(t, repo.SaveEvent(ctx, &final))

	found, err := repo.FindLatestEvent(ctx, EventFilters{OrderID: "order-1"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StatusFail, found.Status)

	found, err = repo.FindLatestEvent(ctx, EventFilters{TransactionID: "tx-2"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "event-2", found.ID)

	missing, err := repo.FindLatestEvent(ctx, EventFilters{TransactionID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	events, err := repo.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "event-1", events[0].ID)
	assert.Equal(t, "event-2", events[1].ID)
}
