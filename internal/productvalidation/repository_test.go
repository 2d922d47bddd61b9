package productvalidation

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
	require.NoError(t, migrations.MigratePostgres(db, migrations.SchemaProductValidation))
	require.NoError(t, migrations.MigratePostgres(db, migrations.SchemaProductValidation))

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	exists, err := repo.ExistsByCode(ctx, "COMIC_BOOKS")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.ExistsByCode(ctx, "TOYS")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.FindBy(ctx, "order-1", "tx-1")
	assert.True(t, errors.IsNotFound(err))

	now := time.Now().UTC().Truncate(time.Millisecond)
	v := newValidation(&models.Event{OrderID: "order-1", TransactionID: "tx-1"}, StatusPending, now)
	require.NoError(t, repo.Save(ctx, v))
	require.NotZero(t, v.ID)
	id := v.ID

	v.transition(StatusSuccess, now.Add(time.Second))
	require.NoError(t, repo.Save(ctx, v))
	assert.Equal(t, id, v.ID)

	found, err := repo.FindBy(ctx, "order-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, found.Status)

	exists, err = repo.ExistsBy(ctx, "order-1", "tx-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
