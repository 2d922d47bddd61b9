package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"checkout/internal/constants"
)

// EnsureMongoIndexes creates the indexes the order service queries by.
// Collections are created on first insert.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		constants.OrderCollection: {
			{
				Keys:    bson.D{{Key: "transaction_id", Value: 1}},
				Options: options.Index().SetName("idx_orders_transaction_id").SetUnique(true),
			},
		},
		constants.EventCollection: {
			{
				Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_events_order_id_created_at"),
			},
			{
				Keys:    bson.D{{Key: "transaction_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_events_transaction_id_created_at"),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_events_created_at"),
			},
		},
	}

	for name, models := range indexes {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, models)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
