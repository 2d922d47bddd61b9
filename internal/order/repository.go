package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"checkout/internal/constants"
	"checkout/pkg/metrics"
	"checkout/pkg/models"
)

const serviceLabel = "order"

type Repository interface {
	SaveOrder(ctx context.Context, o *models.Order) error
	// SaveEvent inserts or replaces the event with the same id.
	SaveEvent(ctx context.Context, e *models.Event) error
	// FindLatestEvent returns nil when nothing matches.
	FindLatestEvent(ctx context.Context, filters EventFilters) (*models.Event, error)
	ListEvents(ctx context.Context, limit int64) ([]models.Event, error)
}

type MongoRepository struct {
	orders *mongo.Collection
	events *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		orders: db.Collection(constants.OrderCollection),
		events: db.Collection(constants.EventCollection),
	}
}

func (r *MongoRepository) SaveOrder(ctx context.Context, o *models.Order) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "mongodb", "save_order", start, err) }(time.Now())

	if _, err = r.orders.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (r *MongoRepository) SaveEvent(ctx context.Context, e *models.Event) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "mongodb", "save_event", start, err) }(time.Now())

	opts := options.Replace().SetUpsert(true)
	if _, err = r.events.ReplaceOne(ctx, bson.M{"_id": e.ID}, e, opts); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (r *MongoRepository) FindLatestEvent(ctx context.Context, filters EventFilters) (e *models.Event, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "mongodb", "find_latest_event", start, err) }(time.Now())

	filter := bson.M{"transaction_id": filters.TransactionID}
	if filters.OrderID != "" {
		filter = bson.M{"order_id": filters.OrderID}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var event models.Event
	err = r.events.FindOne(ctx, filter, opts).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return &event, nil
}

func (r *MongoRepository) ListEvents(ctx context.Context, limit int64) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "mongodb", "list_events", start, err) }(time.Now())

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer cursor.Close(ctx)

	events = []models.Event{}
	if err = cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

type MemoryRepository struct {
	mu     sync.RWMutex
	orders []models.Order
	events map[string]models.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string]models.Event)}
}

func (r *MemoryRepository) SaveOrder(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.Clone())
	return nil
}

func (r *MemoryRepository) SaveEvent(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = e.Clone()
	return nil
}

func (r *MemoryRepository) FindLatestEvent(ctx context.Context, filters EventFilters) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.Event
	for _, e := range r.events {
		match := e.TransactionID == filters.TransactionID
		if filters.OrderID != "" {
			match = e.OrderID == filters.OrderID
		}
		if match && (latest == nil || e.CreatedAt.After(latest.CreatedAt)) {
			found := e.Clone()
			latest = &found
		}
	}
	return latest, nil
}

func (r *MemoryRepository) ListEvents(ctx context.Context, limit int64) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]models.Event, 0, len(r.events))
	for _, e := range r.events {
		events = append(events, e.Clone())
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && int64(len(events)) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *MemoryRepository) Orders() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Order(nil), r.orders...)
}
