package productvalidation

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"checkout/pkg/errors"
	"checkout/pkg/metrics"
)

const serviceLabel = "product-validation"

type Repository interface {
	ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error)
	FindBy(ctx context.Context, orderID, transactionID string) (*Validation, error)
	Save(ctx context.Context, v *Validation) error
}

// Catalog answers whether a product code is sold.
type Catalog interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (exists bool, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "exists_validation", start, err) }(time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM validations WHERE order_id = $1 AND transaction_id = $2)`
	if err = r.db.QueryRowContext(ctx, query, orderID, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check validation: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) FindBy(ctx context.Context, orderID, transactionID string) (v *Validation, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "find_validation", start, err) }(time.Now())

	query := `
		SELECT id, order_id, transaction_id, status, created_at, updated_at
		FROM validations
		WHERE order_id = $1 AND transaction_id = $2`

	v = &Validation{}
	err = r.db.QueryRowContext(ctx, query, orderID, transactionID).Scan(
		&v.ID, &v.OrderID, &v.TransactionID, &v.Status, &v.CreatedAt, &v.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound.WithDetail("message", "Validation not found by order and transaction id!")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find validation: %w", err)
	}
	return v, nil
}

// Save inserts v or updates the status of the existing row for its saga
// instance.
func (r *PostgresRepository) Save(ctx context.Context, v *Validation) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "save_validation", start, err) }(time.Now())

	query := `
		INSERT INTO validations (order_id, transaction_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, transaction_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		v.OrderID, v.TransactionID, v.Status, v.CreatedAt, v.UpdatedAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save validation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ExistsByCode(ctx context.Context, code string) (exists bool, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "exists_product", start, err) }(time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)`
	if err = r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check product: %w", err)
	}
	return exists, nil
}

// MemoryRepository keeps validations and the catalog in process memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	nextID      int64
	validations map[string]Validation
	products    map[string]bool
}

func NewMemoryRepository(productCodes ...string) *MemoryRepository {
	r := &MemoryRepository{
		validations: make(map[string]Validation),
		products:    make(map[string]bool, len(productCodes)),
	}
	for _, code := range productCodes {
		r.products[code] = true
	}
	return r
}

func memoryKey(orderID, transactionID string) string {
	return orderID + ":" + transactionID
}

func (r *MemoryRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validations[memoryKey(orderID, transactionID)]
	return ok, nil
}

func (r *MemoryRepository) FindBy(ctx context.Context, orderID, transactionID string) (*Validation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validations[memoryKey(orderID, transactionID)]
	if !ok {
		return nil, errors.ErrNotFound.WithDetail("message", "Validation not found by order and transaction id!")
	}
	return &v, nil
}

func (r *MemoryRepository) Save(ctx context.Context, v *Validation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(v.OrderID, v.TransactionID)
	if existing, ok := r.validations[key]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		v.ID = r.nextID
	}
	r.validations[key] = *v
	return nil
}

func (r *MemoryRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.products[code], nil
}

// Count returns the number of stored validations.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.validations)
}
