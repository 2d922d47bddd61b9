package payment

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

const serviceLabel = "payment"

var errNotFound = errors.ErrNotFound.WithDetail("message", "Payment not found by order and transaction id!")

type Repository interface {
	ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error)
	FindBy(ctx context.Context, orderID, transactionID string) (*Payment, error)
	Save(ctx context.Context, p *Payment) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (exists bool, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "exists_payment", start, err) }(time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = $1 AND transaction_id = $2)`
	if err = r.db.QueryRowContext(ctx, query, orderID, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check payment: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) FindBy(ctx context.Context, orderID, transactionID string) (p *Payment, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "find_payment", start, err) }(time.Now())

	query := `
		SELECT id, order_id, transaction_id, total_items, total_amount, status, created_at, updated_at
		FROM payments
		WHERE order_id = $1 AND transaction_id = $2`

	p = &Payment{}
	err = r.db.QueryRowContext(ctx, query, orderID, transactionID).Scan(
		&p.ID, &p.OrderID, &p.TransactionID, &p.TotalItems, &p.TotalAmount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Save(ctx context.Context, p *Payment) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "save_payment", start, err) }(time.Now())

	query := `
		INSERT INTO payments (order_id, transaction_id, total_items, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, transaction_id)
		DO UPDATE SET
			total_items = EXCLUDED.total_items,
			total_amount = EXCLUDED.total_amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		p.OrderID, p.TransactionID, p.TotalItems, p.TotalAmount, p.Status, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

type MemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	payments map[string]Payment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payments: make(map[string]Payment)}
}

func memoryKey(orderID, transactionID string) string {
	return orderID + ":" + transactionID
}

func (r *MemoryRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.payments[memoryKey(orderID, transactionID)]
	return ok, nil
}

func (r *MemoryRepository) FindBy(ctx context.Context, orderID, transactionID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[memoryKey(orderID, transactionID)]
	if !ok {
		return nil, errNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) Save(ctx context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(p.OrderID, p.TransactionID)
	if existing, ok := r.payments[key]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		p.ID = r.nextID
	}
	r.payments[key] = *p
	return nil
}

func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payments)
}
