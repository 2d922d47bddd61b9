package inventory

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

const serviceLabel = "inventory"

var (
	errReservationNotFound = errors.ErrNotFound.WithDetail("message", "Reservation not found by order and transaction id!")
	errStockNotFound       = errors.ErrNotFound.WithDetail("message", "Inventory not found by informed product!")
)

func outOfStock(code string) error {
	return errors.BusinessRule(fmt.Sprintf("Product %s is out of stock!", code))
}

type Repository interface {
	ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error)
	FindBy(ctx context.Context, orderID, transactionID string) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
	FindStock(ctx context.Context, productCode string) (*Stock, error)
	// Apply decrements stock for every item atomically, fills the old and new
	// quantities and moves the reservation to SUCCESS.
	Apply(ctx context.Context, r *Reservation, now time.Time) error
	// Restore adds every item's quantity back and moves the reservation to
	// COMPENSATED.
	Restore(ctx context.Context, r *Reservation, now time.Time) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (exists bool, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "exists_reservation", start, err) }(time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM reservations WHERE order_id = $1 AND transaction_id = $2)`
	if err = r.db.QueryRowContext(ctx, query, orderID, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reservation: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) FindBy(ctx context.Context, orderID, transactionID string) (res *Reservation, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "find_reservation", start, err) }(time.Now())

	res = &Reservation{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, order_id, transaction_id, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1 AND transaction_id = $2`, orderID, transactionID,
	).Scan(&res.ID, &res.OrderID, &res.TransactionID, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_code, order_quantity, old_quantity, new_quantity
		FROM reservation_items
		WHERE reservation_id = $1
		ORDER BY id`, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ReservationItem
		if err = rows.Scan(&item.ProductCode, &item.OrderQuantity, &item.OldQuantity, &item.NewQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan reservation item: %w", err)
		}
		res.Items = append(res.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reservation items: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) Save(ctx context.Context, res *Reservation) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "save_reservation", start, err) }(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err = saveReservation(ctx, tx, res); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	return nil
}

func saveReservation(ctx context.Context, tx *sql.Tx, res *Reservation) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO reservations (order_id, transaction_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, transaction_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		res.OrderID, res.TransactionID, res.Status, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_items WHERE reservation_id = $1`, res.ID); err != nil {
		return fmt.Errorf("failed to replace reservation items: %w", err)
	}
	for _, item := range res.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservation_items (reservation_id, product_code, order_quantity, old_quantity, new_quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			res.ID, item.ProductCode, item.OrderQuantity, item.OldQuantity, item.NewQuantity,
		)
		if err != nil {
			return fmt.Errorf("failed to save reservation item: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) FindStock(ctx context.Context, productCode string) (s *Stock, err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "find_stock", start, err) }(time.Now())

	s = &Stock{}
	err = r.db.QueryRowContext(ctx,
		`SELECT product_code, available, updated_at FROM inventory WHERE product_code = $1`, productCode,
	).Scan(&s.ProductCode, &s.Available, &s.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find stock: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Apply(ctx context.Context, res *Reservation, now time.Time) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "apply_reservation", start, err) }(time.Now())

	return r.adjust(ctx, res, now, StatusSuccess, -1)
}

func (r *PostgresRepository) Restore(ctx context.Context, res *Reservation, now time.Time) (err error) {
	defer func(start time.Time) { metrics.ObserveQuery(serviceLabel, "postgres", "restore_reservation", start, err) }(time.Now())

	return r.adjust(ctx, res, now, StatusCompensated, 1)
}

// adjust moves stock by sign*quantity for every item under row locks and
// saves the reservation in the same transaction.
func (r *PostgresRepository) adjust(ctx context.Context, res *Reservation, now time.Time, status Status, sign int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	items := make([]ReservationItem, len(res.Items))
	for i, item := range res.Items {
		var available int64
		err := tx.QueryRowContext(ctx,
			`SELECT available FROM inventory WHERE product_code = $1 FOR UPDATE`, item.ProductCode,
		).Scan(&available)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errStockNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock stock: %w", err)
		}

		next := available + sign*item.OrderQuantity
		if next < 0 {
			return outOfStock(item.ProductCode)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE inventory SET available = $1, updated_at = $2 WHERE product_code = $3`,
			next, now, item.ProductCode,
		); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}

		item.OldQuantity, item.NewQuantity = available, next
		items[i] = item
	}

	updated := *res
	updated.Items = items
	updated.Status = status
	updated.UpdatedAt = now
	if err := saveReservation(ctx, tx, &updated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stock change: %w", err)
	}

	*res = updated
	return nil
}

type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	reservations map[string]Reservation
	stock        map[string]int64
}

// NewMemoryRepository seeds stock with the given product quantities.
func NewMemoryRepository(stock map[string]int64) *MemoryRepository {
	r := &MemoryRepository{
		reservations: make(map[string]Reservation),
		stock:        make(map[string]int64, len(stock)),
	}
	for code, qty := range stock {
		r.stock[code] = qty
	}
	return r
}

func memoryKey(orderID, transactionID string) string {
	return orderID + ":" + transactionID
}

func (r *MemoryRepository) ExistsBy(ctx context.Context, orderID, transactionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.reservations[memoryKey(orderID, transactionID)]
	return ok, nil
}

func (r *MemoryRepository) FindBy(ctx context.Context, orderID, transactionID string) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[memoryKey(orderID, transactionID)]
	if !ok {
		return nil, errReservationNotFound
	}
	res.Items = append([]ReservationItem(nil), res.Items...)
	return &res, nil
}

func (r *MemoryRepository) Save(ctx context.Context, res *Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.save(res)
	return nil
}

func (r *MemoryRepository) save(res *Reservation) {
	key := memoryKey(res.OrderID, res.TransactionID)
	if existing, ok := r.reservations[key]; ok {
		res.ID = existing.ID
		res.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		res.ID = r.nextID
	}
	stored := *res
	stored.Items = append([]ReservationItem(nil), res.Items...)
	r.reservations[key] = stored
}

func (r *MemoryRepository) FindStock(ctx context.Context, productCode string) (*Stock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qty, ok := r.stock[productCode]
	if !ok {
		return nil, errStockNotFound
	}
	return &Stock{ProductCode: productCode, Available: qty}, nil
}

func (r *MemoryRepository) Apply(ctx context.Context, res *Reservation, now time.Time) error {
	return r.adjust(res, now, StatusSuccess, -1)
}

func (r *MemoryRepository) Restore(ctx context.Context, res *Reservation, now time.Time) error {
	return r.adjust(res, now, StatusCompensated, 1)
}

func (r *MemoryRepository) adjust(res *Reservation, now time.Time, status Status, sign int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]int64, len(r.stock))
	for k, v := range r.stock {
		next[k] = v
	}

	items := make([]ReservationItem, len(res.Items))
	for i, item := range res.Items {
		available, ok := next[item.ProductCode]
		if !ok {
			return errStockNotFound
		}
		qty := available + sign*item.OrderQuantity
		if qty < 0 {
			return outOfStock(item.ProductCode)
		}
		next[item.ProductCode] = qty
		item.OldQuantity, item.NewQuantity = available, qty
		items[i] = item
	}

	r.stock = next
	res.Items = items
	res.Status = status
	res.UpdatedAt = now
	r.save(res)
	return nil
}

func (r *MemoryRepository) Available(productCode string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stock[productCode]
}
