package inventory

import (
	"time"

	"checkout/pkg/models"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSuccess     Status = "SUCCESS"
	StatusCompensated Status = "COMPENSATED"
)

// Stock is the available quantity of one product.
type Stock struct {
	ProductCode string
	Available   int64
	UpdatedAt   time.Time
}

// Reservation is the local record of one saga instance. Items carry the stock
// level before and after the decrement so a rollback can be audited.
type Reservation struct {
	ID            int64
	OrderID       string
	TransactionID string
	Status        Status
	Items         []ReservationItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ReservationItem struct {
	ProductCode   string
	OrderQuantity int64
	OldQuantity   int64
	NewQuantity   int64
}

func newReservation(event *models.Event, status Status, now time.Time) *Reservation {
	items := make([]ReservationItem, 0, len(event.Payload.Products))
	for _, p := range event.Payload.Products {
		items = append(items, ReservationItem{
			ProductCode:   p.Product.Code,
			OrderQuantity: p.Quantity,
		})
	}
	return &Reservation{
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		Status:        status,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
