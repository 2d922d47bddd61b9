package productvalidation

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

// Validation is the local record of one saga instance.
type Validation struct {
	ID            int64
	OrderID       string
	TransactionID string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newValidation(event *models.Event, status Status, now time.Time) *Validation {
	return &Validation{
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (v *Validation) transition(status Status, now time.Time) {
	v.Status = status
	v.UpdatedAt = now
}
