package payment

import (
	"time"

	"checkout/pkg/models"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusRefunded Status = "REFUNDED"
)

type Payment struct {
	ID            int64
	OrderID       string
	TransactionID string
	TotalItems    int64
	TotalAmount   float64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newPayment(event *models.Event, status Status, now time.Time) *Payment {
	return &Payment{
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		TotalItems:    event.Payload.CalculateTotalItems(),
		TotalAmount:   event.Payload.CalculateTotalAmount(),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (p *Payment) transition(status Status, now time.Time) {
	p.Status = status
	p.UpdatedAt = now
}
