package order

import "checkout/pkg/models"

type CreateOrderRequest struct {
	Products []models.OrderProduct `json:"products" binding:"required"`
}

// EventFilters selects the latest event of one saga. OrderID wins when both
// are set.
type EventFilters struct {
	OrderID       string `form:"orderId"`
	TransactionID string `form:"transactionId"`
}

func (f EventFilters) IsEmpty() bool {
	return f.OrderID == "" && f.TransactionID == ""
}
