package models

import (
	"math"
	"time"
)

// Order is the business payload carried by the saga envelope.
type Order struct {
	ID            string         `json:"id" bson:"_id,omitempty"`
	Products      []OrderProduct `json:"products" bson:"products"`
	CreatedAt     time.Time      `json:"createdAt" bson:"created_at"`
	TransactionID string         `json:"transactionId" bson:"transaction_id"`
	TotalAmount   float64        `json:"totalAmount" bson:"total_amount"`
	TotalItems    int64          `json:"totalItems" bson:"total_items"`
}

type OrderProduct struct {
	Product  Product `json:"product" bson:"product"`
	Quantity int64   `json:"quantity" bson:"quantity"`
}

type Product struct {
	Code      string  `json:"code" bson:"code"`
	UnitValue float64 `json:"unitValue" bson:"unit_value"`
}

// CalculateTotalAmount sums unitValue*quantity over all lines, rounded to cents.
func (o *Order) CalculateTotalAmount() float64 {
	var total float64
	for _, p := range o.Products {
		total += p.Product.UnitValue * float64(p.Quantity)
	}
	return RoundAmount(total)
}

func (o *Order) CalculateTotalItems() int64 {
	var total int64
	for _, p := range o.Products {
		total += p.Quantity
	}
	return total
}

func (o Order) Clone() Order {
	out := o
	if o.Products != nil {
		out.Products = make([]OrderProduct, len(o.Products))
		copy(out.Products, o.Products)
	}
	return out
}

func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
