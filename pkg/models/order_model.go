package models

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/google/uuid"
)

// Order maps to table `orders`
type Order struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	AddressID      uuid.UUID
	DeliverySlotID *uuid.UUID // nil means no capacity was available
	TotalAmount    float64
	Status         pkg.OrderStatus
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Associations, populated by the repositories on demand
	Lines []OrderLine
}

// OrderLine maps to table `order_lines`. Immutable once persisted.
type OrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	SKU       string
	Quantity  int
	UnitPrice float64
	Discount  float64
	Subtotal  float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineSubtotal computes (unitPrice - discount) * quantity.
func LineSubtotal(unitPrice, discount float64, quantity int) float64 {
	return (unitPrice - discount) * float64(quantity)
}
