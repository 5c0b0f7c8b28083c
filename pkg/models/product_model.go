package models

import "time"

// Discount rule kinds applied per SKU by the pricing collaborator.
const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
)

// Product maps to table `products`. Backs the inventory and pricing
// collaborators consumed by the orchestrator.
type Product struct {
	SKU           string
	Name          string
	Price         float64
	DiscountType  string // percent / fixed / empty for none
	DiscountValue float64
	Stock         int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnitDiscount returns the per-unit discount amount for the product.
func (p Product) UnitDiscount() float64 {
	switch p.DiscountType {
	case DiscountTypePercent:
		return p.Price * (p.DiscountValue / 100)
	case DiscountTypeFixed:
		return p.DiscountValue
	default:
		return 0
	}
}
