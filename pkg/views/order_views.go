package views

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
)

// OrderItemInput is one (SKU, quantity) pair of a fulfillment request.
type OrderItemInput struct {
	SKU      string `json:"skuId" binding:"required"`
	Quantity int    `json:"qty" binding:"required,gt=0"`
}

// OrderRequest is the payload of POST /orders. Field-presence validation
// happens at binding time, before any transaction starts.
type OrderRequest struct {
	UserID         string           `json:"userId" binding:"required,uuid"`
	AddressID      string           `json:"addressId" binding:"required,uuid"`
	Items          []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	DeliverySlotID string           `json:"deliverySlotId" binding:"omitempty,uuid"`
}

// SlotAssignment summarizes how the slot was resolved for an order.
type SlotAssignment struct {
	Requested    *string `json:"requested"`    // slot id the caller asked for, if any
	Assigned     *string `json:"assigned"`     // slot id actually reserved, nil when none available
	WasRequested bool    `json:"wasRequested"`
	WasFallback  bool    `json:"wasFallback"`
}

// OrderResponse is returned by POST /orders.
type OrderResponse struct {
	OrderID        string          `json:"orderId"`
	UserID         string          `json:"userId"`
	DeliverySlotID *string         `json:"deliverySlotId"`
	TotalAmount    float64         `json:"totalAmount"`
	Status         pkg.OrderStatus `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	SlotAssignment SlotAssignment  `json:"slotAssignment"`
}

// OrderLineView is one persisted line of an order.
type OrderLineView struct {
	SKU       string  `json:"skuId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Discount  float64 `json:"discount"`
	Subtotal  float64 `json:"subtotal"`
}

// OrderDetail is returned by GET /orders/:id.
type OrderDetail struct {
	OrderID        string          `json:"orderId"`
	UserID         string          `json:"userId"`
	AddressID      string          `json:"addressId"`
	DeliverySlotID *string         `json:"deliverySlotId"`
	TotalAmount    float64         `json:"totalAmount"`
	Status         pkg.OrderStatus `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	Lines          []OrderLineView `json:"items"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// RefundRequest is the payload of POST /orders/:id/refund and /cancel.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// SlotUsageView is the admin representation of a delivery slot.
type SlotUsageView struct {
	ID                string    `json:"id"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	MaxCapacity       int       `json:"maxCapacity"`
	CurrentUsage      int       `json:"currentUsage"`
	AvailableCapacity int       `json:"availableCapacity"`
	UsagePercentage   int       `json:"usagePercentage"`
	IsActive          bool      `json:"isActive"`
	IsFull            bool      `json:"isFull"`
}
