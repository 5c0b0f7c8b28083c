package views

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
)

// RiskScanJob is the message published to the risk-scan topic after an order
// commits. The slot-selection fields feed the user-selected-slot anomaly rule.
type RiskScanJob struct {
	OrderID          string    `json:"orderId" validate:"required,uuid"`
	TraceID          string    `json:"traceId"`
	WasSlotRequested bool      `json:"wasSlotRequested"`
	RequestedSlotID  string    `json:"requestedSlotId,omitempty" validate:"omitempty,uuid"`
	RequestFulfilled bool      `json:"slotRequestFulfilled"`
	EnqueuedAt       time.Time `json:"enqueuedAt"`
}

// RiskAlertView is the admin representation of a risk alert.
type RiskAlertView struct {
	ID         string              `json:"id"`
	OrderID    string              `json:"orderId"`
	RiskType   string              `json:"riskType"`
	RiskScore  float64             `json:"riskScore"`
	Details    string              `json:"details"`
	Status     pkg.RiskAlertStatus `json:"status"`
	ReviewedBy *string             `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time          `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}
