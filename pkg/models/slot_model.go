package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliverySlot maps to table `delivery_slots`.
// CurrentUsage is only ever mutated through the allocator's reserve/release
// statements; the struct carries a snapshot for reads.
type DeliverySlot struct {
	ID           uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	MaxCapacity  int
	CurrentUsage int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFull reports whether the snapshot shows no spare capacity.
func (s DeliverySlot) IsFull() bool {
	return s.CurrentUsage >= s.MaxCapacity
}

// UsageRatio returns usage as a fraction of capacity.
func (s DeliverySlot) UsageRatio() float64 {
	if s.MaxCapacity <= 0 {
		return 0
	}
	return float64(s.CurrentUsage) / float64(s.MaxCapacity)
}

// IsWeekend reports whether the slot starts on a Saturday or Sunday.
func (s DeliverySlot) IsWeekend() bool {
	day := s.StartTime.Weekday()
	return day == time.Saturday || day == time.Sunday
}
