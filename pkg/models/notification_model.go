package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification maps to table `notifications`
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	OrderID   *uuid.UUID // nil for notifications not tied to an order
	Type      string
	Title     string
	Content   string
	IsRead    bool
	CreatedAt time.Time
}
