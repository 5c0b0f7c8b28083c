package models

import (
	"time"

	"github.com/google/uuid"
)

// User maps to table `users`
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountAge returns how long the account has existed as of now.
func (u User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.CreatedAt)
}
