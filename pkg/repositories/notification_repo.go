package repositories

import (
	"context"

	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// NotificationRepository persists delivered notifications for the in-app feed.
// Writes happen post-commit and are best effort, so it takes the pool rather
// than a transaction.
type NotificationRepository interface {
	Create(ctx context.Context, db *database.DB, notification models.Notification) (pgconn.CommandTag, error)
}

type NotificationRepositoryImpl struct {
}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

func (n NotificationRepositoryImpl) Create(ctx context.Context, db *database.DB, notification models.Notification) (pgconn.CommandTag, error) {
	return db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, order_id, type, title, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		notification.ID,
		notification.UserID,
		notification.OrderID,
		notification.Type,
		notification.Title,
		notification.Content,
		notification.IsRead,
		notification.CreatedAt,
	)
}
