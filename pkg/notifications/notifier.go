package notifications

import (
	"context"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier renders templates, persists the in-app feed row and fans out to
// the bus. Every method is fire-and-forget: failures are logged and never
// propagate, so a broken notification channel cannot fail an order.
type Notifier struct {
	db     *database.DB
	repo   repositories.NotificationRepository
	bus    *Bus
	logger *zap.Logger
}

func NewNotifier(db *database.DB, repo repositories.NotificationRepository, bus *Bus, logger *zap.Logger) *Notifier {
	return &Notifier{db: db, repo: repo, bus: bus, logger: logger}
}

// NotifyUser sends a templated notification to one user, optionally tied to
// an order.
func (n *Notifier) NotifyUser(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, templateKey string, data map[string]string) {
	tpl, ok := UserTemplate(templateKey)
	if !ok {
		n.logger.Error("unknown user notification template", zap.String("template", templateKey))
		return
	}
	title, body := Render(tpl, data)

	notification := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		OrderID:   orderID,
		Type:      templateKey,
		Title:     title,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}
	if n.db != nil && n.repo != nil {
		if _, err := n.repo.Create(ctx, n.db, notification); err != nil {
			n.logger.Error("failed to persist notification",
				zap.String("template", templateKey),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	n.bus.Publish(ctx, Event{
		Topic:      TopicUser,
		UserID:     &userID,
		OrderID:    orderID,
		Type:       templateKey,
		Title:      title,
		Content:    body,
		Data:       data,
		OccurredAt: notification.CreatedAt,
	})
}

// NotifyAdmin publishes a templated event on the admin channel. Admin
// notifications are not persisted per-user; the webhook and dashboard
// subscribers are their audit trail.
func (n *Notifier) NotifyAdmin(ctx context.Context, templateKey string, data map[string]string) {
	tpl, ok := AdminTemplate(templateKey)
	if !ok {
		n.logger.Error("unknown admin notification template", zap.String("template", templateKey))
		return
	}
	title, body := Render(tpl, data)

	event := Event{
		Topic:      TopicAdmin,
		Type:       templateKey,
		Title:      title,
		Content:    body,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	if raw, ok := data["orderId"]; ok {
		if orderID, err := uuid.Parse(raw); err == nil {
			event.OrderID = &orderID
		}
	}
	n.logger.Info("admin notification",
		zap.String("template", templateKey),
		zap.String("title", title))
	n.bus.Publish(ctx, event)
}
