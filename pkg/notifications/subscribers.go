package notifications

import (
	"context"

	"go.uber.org/zap"
)

// EmailLogSubscriber stands in for the email delivery channel: it logs what
// would have been sent. Swap for a real provider client without touching the
// bus or the notifier.
type EmailLogSubscriber struct {
	logger *zap.Logger
}

func NewEmailLogSubscriber(logger *zap.Logger) *EmailLogSubscriber {
	return &EmailLogSubscriber{logger: logger}
}

func (s *EmailLogSubscriber) Handle(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("type", event.Type),
		zap.String("title", event.Title),
		zap.String("content", event.Content),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.String()))
	}
	s.logger.Info("email notification", fields...)
}

// DashboardLogSubscriber mirrors admin events into the log stream so they are
// visible even when no webhook endpoint is configured.
type DashboardLogSubscriber struct {
	logger *zap.Logger
}

func NewDashboardLogSubscriber(logger *zap.Logger) *DashboardLogSubscriber {
	return &DashboardLogSubscriber{logger: logger}
}

func (s *DashboardLogSubscriber) Handle(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("type", event.Type),
		zap.String("title", event.Title),
	}
	if event.OrderID != nil {
		fields = append(fields, zap.String("order_id", event.OrderID.String()))
	}
	s.logger.Info("admin dashboard notification", fields...)
}
