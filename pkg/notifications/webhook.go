package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"go.uber.org/zap"
)

// WebhookSubscriber forwards admin notifications to an external endpoint
// (ops chat, alerting bridge). Delivery is retried with exponential backoff
// and then dropped; the bus guarantees at-most-once per event anyway.
type WebhookSubscriber struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSubscriber(url string, logger *zap.Logger) *WebhookSubscriber {
	return &WebhookSubscriber{
		url: url,
		client: utils.NewHTTPClient(
			utils.WithClientTimeout(5*time.Second),
			utils.WithMaxConnsPerHost(8),
		),
		logger: logger,
	}
}

// Handle implements the bus Handler signature.
func (w *WebhookSubscriber) Handle(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("webhook payload marshal failed", zap.Error(err))
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	err = backoff.Retry(func() error {
		return w.post(ctx, payload)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		w.logger.Error("webhook delivery gave up",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

func (w *WebhookSubscriber) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// Client errors will not heal on retry.
		return backoff.Permanent(fmt.Errorf("webhook endpoint rejected payload with %d", resp.StatusCode))
	}
	return nil
}
