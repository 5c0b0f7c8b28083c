package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const scanMarkerTTL = 24 * time.Hour

// ScanMarker tracks which orders already went through a risk evaluation pass.
// Backed by SETNX so concurrent workers and overlapping retrospective scans
// agree on exactly one first pass per order. Keys expire after a day; by then
// the persisted alert row is the source of truth.
type ScanMarker struct {
	client *redis.Client
	prefix string
}

func NewScanMarker(client *redis.Client) *ScanMarker {
	return &ScanMarker{client: client, prefix: "risk:scanned:"}
}

// Mark returns true when this call claimed the first scan of the order.
func (m *ScanMarker) Mark(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return m.client.SetNX(ctx, m.prefix+orderID.String(), 1, scanMarkerTTL).Result()
}

// Unmark deletes the claim so a failed pass can be retried.
func (m *ScanMarker) Unmark(ctx context.Context, orderID uuid.UUID) error {
	return m.client.Del(ctx, m.prefix+orderID.String()).Err()
}
