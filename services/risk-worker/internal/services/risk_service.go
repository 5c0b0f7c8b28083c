package services

import (
	"context"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/fraud"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/configs"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const throttleBaseBackoff = 50 * time.Millisecond

// RiskScanner evaluates one scan job end to end.
type RiskScanner interface {
	Scan(ctx context.Context, job views.RiskScanJob) error
}

type RiskScannerImpl struct {
	logger  *zap.Logger
	cnf     *configs.Config
	engine  *fraud.Engine
	limiter *pkg.DistributedLimiter
}

func NewRiskScanner(logger *zap.Logger, cnf *configs.Config, engine *fraud.Engine, limiter *pkg.DistributedLimiter) RiskScanner {
	return &RiskScannerImpl{
		logger:  logger,
		cnf:     cnf,
		engine:  engine,
		limiter: limiter,
	}
}

// Scan throttles against the shared limiter, rebuilds the slot-selection
// context carried in the job and runs the engine. Returning an error sends
// the message to the DLQ.
func (s *RiskScannerImpl) Scan(ctx context.Context, job views.RiskScanJob) error {
	if err := s.waitForToken(ctx); err != nil {
		return err
	}

	orderID, err := uuid.Parse(job.OrderID)
	if err != nil {
		return err
	}

	selection := &fraud.SlotSelection{
		WasRequested:     job.WasSlotRequested,
		Fulfilled:        job.RequestFulfilled,
		FallbackOccurred: job.WasSlotRequested && !job.RequestFulfilled,
	}
	if job.RequestedSlotID != "" {
		if slotID, err := uuid.Parse(job.RequestedSlotID); err == nil {
			selection.RequestedSlotID = &slotID
		}
	}

	verdict, err := s.engine.EvaluateOrder(ctx, job.TraceID, orderID, selection)
	if err != nil {
		return err
	}
	if verdict.Alert != nil {
		observability.AlertsRaised.WithLabelValues(verdict.Alert.RiskType).Inc()
	}
	return nil
}

// waitForToken retries the distributed limiter with jittered backoff, giving
// up after the configured throttle window so a saturated cluster drains to
// the DLQ instead of wedging the consumer.
func (s *RiskScannerImpl) waitForToken(ctx context.Context) error {
	deadline := time.Now().Add(s.cnf.ScanMaxThrottle)
	for attempt := 1; ; attempt++ {
		if s.limiter.Allow(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			s.logger.Warn("scan rate limit wait exceeded",
				zap.Duration("max_wait", s.cnf.ScanMaxThrottle))
			return pkg.ErrRateLimitExceeded
		}
		delay := utils.CalculateExponentialBackoffWithJitter(attempt, throttleBaseBackoff, time.Second)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
