package services

import (
	"context"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/fraud"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"go.uber.org/zap"
)

const riskAlertListLimit = 100

// AdminService backs the back-office endpoints: slot utilization, risk alert
// review and on-demand retrospective scans.
type AdminService interface {
	ListSlots(ctx context.Context, traceID string, showInactive bool, from, to *time.Time) ([]views.SlotUsageView, error)
	ListRiskAlerts(ctx context.Context, traceID string, status pkg.RiskAlertStatus, minScore float64) ([]views.RiskAlertView, error)
	TriggerRiskScan(ctx context.Context, traceID string, window time.Duration) (scanned, alerted int, err error)
}

type AdminServiceImpl struct {
	logger    *zap.Logger
	cnf       *configs.Config
	db        *database.DB
	slotRepo  repositories.SlotRepository
	alertRepo repositories.RiskAlertRepository
	engine    *fraud.Engine
}

func NewAdminService(
	logger *zap.Logger,
	cnf *configs.Config,
	db *database.DB,
	slotRepo repositories.SlotRepository,
	alertRepo repositories.RiskAlertRepository,
	engine *fraud.Engine,
) AdminService {
	return &AdminServiceImpl{
		logger:    logger,
		cnf:       cnf,
		db:        db,
		slotRepo:  slotRepo,
		alertRepo: alertRepo,
		engine:    engine,
	}
}

func (s *AdminServiceImpl) ListSlots(ctx context.Context, traceID string, showInactive bool, from, to *time.Time) ([]views.SlotUsageView, error) {
	slots, err := s.slotRepo.List(ctx, s.db, showInactive, from, to)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, s.logger, err)
	}
	out := make([]views.SlotUsageView, 0, len(slots))
	for _, slot := range slots {
		out = append(out, views.SlotUsageView{
			ID:                slot.ID.String(),
			StartTime:         slot.StartTime,
			EndTime:           slot.EndTime,
			MaxCapacity:       slot.MaxCapacity,
			CurrentUsage:      slot.CurrentUsage,
			AvailableCapacity: slot.MaxCapacity - slot.CurrentUsage,
			UsagePercentage:   int(slot.UsageRatio() * 100),
			IsActive:          slot.IsActive,
			IsFull:            slot.IsFull(),
		})
	}
	return out, nil
}

func (s *AdminServiceImpl) ListRiskAlerts(ctx context.Context, traceID string, status pkg.RiskAlertStatus, minScore float64) ([]views.RiskAlertView, error) {
	alerts, err := s.alertRepo.List(ctx, s.db, status, minScore, riskAlertListLimit)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, s.logger, err)
	}
	out := make([]views.RiskAlertView, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, views.RiskAlertView{
			ID:         alert.ID.String(),
			OrderID:    alert.OrderID.String(),
			RiskType:   alert.RiskType,
			RiskScore:  alert.RiskScore,
			Details:    alert.Details,
			Status:     alert.Status,
			ReviewedBy: alert.ReviewedBy,
			ReviewedAt: alert.ReviewedAt,
			CreatedAt:  alert.CreatedAt,
		})
	}
	return out, nil
}

// TriggerRiskScan runs a retrospective pass. A non-positive window falls back
// to the configured default.
func (s *AdminServiceImpl) TriggerRiskScan(ctx context.Context, traceID string, window time.Duration) (int, int, error) {
	if window <= 0 {
		window = s.cnf.RiskScanWindow
	}
	return s.engine.ScanRecentOrders(ctx, traceID, window)
}
