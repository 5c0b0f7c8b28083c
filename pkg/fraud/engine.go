package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// adminAlertThreshold is the aggregate score at which an evaluation also
// raises an admin notification.
const adminAlertThreshold = 0.7

// TxRunner abstracts database.DB's transaction entry point so tests can run
// the evaluation body without a live pool.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// AdminNotifier receives engine side effects. Implementations must be
// non-blocking or tolerant of slow delivery; the engine fires and forgets.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, templateKey string, data map[string]string)
}

// ScanMarker records which orders have already been through an evaluation
// pass, so queue redeliveries and overlapping retrospective scans do not
// produce duplicate alerts. Mark returns false when the order was already
// marked. Unmark releases the claim after a failed pass so the order stays
// eligible for redelivery and rescans.
type ScanMarker interface {
	Mark(ctx context.Context, orderID uuid.UUID) (bool, error)
	Unmark(ctx context.Context, orderID uuid.UUID) error
}

// Verdict is the outcome of one evaluation pass.
type Verdict struct {
	OrderID  uuid.UUID
	Score    float64
	Category pkg.RiskCategory
	TopRule  string // rule that produced the maximum score
	Alert    *models.RiskAlert
	Skipped  bool // already scanned
}

// Engine evaluates persisted orders against the rule set and records alerts.
type Engine struct {
	db        *database.DB
	runner    TxRunner
	orderRepo repositories.OrderRepository
	userRepo  repositories.UserRepository
	slotRepo  repositories.SlotRepository
	alertRepo repositories.RiskAlertRepository
	rules     []RiskRule
	marker    ScanMarker
	notifier  AdminNotifier
	logger    *zap.Logger
}

func NewEngine(
	db *database.DB,
	runner TxRunner,
	orderRepo repositories.OrderRepository,
	userRepo repositories.UserRepository,
	slotRepo repositories.SlotRepository,
	alertRepo repositories.RiskAlertRepository,
	rules []RiskRule,
	marker ScanMarker,
	notifier AdminNotifier,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:        db,
		runner:    runner,
		orderRepo: orderRepo,
		userRepo:  userRepo,
		slotRepo:  slotRepo,
		alertRepo: alertRepo,
		rules:     rules,
		marker:    marker,
		notifier:  notifier,
		logger:    logger,
	}
}

// EvaluateOrder runs every rule against the order snapshot, persists at most
// one alert and notifies the admin channel above the threshold. A zero
// aggregate score produces no alert and a nil Alert in the verdict.
func (e *Engine) EvaluateOrder(ctx context.Context, traceID string, orderID uuid.UUID, selection *SlotSelection) (Verdict, error) {
	verdict := Verdict{OrderID: orderID}

	if e.marker != nil {
		fresh, err := e.marker.Mark(ctx, orderID)
		if err != nil {
			// Dedupe is advisory; evaluate anyway rather than drop the scan.
			e.logger.Warn("scan marker unavailable",
				zap.String(pkg.TraceId, traceID), zap.Error(err))
		} else if !fresh {
			e.logger.Debug("order already scanned, skipping",
				zap.String(pkg.TraceId, traceID),
				zap.String(pkg.OrderId, orderID.String()))
			verdict.Skipped = true
			return verdict, nil
		}
	}

	err := e.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		input, err := e.loadInput(ctx, tx, orderID, selection)
		if err != nil {
			return err
		}

		score, topRule, details := e.applyRules(traceID, input)
		verdict.Score = score
		verdict.TopRule = topRule
		if score == 0 {
			return nil
		}

		category := models.BandForScore(score)
		verdict.Category = category
		alert := models.RiskAlert{
			ID:        uuid.New(),
			OrderID:   orderID,
			RiskType:  string(category),
			RiskScore: score,
			Details:   details,
			Status:    pkg.RiskAlertPending,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := e.alertRepo.Create(ctx, tx, alert); err != nil {
			return err
		}
		verdict.Alert = &alert
		return nil
	})
	if err != nil {
		e.unmark(ctx, traceID, orderID)
		return verdict, err
	}

	if verdict.Alert != nil && verdict.Score >= adminAlertThreshold && e.notifier != nil {
		e.notifier.NotifyAdmin(ctx, "high_risk_order", map[string]string{
			"orderId":   orderID.String(),
			"riskType":  verdict.TopRule,
			"riskScore": fmt.Sprintf("%.2f", verdict.Score),
			"details":   verdict.Alert.Details,
		})
	}
	return verdict, nil
}

// ScanRecentOrders evaluates every order created within the window that has
// not been scanned yet. Slot-selection context is gone by then, so the
// anomaly rule stays untriggered for these passes.
func (e *Engine) ScanRecentOrders(ctx context.Context, traceID string, window time.Duration) (scanned, alerted int, err error) {
	since := time.Now().UTC().Add(-window)
	orders, err := e.orderRepo.ListCreatedSince(ctx, e.db, since)
	if err != nil {
		return 0, 0, err
	}

	for _, order := range orders {
		verdict, err := e.EvaluateOrder(ctx, traceID, order.ID, nil)
		if err != nil {
			e.logger.Error("scan pass failed for order",
				zap.String(pkg.TraceId, traceID),
				zap.String(pkg.OrderId, order.ID.String()),
				zap.Error(err))
			continue
		}
		if verdict.Skipped {
			continue
		}
		scanned++
		if verdict.Alert != nil {
			alerted++
		}
	}
	e.logger.Info("retrospective risk scan finished",
		zap.String(pkg.TraceId, traceID),
		zap.Int("orders", len(orders)),
		zap.Int("scanned", scanned),
		zap.Int("alerted", alerted))
	return scanned, alerted, nil
}

// unmark gives the dedupe claim back after a failed pass. Without this a
// transient storage fault would leave the order permanently unscored: every
// redelivery and rescan would see the stale marker and skip it.
func (e *Engine) unmark(ctx context.Context, traceID string, orderID uuid.UUID) {
	if e.marker == nil {
		return
	}
	if err := e.marker.Unmark(ctx, orderID); err != nil {
		e.logger.Warn("failed to release scan marker",
			zap.String(pkg.TraceId, traceID),
			zap.String(pkg.OrderId, orderID.String()),
			zap.Error(err))
	}
}

func (e *Engine) loadInput(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, selection *SlotSelection) (RuleInput, error) {
	order, err := e.orderRepo.FindByID(ctx, tx, orderID)
	if err != nil {
		return RuleInput{}, fmt.Errorf("load order: %w", err)
	}
	user, err := e.userRepo.FindByID(ctx, tx, order.UserID)
	if err != nil {
		return RuleInput{}, fmt.Errorf("load user: %w", err)
	}
	input := RuleInput{Order: order, User: user, Selection: selection}
	if order.DeliverySlotID != nil {
		slot, err := e.slotRepo.FindByID(ctx, tx, *order.DeliverySlotID)
		if err != nil {
			return RuleInput{}, fmt.Errorf("load slot: %w", err)
		}
		input.Slot = &slot
	}
	return input, nil
}

// applyRules returns the maximum triggered score, the rule that produced it,
// and the per-rule evidence lines.
func (e *Engine) applyRules(traceID string, input RuleInput) (float64, string, string) {
	var maxScore float64
	var topRule string
	var lines []string

	for _, rule := range e.rules {
		result := rule.Evaluate(input)
		if !result.Triggered {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", rule.Name(), result.Evidence))
		if result.Score > maxScore {
			maxScore = result.Score
			topRule = rule.Name()
		}
		e.logger.Debug("risk rule triggered",
			zap.String(pkg.TraceId, traceID),
			zap.String(pkg.OrderId, input.Order.ID.String()),
			zap.String("rule", rule.Name()),
			zap.Float64("score", result.Score))
	}
	return maxScore, topRule, strings.Join(lines, "\n")
}
