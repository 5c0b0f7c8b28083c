package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/delivery"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/notifications"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxRunner abstracts database.DB's transaction entry point.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Notifier is the slice of the notification kit the orchestrator needs.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, templateKey string, data map[string]string)
	NotifyAdmin(ctx context.Context, templateKey string, data map[string]string)
}

type OrderService interface {
	CreateOrder(ctx context.Context, traceID string, req views.OrderRequest) (views.OrderResponse, error)
	GetOrder(ctx context.Context, traceID string, orderID uuid.UUID) (views.OrderDetail, error)
	ListUserOrders(ctx context.Context, traceID string, userID uuid.UUID) ([]views.OrderDetail, error)
	CancelOrder(ctx context.Context, traceID string, orderID uuid.UUID, reason string) error
	RefundOrder(ctx context.Context, traceID string, orderID uuid.UUID, reason string) error
}

type OrderServiceImpl struct {
	logger     *zap.Logger
	cnf        *configs.Config
	db         *database.DB
	runner     TxRunner
	orderRepo  repositories.OrderRepository
	userRepo   repositories.UserRepository
	inventory  InventoryService
	pricing    PricingService
	allocator  *delivery.Allocator
	notifier   Notifier
	dispatcher RiskDispatcher
}

func NewOrderService(
	logger *zap.Logger,
	cnf *configs.Config,
	db *database.DB,
	runner TxRunner,
	orderRepo repositories.OrderRepository,
	userRepo repositories.UserRepository,
	inventory InventoryService,
	pricing PricingService,
	allocator *delivery.Allocator,
	notifier Notifier,
	dispatcher RiskDispatcher,
) OrderService {
	return &OrderServiceImpl{
		logger:     logger,
		cnf:        cnf,
		db:         db,
		runner:     runner,
		orderRepo:  orderRepo,
		userRepo:   userRepo,
		inventory:  inventory,
		pricing:    pricing,
		allocator:  allocator,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

// CreateOrder is the transactional checkout path. Steps 1-5 (inventory, user,
// pricing, slot allocation, persistence) commit or roll back as one unit; the
// notification and the risk scan run after commit and never fail the order.
func (s *OrderServiceImpl) CreateOrder(ctx context.Context, traceID string, req views.OrderRequest) (views.OrderResponse, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return views.OrderResponse{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid user id", err)
	}
	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return views.OrderResponse{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid address id", err)
	}
	var requestedSlotID *uuid.UUID
	if req.DeliverySlotID != "" {
		slotID, err := uuid.Parse(req.DeliverySlotID)
		if err != nil {
			return views.OrderResponse{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid delivery slot id", err)
		}
		requestedSlotID = &slotID
	}

	now := time.Now().UTC()
	var order models.Order
	var assignment delivery.Assignment

	err = s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.inventory.Check(ctx, tx, traceID, req.Items); err != nil {
			return err
		}

		if _, err := s.userRepo.FindByID(ctx, tx, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return pkg.NewAppError(pkg.ErrRecordNotFoundCode, "user not found", err)
			}
			return pkg.HandleSQLError(traceID, s.logger, err)
		}

		price, err := s.pricing.Price(ctx, tx, traceID, req.Items)
		if err != nil {
			return err
		}

		assignment, err = s.allocator.Allocate(ctx, tx, delivery.Request{
			RequestedSlotID: requestedSlotID,
			StrategyName:    s.cnf.DefaultSlotStrategy,
			Now:             now,
		})
		if err != nil {
			return pkg.HandleSQLError(traceID, s.logger, err)
		}

		order = models.Order{
			ID:          uuid.New(),
			UserID:      userID,
			AddressID:   addressID,
			TotalAmount: price.Total,
			Status:      pkg.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if assignment.Slot != nil {
			slotID := assignment.Slot.ID
			order.DeliverySlotID = &slotID
		}
		if _, err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return pkg.HandleSQLError(traceID, s.logger, err)
		}

		lines := make([]models.OrderLine, 0, len(req.Items))
		for _, item := range req.Items {
			unitPrice := price.UnitPrices[item.SKU]
			discount := price.Discounts[item.SKU]
			lines = append(lines, models.OrderLine{
				ID:        uuid.New(),
				OrderID:   order.ID,
				SKU:       item.SKU,
				Quantity:  item.Quantity,
				UnitPrice: unitPrice,
				Discount:  discount,
				Subtotal:  models.LineSubtotal(unitPrice, discount, item.Quantity),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		order.Lines = lines
		if err := s.orderRepo.CreateLines(ctx, tx, lines); err != nil {
			return pkg.HandleSQLError(traceID, s.logger, err)
		}
		return nil
	})
	if err != nil {
		return views.OrderResponse{}, err
	}

	s.logger.Info("order created",
		zap.String(pkg.TraceId, traceID),
		zap.String(pkg.OrderId, order.ID.String()),
		zap.Float64("total", order.TotalAmount),
		zap.Bool("slot_requested", assignment.WasRequested),
		zap.Bool("slot_fallback", assignment.WasFallback))

	s.afterCommit(ctx, traceID, order, assignment)
	return buildOrderResponse(order, assignment), nil
}

// afterCommit fires the user notification and the risk scan dispatch.
func (s *OrderServiceImpl) afterCommit(ctx context.Context, traceID string, order models.Order, assignment delivery.Assignment) {
	var slotStart *time.Time
	if assignment.Slot != nil {
		start := assignment.Slot.StartTime
		slotStart = &start
	}
	slotInfo := notifications.SlotOutcomeLine(
		assignment.WasRequested, assignment.Fulfilled, assignment.FallbackReason, slotStart)

	orderID := order.ID
	s.notifier.NotifyUser(ctx, order.UserID, &orderID, "order_created", map[string]string{
		"orderId":  order.ID.String(),
		"total":    fmt.Sprintf("%.2f", order.TotalAmount),
		"slotInfo": slotInfo,
	})

	job := views.RiskScanJob{
		OrderID:          order.ID.String(),
		TraceID:          traceID,
		WasSlotRequested: assignment.WasRequested,
		RequestFulfilled: assignment.Fulfilled,
		EnqueuedAt:       time.Now().UTC(),
	}
	if assignment.RequestedSlotID != nil {
		job.RequestedSlotID = assignment.RequestedSlotID.String()
	}
	s.dispatcher.Dispatch(ctx, job)
}

func (s *OrderServiceImpl) GetOrder(ctx context.Context, traceID string, orderID uuid.UUID) (views.OrderDetail, error) {
	order, err := s.orderRepo.FindByIDWithLines(ctx, s.db, orderID)
	if err != nil {
		return views.OrderDetail{}, pkg.HandleSQLError(traceID, s.logger, err)
	}
	return buildOrderDetail(order), nil
}

func (s *OrderServiceImpl) ListUserOrders(ctx context.Context, traceID string, userID uuid.UUID) ([]views.OrderDetail, error) {
	orders, err := s.orderRepo.ListByUser(ctx, s.db, userID, s.cnf.OrderListLimit)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, s.logger, err)
	}
	out := make([]views.OrderDetail, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderDetail(order))
	}
	return out, nil
}

func (s *OrderServiceImpl) CancelOrder(ctx context.Context, traceID string, orderID uuid.UUID, reason string) error {
	order, err := s.transition(ctx, traceID, orderID, pkg.OrderStatusCancelled, "cancelled: "+reason)
	if err != nil {
		return err
	}
	id := order.ID
	s.notifier.NotifyUser(ctx, order.UserID, &id, "order_cancelled", map[string]string{
		"orderId": order.ID.String(),
		"reason":  reason,
	})
	return nil
}

func (s *OrderServiceImpl) RefundOrder(ctx context.Context, traceID string, orderID uuid.UUID, reason string) error {
	order, err := s.transition(ctx, traceID, orderID, pkg.OrderStatusRefunded, "refunded: "+reason)
	if err != nil {
		return err
	}
	id := order.ID
	total := fmt.Sprintf("%.2f", order.TotalAmount)
	s.notifier.NotifyUser(ctx, order.UserID, &id, "order_refunded", map[string]string{
		"orderId": order.ID.String(),
		"total":   total,
		"reason":  reason,
	})
	s.notifier.NotifyAdmin(ctx, "refund_processed", map[string]string{
		"orderId": order.ID.String(),
		"total":   total,
		"reason":  reason,
	})
	return nil
}

// transition moves the order to a terminal state and returns capacity to its
// slot, all inside one transaction.
func (s *OrderServiceImpl) transition(ctx context.Context, traceID string, orderID uuid.UUID, next pkg.OrderStatus, note string) (models.Order, error) {
	var order models.Order
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.FindByID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return pkg.NewAppError(pkg.ErrRecordNotFoundCode, "order not found", err)
			}
			return pkg.HandleSQLError(traceID, s.logger, err)
		}
		if !order.Status.CanTransitionTo(next) {
			return pkg.NewAppError(pkg.ErrBusinessRuleCode,
				fmt.Sprintf("order in status %s cannot move to %s", order.Status, next), nil)
		}
		if _, err := s.orderRepo.UpdateStatus(ctx, tx, orderID, next, note); err != nil {
			return pkg.HandleSQLError(traceID, s.logger, err)
		}
		if order.DeliverySlotID != nil {
			if err := s.allocator.Release(ctx, tx, *order.DeliverySlotID); err != nil {
				return pkg.HandleSQLError(traceID, s.logger, err)
			}
		}
		order.Status = next
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	s.logger.Info("order transitioned",
		zap.String(pkg.TraceId, traceID),
		zap.String(pkg.OrderId, orderID.String()),
		zap.String("status", string(next)))
	return order, nil
}

func buildOrderResponse(order models.Order, assignment delivery.Assignment) views.OrderResponse {
	resp := views.OrderResponse{
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
		SlotAssignment: views.SlotAssignment{
			WasRequested: assignment.WasRequested,
			WasFallback:  assignment.WasFallback,
		},
	}
	if order.DeliverySlotID != nil {
		id := order.DeliverySlotID.String()
		resp.DeliverySlotID = &id
		resp.SlotAssignment.Assigned = &id
	}
	if assignment.RequestedSlotID != nil {
		id := assignment.RequestedSlotID.String()
		resp.SlotAssignment.Requested = &id
	}
	return resp
}

func buildOrderDetail(order models.Order) views.OrderDetail {
	detail := views.OrderDetail{
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		AddressID:   order.AddressID.String(),
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		Notes:       order.Notes,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	if order.DeliverySlotID != nil {
		id := order.DeliverySlotID.String()
		detail.DeliverySlotID = &id
	}
	for _, line := range order.Lines {
		detail.Lines = append(detail.Lines, views.OrderLineView{
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
			Subtotal:  line.Subtotal,
		})
	}
	return detail
}
