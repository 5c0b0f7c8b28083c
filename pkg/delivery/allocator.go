package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// strategyReserveAttempts bounds how many strategy proposals the allocator
// will try when reservations race with concurrent orders.
const strategyReserveAttempts = 3

// Request describes one slot allocation inside an order transaction.
type Request struct {
	RequestedSlotID *uuid.UUID // nil when the caller expressed no preference
	StrategyName    string     // empty means the registry default
	Now             time.Time
}

// Assignment is the outcome of an allocation. Slot is nil when no capacity
// existed anywhere, which is not an error: the order proceeds unslotted.
type Assignment struct {
	Slot            *models.DeliverySlot
	RequestedSlotID *uuid.UUID
	WasRequested    bool // caller asked for a specific slot
	Fulfilled       bool // the requested slot is the one reserved
	WasFallback     bool // a strategy slot replaced the requested one
	FallbackReason  string
}

// Allocator validates, selects and reserves delivery slots. All methods run
// inside the caller's transaction so reservation and order insert commit or
// roll back together.
type Allocator struct {
	slotRepo repositories.SlotRepository
	registry *StrategyRegistry
	logger   *zap.Logger
}

func NewAllocator(slotRepo repositories.SlotRepository, registry *StrategyRegistry, logger *zap.Logger) *Allocator {
	return &Allocator{slotRepo: slotRepo, registry: registry, logger: logger}
}

// ValidateRequestedSlot checks a user-requested slot against the current
// snapshot. Failures come back as the slot sentinels; anything else is a
// storage error.
func (a *Allocator) ValidateRequestedSlot(ctx context.Context, tx pgx.Tx, slotID uuid.UUID, now time.Time) (models.DeliverySlot, error) {
	slot, err := a.slotRepo.FindByID(ctx, tx, slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeliverySlot{}, pkg.ErrSlotNotFound
		}
		return models.DeliverySlot{}, err
	}
	switch {
	case !slot.IsActive:
		return slot, pkg.ErrSlotInactive
	case slot.IsFull():
		return slot, pkg.ErrSlotFull
	case !slot.StartTime.After(now):
		return slot, pkg.ErrSlotExpired
	}
	return slot, nil
}

// Allocate resolves the slot for an order. A requested slot that fails
// validation or loses the capacity race never fails the order; the default
// strategy takes over and the assignment records why.
func (a *Allocator) Allocate(ctx context.Context, tx pgx.Tx, req Request) (Assignment, error) {
	assignment := Assignment{
		RequestedSlotID: req.RequestedSlotID,
		WasRequested:    req.RequestedSlotID != nil,
	}

	if req.RequestedSlotID != nil {
		slot, err := a.ValidateRequestedSlot(ctx, tx, *req.RequestedSlotID, req.Now)
		switch {
		case err == nil:
			reserveErr := a.slotRepo.Reserve(ctx, tx, slot.ID)
			if reserveErr == nil {
				slot.CurrentUsage++
				assignment.Slot = &slot
				assignment.Fulfilled = true
				return assignment, nil
			}
			if !errors.Is(reserveErr, pkg.ErrSlotCapacityExceeded) {
				return assignment, reserveErr
			}
			assignment.FallbackReason = pkg.ErrSlotFull.Error()
		case isSlotRejection(err):
			assignment.FallbackReason = err.Error()
		default:
			return assignment, err
		}
		assignment.WasFallback = true
		a.logger.Warn("requested slot rejected, falling back to strategy",
			zap.String(pkg.SlotId, req.RequestedSlotID.String()),
			zap.String("reason", assignment.FallbackReason))
	}

	strategy, err := a.resolveStrategy(req.StrategyName)
	if err != nil {
		return assignment, err
	}

	for attempt := 0; attempt < strategyReserveAttempts; attempt++ {
		candidate, err := strategy.Propose(ctx, tx, req.Now)
		if err != nil {
			return assignment, err
		}
		if candidate == nil {
			a.logger.Warn("no delivery capacity available",
				zap.String("strategy", strategy.Name()))
			return assignment, nil
		}
		err = a.slotRepo.Reserve(ctx, tx, candidate.ID)
		if err == nil {
			candidate.CurrentUsage++
			assignment.Slot = candidate
			return assignment, nil
		}
		if !errors.Is(err, pkg.ErrSlotCapacityExceeded) {
			return assignment, err
		}
		// Lost the race for this candidate; ask the strategy again.
	}
	return assignment, nil
}

// Release returns a reserved unit of capacity, e.g. on cancellation or
// refund. Releasing an already-empty slot logs and succeeds, so repeated
// cancellations stay idempotent.
func (a *Allocator) Release(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	released, err := a.slotRepo.Release(ctx, tx, slotID)
	if err != nil {
		return err
	}
	if !released {
		a.logger.Warn("release on slot with zero usage",
			zap.String(pkg.SlotId, slotID.String()))
	}
	return nil
}

func (a *Allocator) resolveStrategy(name string) (SlotStrategy, error) {
	if name == "" {
		return a.registry.Default(), nil
	}
	return a.registry.Get(name)
}

func isSlotRejection(err error) bool {
	return errors.Is(err, pkg.ErrSlotNotFound) ||
		errors.Is(err, pkg.ErrSlotInactive) ||
		errors.Is(err, pkg.ErrSlotFull) ||
		errors.Is(err, pkg.ErrSlotExpired)
}
