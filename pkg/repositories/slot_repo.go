package repositories

import (
	"context"
	"strconv"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SlotRepository defines the interface for delivery slot persistence.
// Reserve and Release are the only permitted mutators of current_usage.
type SlotRepository interface {
	// Create inserts a new delivery slot.
	Create(ctx context.Context, tx pgx.Tx, slot models.DeliverySlot) (pgconn.CommandTag, error)
	// FindByID loads a slot snapshot inside the caller's transaction.
	FindByID(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) (models.DeliverySlot, error)
	// FindAvailable returns active, non-full slots starting after now,
	// ordered by start time ascending.
	FindAvailable(ctx context.Context, tx pgx.Tx, now time.Time) ([]models.DeliverySlot, error)
	// Reserve atomically re-checks capacity and increments usage by one.
	// Returns pkg.ErrSlotCapacityExceeded when the slot is already full.
	Reserve(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error
	// Release decrements usage by one, floored at zero. The bool result is
	// false when usage was already zero and nothing changed.
	Release(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) (bool, error)
	// List returns slots for the admin surface, optionally including
	// inactive slots and bounded by a time window.
	List(ctx context.Context, db *database.DB, showInactive bool, from, to *time.Time) ([]models.DeliverySlot, error)
}

type SlotRepositoryImpl struct {
}

func NewSlotRepository() SlotRepository {
	return &SlotRepositoryImpl{}
}

const slotColumns = `id, start_time, end_time, max_capacity, current_usage, is_active, created_at, updated_at`

func (s SlotRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, slot models.DeliverySlot) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		INSERT INTO delivery_slots (id, start_time, end_time, max_capacity, current_usage, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING`,
		slot.ID,
		slot.StartTime,
		slot.EndTime,
		slot.MaxCapacity,
		slot.CurrentUsage,
		slot.IsActive,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
}

func (s SlotRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) (models.DeliverySlot, error) {
	var slot models.DeliverySlot
	err := tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM delivery_slots WHERE id = $1`, slotID).Scan(
		&slot.ID, &slot.StartTime, &slot.EndTime, &slot.MaxCapacity, &slot.CurrentUsage,
		&slot.IsActive, &slot.CreatedAt, &slot.UpdatedAt)
	return slot, err
}

func (s SlotRepositoryImpl) FindAvailable(ctx context.Context, tx pgx.Tx, now time.Time) ([]models.DeliverySlot, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+slotColumns+` FROM delivery_slots
		WHERE is_active AND current_usage < max_capacity AND start_time > $1
		ORDER BY start_time ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

// Reserve is the load-bearing invariant of the allocator: the capacity
// re-check and the increment are a single statement, so two transactions
// racing for the last unit cannot both succeed.
func (s SlotRepositoryImpl) Reserve(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	ct, err := tx.Exec(ctx, `
		UPDATE delivery_slots
		SET current_usage = current_usage + 1, updated_at = NOW()
		WHERE id = $1 AND current_usage < max_capacity`, slotID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pkg.ErrSlotCapacityExceeded
	}
	return nil
}

func (s SlotRepositoryImpl) Release(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) (bool, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE delivery_slots
		SET current_usage = current_usage - 1, updated_at = NOW()
		WHERE id = $1 AND current_usage > 0`, slotID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s SlotRepositoryImpl) List(ctx context.Context, db *database.DB, showInactive bool, from, to *time.Time) ([]models.DeliverySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM delivery_slots WHERE 1=1`
	args := make([]any, 0, 2)
	if !showInactive {
		query += ` AND is_active`
	}
	if from != nil {
		args = append(args, *from)
		query += ` AND start_time >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += ` AND end_time <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY start_time ASC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

func scanSlots(rows pgx.Rows) ([]models.DeliverySlot, error) {
	var slots []models.DeliverySlot
	for rows.Next() {
		var slot models.DeliverySlot
		if err := rows.Scan(
			&slot.ID, &slot.StartTime, &slot.EndTime, &slot.MaxCapacity, &slot.CurrentUsage,
			&slot.IsActive, &slot.CreatedAt, &slot.UpdatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}
