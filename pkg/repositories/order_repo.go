package repositories

import (
	"context"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// OrderRepository defines the interface for order persistence.
type OrderRepository interface {
	// Create inserts the order header.
	Create(ctx context.Context, tx pgx.Tx, order models.Order) (pgconn.CommandTag, error)
	// CreateLines batch-inserts the order lines.
	CreateLines(ctx context.Context, tx pgx.Tx, lines []models.OrderLine) error
	// FindByID loads the order header inside the caller's transaction.
	FindByID(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (models.Order, error)
	// FindByIDWithLines loads the order and its lines from a read replica.
	FindByIDWithLines(ctx context.Context, db *database.DB, orderID uuid.UUID) (models.Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, db *database.DB, userID uuid.UUID, limit int) ([]models.Order, error)
	// ListCreatedSince returns orders created at or after the cutoff,
	// oldest first. Feeds the retrospective risk scan.
	ListCreatedSince(ctx context.Context, db *database.DB, since time.Time) ([]models.Order, error)
	// UpdateStatus transitions the order and appends an audit note.
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status pkg.OrderStatus, note string) (pgconn.CommandTag, error)
}

type OrderRepositoryImpl struct {
}

func NewOrderRepository() OrderRepository {
	return &OrderRepositoryImpl{}
}

const orderColumns = `id, user_id, address_id, delivery_slot_id, total_amount, status, notes, created_at, updated_at`

func (o OrderRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, order models.Order) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, address_id, delivery_slot_id, total_amount, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID,
		order.UserID,
		order.AddressID,
		order.DeliverySlotID,
		order.TotalAmount,
		order.Status,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
}

func (o OrderRepositoryImpl) CreateLines(ctx context.Context, tx pgx.Tx, lines []models.OrderLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`
			INSERT INTO order_lines (id, order_id, sku, quantity, unit_price, discount, subtotal, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			line.ID, line.OrderID, line.SKU, line.Quantity,
			line.UnitPrice, line.Discount, line.Subtotal,
			line.CreatedAt, line.UpdatedAt)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range lines {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

func (o OrderRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	err := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID).Scan(
		&order.ID, &order.UserID, &order.AddressID, &order.DeliverySlotID,
		&order.TotalAmount, &order.Status, &order.Notes, &order.CreatedAt, &order.UpdatedAt)
	return order, err
}

func (o OrderRepositoryImpl) FindByIDWithLines(ctx context.Context, db *database.DB, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	err := db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID).Scan(
		&order.ID, &order.UserID, &order.AddressID, &order.DeliverySlotID,
		&order.TotalAmount, &order.Status, &order.Notes, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return order, err
	}

	rows, err := db.Query(ctx, `
		SELECT id, order_id, sku, quantity, unit_price, discount, subtotal, created_at, updated_at
		FROM order_lines WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return order, err
	}
	defer rows.Close()
	for rows.Next() {
		var line models.OrderLine
		if err := rows.Scan(
			&line.ID, &line.OrderID, &line.SKU, &line.Quantity,
			&line.UnitPrice, &line.Discount, &line.Subtotal,
			&line.CreatedAt, &line.UpdatedAt); err != nil {
			return order, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

func (o OrderRepositoryImpl) ListByUser(ctx context.Context, db *database.DB, userID uuid.UUID, limit int) ([]models.Order, error) {
	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (o OrderRepositoryImpl) ListCreatedSince(ctx context.Context, db *database.DB, since time.Time) ([]models.Order, error) {
	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (o OrderRepositoryImpl) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status pkg.OrderStatus, note string) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
		    updated_at = NOW()
		WHERE id = $1`, orderID, status, note)
}

func scanOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.AddressID, &order.DeliverySlotID,
			&order.TotalAmount, &order.Status, &order.Notes, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}
