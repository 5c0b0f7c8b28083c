package repositories

import (
	"context"
	"strconv"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RiskAlertRepository defines the interface for risk alert persistence.
type RiskAlertRepository interface {
	Create(ctx context.Context, tx pgx.Tx, alert models.RiskAlert) (pgconn.CommandTag, error)
	// List returns alerts for the admin surface, newest first. Empty status
	// and zero minScore mean no filtering on that dimension.
	List(ctx context.Context, db *database.DB, status pkg.RiskAlertStatus, minScore float64, limit int) ([]models.RiskAlert, error)
}

type RiskAlertRepositoryImpl struct {
}

func NewRiskAlertRepository() RiskAlertRepository {
	return &RiskAlertRepositoryImpl{}
}

func (r RiskAlertRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, alert models.RiskAlert) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		INSERT INTO risk_alerts (id, order_id, risk_type, risk_score, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.ID,
		alert.OrderID,
		alert.RiskType,
		alert.RiskScore,
		alert.Details,
		alert.Status,
		alert.CreatedAt,
	)
}

func (r RiskAlertRepositoryImpl) List(ctx context.Context, db *database.DB, status pkg.RiskAlertStatus, minScore float64, limit int) ([]models.RiskAlert, error) {
	query := `
		SELECT id, order_id, risk_type, risk_score, details, status, reviewed_by, reviewed_at, created_at
		FROM risk_alerts WHERE 1=1`
	args := make([]any, 0, 3)
	if status != "" {
		args = append(args, status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if minScore > 0 {
		args = append(args, minScore)
		query += ` AND risk_score >= $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.RiskAlert
	for rows.Next() {
		var alert models.RiskAlert
		if err := rows.Scan(
			&alert.ID, &alert.OrderID, &alert.RiskType, &alert.RiskScore,
			&alert.Details, &alert.Status, &alert.ReviewedBy, &alert.ReviewedAt,
			&alert.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
