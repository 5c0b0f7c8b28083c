package repositories

import (
	"context"

	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UserRepository defines the interface for user lookups.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user models.User) (pgconn.CommandTag, error)
	FindByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (models.User, error)
}

type UserRepositoryImpl struct {
}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

func (u UserRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, user models.User) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		INSERT INTO users (id, email, name, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (email) DO NOTHING`,
		user.ID,
		user.Email,
		user.Name,
		user.Phone,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
}

func (u UserRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (models.User, error) {
	var user models.User
	err := tx.QueryRow(ctx, `
		SELECT id, email, name, phone, is_active, created_at, updated_at
		FROM users WHERE id = $1`, userID).Scan(
		&user.ID, &user.Email, &user.Name, &user.Phone,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
