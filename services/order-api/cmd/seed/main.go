// Catalogue, user and slot seeder for local development and load testing.
//
// Example:
//
//	APP_PRIMARY_DB_ADDR=user:pass@localhost:5432/freshbasket \
//	  go run ./services/order-api/cmd/seed -days=7
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	days        = flag.Int("days", 7, "Number of days of delivery slots to create")
	slotsPerDay = flag.Int("slotsPerDay", 4, "Delivery slots per day")
	capacity    = flag.Int("capacity", 10, "Max capacity per slot")
)

func main() {
	flag.Parse()
	pkg.InitLogger()
	logger := pkg.Logger

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		MaxConns:   4,
		MinConns:   1,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer disconnect()

	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	userRepo := repositories.NewUserRepository()
	productRepo := repositories.NewProductRepository()
	slotRepo := repositories.NewSlotRepository()

	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := seedUsers(ctx, tx, userRepo); err != nil {
			return err
		}
		if err := seedProducts(ctx, tx, productRepo); err != nil {
			return err
		}
		return seedSlots(ctx, tx, slotRepo)
	})
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	logger.Info("seeding complete",
		zap.Int("days", *days),
		zap.Int("slots_per_day", *slotsPerDay))
}

func seedUsers(ctx context.Context, tx pgx.Tx, repo repositories.UserRepository) error {
	now := time.Now().UTC()
	users := []models.User{
		{
			ID:        uuid.New(),
			Email:     "alice@example.com",
			Name:      "Alice Perera",
			Phone:     "+14165550101",
			IsActive:  true,
			CreatedAt: now.AddDate(0, -6, 0), // established account
			UpdatedAt: now,
		},
		{
			ID:        uuid.New(),
			Email:     "bob@example.com",
			Name:      "Bob Fernando",
			Phone:     "+14165550102",
			IsActive:  true,
			CreatedAt: now.AddDate(0, 0, -2), // two days old
			UpdatedAt: now,
		},
		{
			ID:        uuid.New(),
			Email:     "mallory@example.com",
			Name:      "Mallory New",
			Phone:     "+14165550103",
			IsActive:  true,
			CreatedAt: now.Add(-30 * time.Minute), // brand new, trips the account-age rule
			UpdatedAt: now,
		},
	}
	for _, user := range users {
		if _, err := repo.Create(ctx, tx, user); err != nil {
			return err
		}
	}
	return nil
}

func seedProducts(ctx context.Context, tx pgx.Tx, repo repositories.ProductRepository) error {
	now := time.Now().UTC()
	products := []models.Product{
		{SKU: "SKU001", Name: "Organic Bananas 1kg", Price: 3.49, Stock: 500, Active: true},
		{SKU: "SKU002", Name: "Whole Milk 2L", Price: 4.99, DiscountType: models.DiscountTypePercent, DiscountValue: 10, Stock: 200, Active: true},
		{SKU: "SKU003", Name: "Sourdough Loaf", Price: 6.50, DiscountType: models.DiscountTypeFixed, DiscountValue: 1, Stock: 80, Active: true},
		{SKU: "SKU004", Name: "Premium Beef Tenderloin 1kg", Price: 89.00, Stock: 25, Active: true},
		{SKU: "SKU005", Name: "Discontinued Cereal", Price: 5.99, Stock: 40, Active: false},
	}
	for i := range products {
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
		if _, err := repo.Create(ctx, tx, products[i]); err != nil {
			return err
		}
	}
	return nil
}

// seedSlots creates a window of future slots. Morning slots stay empty; the
// last slot of each day is seeded near capacity so the peak-usage risk rule
// has something to trigger on.
func seedSlots(ctx context.Context, tx pgx.Tx, repo repositories.SlotRepository) error {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, time.UTC)

	for day := 1; day <= *days; day++ {
		for i := 0; i < *slotsPerDay; i++ {
			start := startOfDay.AddDate(0, 0, day).Add(time.Duration(i*3) * time.Hour)
			usage := 0
			if i == *slotsPerDay-1 {
				usage = *capacity - 1 // evening slot near capacity
			}
			slot := models.DeliverySlot{
				ID:           uuid.New(),
				StartTime:    start,
				EndTime:      start.Add(2 * time.Hour),
				MaxCapacity:  *capacity,
				CurrentUsage: usage,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, err := repo.Create(ctx, tx, slot); err != nil {
				return fmt.Errorf("seed slot for day %d: %w", day, err)
			}
		}
	}
	return nil
}
