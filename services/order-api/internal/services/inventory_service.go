package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// InventoryService validates that every requested line item can be fulfilled
// from the catalogue. All failures across the request are aggregated into one
// error so the caller sees every problem at once.
type InventoryService interface {
	Check(ctx context.Context, tx pgx.Tx, traceID string, items []views.OrderItemInput) error
}

type InventoryServiceImpl struct {
	logger      *zap.Logger
	productRepo repositories.ProductRepository
}

func NewInventoryService(logger *zap.Logger, productRepo repositories.ProductRepository) InventoryService {
	return &InventoryServiceImpl{logger: logger, productRepo: productRepo}
}

func (s *InventoryServiceImpl) Check(ctx context.Context, tx pgx.Tx, traceID string, items []views.OrderItemInput) error {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	products, err := s.productRepo.FindBySKUs(ctx, tx, skus)
	if err != nil {
		return pkg.HandleSQLError(traceID, s.logger, err)
	}

	var problems []string
	for _, item := range items {
		product, ok := products[item.SKU]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("unknown product %s", item.SKU))
		case !product.Active:
			problems = append(problems, fmt.Sprintf("product %s is not available", item.SKU))
		case product.Stock < item.Quantity:
			problems = append(problems, fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
				item.SKU, item.Quantity, product.Stock))
		}
	}
	if len(problems) > 0 {
		return pkg.NewAppError(pkg.ErrInventoryCode, strings.Join(problems, "; "), nil)
	}
	return nil
}
