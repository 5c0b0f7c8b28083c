package services

import (
	"context"
	"fmt"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PriceDetails is the full pricing breakdown for one order request.
type PriceDetails struct {
	UnitPrices    map[string]float64
	Discounts     map[string]float64 // per-unit discount amount
	Subtotal      float64            // sum of unitPrice * qty, before discounts
	TotalDiscount float64
	Total         float64
}

// PricingService computes the order total from catalogue state. Pure read,
// no side effects; runs inside the order transaction so prices and the
// inventory check see the same snapshot.
type PricingService interface {
	Price(ctx context.Context, tx pgx.Tx, traceID string, items []views.OrderItemInput) (PriceDetails, error)
}

type PricingServiceImpl struct {
	logger      *zap.Logger
	productRepo repositories.ProductRepository
}

func NewPricingService(logger *zap.Logger, productRepo repositories.ProductRepository) PricingService {
	return &PricingServiceImpl{logger: logger, productRepo: productRepo}
}

func (s *PricingServiceImpl) Price(ctx context.Context, tx pgx.Tx, traceID string, items []views.OrderItemInput) (PriceDetails, error) {
	details := PriceDetails{
		UnitPrices: make(map[string]float64, len(items)),
		Discounts:  make(map[string]float64, len(items)),
	}

	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	products, err := s.productRepo.FindBySKUs(ctx, tx, skus)
	if err != nil {
		return details, pkg.HandleSQLError(traceID, s.logger, err)
	}

	for _, item := range items {
		product, ok := products[item.SKU]
		if !ok {
			// The inventory check runs first, so this is a programming error
			// or a concurrently deleted product.
			return details, pkg.NewAppError(pkg.ErrServerCode,
				fmt.Sprintf("product %s disappeared during pricing", item.SKU), nil)
		}
		unitDiscount := product.UnitDiscount()
		details.UnitPrices[item.SKU] = product.Price
		details.Discounts[item.SKU] = unitDiscount
		details.Subtotal += product.Price * float64(item.Quantity)
		details.TotalDiscount += unitDiscount * float64(item.Quantity)
		details.Total += models.LineSubtotal(product.Price, unitDiscount, item.Quantity)
	}
	return details, nil
}
