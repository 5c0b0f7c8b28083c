package services

import (
	"context"
	"testing"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCatalogue() *fakeProductRepo {
	return &fakeProductRepo{products: map[string]models.Product{
		"MILK": {
			SKU: "MILK", Price: 5.00, Stock: 100, Active: true,
			DiscountType: models.DiscountTypePercent, DiscountValue: 10,
		},
		"BREAD": {
			SKU: "BREAD", Price: 6.50, Stock: 100, Active: true,
			DiscountType: models.DiscountTypeFixed, DiscountValue: 1,
		},
		"EGGS": {SKU: "EGGS", Price: 4.00, Stock: 100, Active: true},
	}}
}

func TestPrice_AppliesDiscountTypes(t *testing.T) {
	pricing := NewPricingService(zap.NewNop(), newCatalogue())

	details, err := pricing.Price(context.Background(), nil, "t-1", []views.OrderItemInput{
		{SKU: "MILK", Quantity: 2},  // 10% off 5.00 -> 0.50 per unit
		{SKU: "BREAD", Quantity: 1}, // 1.00 off per unit
		{SKU: "EGGS", Quantity: 3},  // no discount
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.50, details.Discounts["MILK"], 1e-9)
	assert.InDelta(t, 1.00, details.Discounts["BREAD"], 1e-9)
	assert.InDelta(t, 0.00, details.Discounts["EGGS"], 1e-9)

	// Subtotal: 2*5.00 + 1*6.50 + 3*4.00 = 28.50
	assert.InDelta(t, 28.50, details.Subtotal, 1e-9)
	// Discounts: 2*0.50 + 1*1.00 = 2.00
	assert.InDelta(t, 2.00, details.TotalDiscount, 1e-9)
	assert.InDelta(t, 26.50, details.Total, 1e-9)
}

func TestPrice_MissingProductFails(t *testing.T) {
	pricing := NewPricingService(zap.NewNop(), newCatalogue())

	_, err := pricing.Price(context.Background(), nil, "t-2", []views.OrderItemInput{
		{SKU: "CAVIAR", Quantity: 1},
	})

	require.Error(t, err)
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrServerCode.Code, appErr.Code.Code)
}

func TestInventoryCheck_AggregatesEveryProblem(t *testing.T) {
	catalogue := newCatalogue()
	inactive := catalogue.products["EGGS"]
	inactive.Active = false
	catalogue.products["EGGS"] = inactive
	inventory := NewInventoryService(zap.NewNop(), catalogue)

	err := inventory.Check(context.Background(), nil, "t-3", []views.OrderItemInput{
		{SKU: "MILK", Quantity: 500}, // over stock
		{SKU: "EGGS", Quantity: 1},   // inactive
		{SKU: "GOLD", Quantity: 1},   // unknown
	})

	require.Error(t, err)
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrInventoryCode.Code, appErr.Code.Code)
	assert.Contains(t, appErr.Message, "insufficient stock for MILK")
	assert.Contains(t, appErr.Message, "EGGS is not available")
	assert.Contains(t, appErr.Message, "unknown product GOLD")
}

func TestInventoryCheck_PassesWhenFulfillable(t *testing.T) {
	inventory := NewInventoryService(zap.NewNop(), newCatalogue())

	err := inventory.Check(context.Background(), nil, "t-4", []views.OrderItemInput{
		{SKU: "MILK", Quantity: 10},
		{SKU: "EGGS", Quantity: 5},
	})
	assert.NoError(t, err)
}
