package repositories

import (
	"context"

	"github.com/freshbasket/fulfillment-core/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProductRepository defines the interface for product catalogue access.
type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, product models.Product) (pgconn.CommandTag, error)
	// FindBySKUs returns products keyed by SKU. SKUs with no matching row are
	// simply absent from the map; callers decide whether that is an error.
	FindBySKUs(ctx context.Context, tx pgx.Tx, skus []string) (map[string]models.Product, error)
}

type ProductRepositoryImpl struct {
}

func NewProductRepository() ProductRepository {
	return &ProductRepositoryImpl{}
}

func (p ProductRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, product models.Product) (pgconn.CommandTag, error) {
	return tx.Exec(ctx, `
		INSERT INTO products (sku, name, price, discount_type, discount_value, stock, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (sku) DO NOTHING`,
		product.SKU,
		product.Name,
		product.Price,
		product.DiscountType,
		product.DiscountValue,
		product.Stock,
		product.Active,
		product.CreatedAt,
		product.UpdatedAt,
	)
}

func (p ProductRepositoryImpl) FindBySKUs(ctx context.Context, tx pgx.Tx, skus []string) (map[string]models.Product, error) {
	rows, err := tx.Query(ctx, `
		SELECT sku, name, price, discount_type, discount_value, stock, active, created_at, updated_at
		FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]models.Product, len(skus))
	for rows.Next() {
		var product models.Product
		if err := rows.Scan(
			&product.SKU, &product.Name, &product.Price,
			&product.DiscountType, &product.DiscountValue,
			&product.Stock, &product.Active,
			&product.CreatedAt, &product.UpdatedAt); err != nil {
			return nil, err
		}
		products[product.SKU] = product
	}
	return products, rows.Err()
}
