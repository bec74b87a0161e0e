package repository

import (
	"context"

	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/shopspring/decimal"
)

// ProductRepository defines the product and price-history store.
// UpsertProduct and UpsertProducts are the only write paths for scraped data.
type ProductRepository interface {
	UpsertProduct(ctx context.Context, candidate *model.Product) (id int64, err error)
	UpsertProducts(ctx context.Context, candidates []*model.Product) (ids []int64, err error)
	GetProducts(ctx context.Context, query Query) ([]model.Product, error)
	GetProductByID(ctx context.Context, id int64) (*model.Product, error) // nil when absent
	DeleteProduct(ctx context.Context, id int64) error
	GetPriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error)
	GetLatestPrices(ctx context.Context, productIDs []int64) (map[int64]decimal.Decimal, error)
	GetPriceStatistics(ctx context.Context, productID int64) (model.PriceStats, error)
	GetProductsWithStats(ctx context.Context, query Query) ([]model.ProductWithStats, error)
}
