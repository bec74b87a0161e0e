package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one immutable entry of a product's price history.
type PricePoint struct {
	ID         int64
	ProductID  int64
	Price      decimal.Decimal
	RecordedAt time.Time
}

// PriceStats aggregates the full price history of a product.
// All fields are zero when the product has no history.
type PriceStats struct {
	Lowest  decimal.Decimal
	Highest decimal.Decimal
	Average decimal.Decimal
}

// ProductWithStats pairs a product with its price statistics for reporting.
type ProductWithStats struct {
	Product Product
	Stats   PriceStats
}

// PriceChange returns the percent change from previous to current.
// It is zero when there is no usable previous price.
func PriceChange(previous, current decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}
