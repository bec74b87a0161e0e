package sql

import (
	"context"
	"database/sql"

	"github.com/iyhunko/price-tracker/internal/model"
)

// UpdateProduct exposes the in-place product update so tests can call it without the upsert path.
func UpdateProduct(ctx context.Context, db *sql.DB, product *model.Product) error {
	return updateProduct(ctx, db, product)
}
