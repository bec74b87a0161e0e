package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iyhunko/price-tracker/internal/metrics"
	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/iyhunko/price-tracker/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	productColumns = "id, name, price, link, image_url, store, price_change_percentage, created_at, updated_at"

	insertProductQuery = `INSERT INTO products (name, price, link, image_url, store, price_change_percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	updateProductQuery = `UPDATE products
		SET price = ?, link = ?, image_url = ?, price_change_percentage = ?, updated_at = ?
		WHERE id = ?`
	findByNameAndStoreQuery = `SELECT ` + productColumns + ` FROM products WHERE name = ? AND store = ?`
	findByIDQuery           = `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	insertPricePointQuery = `INSERT INTO price_history (product_id, price, recorded_at) VALUES (?, ?, ?)`
	latestPriceQuery      = `SELECT price FROM price_history WHERE product_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`
	priceHistoryQuery     = `SELECT id, product_id, price, recorded_at FROM price_history
		WHERE product_id = ? ORDER BY recorded_at DESC, id DESC`
	priceStatisticsQuery = `SELECT MIN(price), MAX(price), AVG(price) FROM price_history WHERE product_id = ?`

	deletePriceHistoryQuery = `DELETE FROM price_history WHERE product_id = ?`
	deleteProductQuery      = `DELETE FROM products WHERE id = ?`
)

// ProductRepository implements repository.ProductRepository on top of SQLite.
type ProductRepository struct {
	conn *Connector
}

// NewProductRepository creates a new ProductRepository instance.
func NewProductRepository(conn *Connector) repository.ProductRepository {
	return &ProductRepository{conn: conn}
}

// UpsertProduct inserts the candidate or updates the product with the same name and store,
// appending a price history point either way. The candidate is filled in with the stored id,
// change percentage and timestamps.
func (r *ProductRepository) UpsertProduct(ctx context.Context, candidate *model.Product) (int64, error) {
	defer metrics.ObserveDBOperation("upsert_product", time.Now())

	if candidate == nil {
		return 0, repository.InvalidArgument(errors.New("product must not be nil"))
	}

	var result string
	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = upsertProduct(ctx, tx, candidate)
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.ProductsUpserted.WithLabelValues(candidate.Store, result).Inc()
	return candidate.ID, nil
}

// UpsertProducts upserts every candidate inside one transaction.
// Each candidate sees the effects of the ones before it.
func (r *ProductRepository) UpsertProducts(ctx context.Context, candidates []*model.Product) ([]int64, error) {
	defer metrics.ObserveDBOperation("upsert_products", time.Now())

	for i, c := range candidates {
		if c == nil {
			return nil, repository.InvalidArgument(fmt.Errorf("product at index %d must not be nil", i))
		}
	}
	if len(candidates) == 0 {
		return []int64{}, nil
	}

	results := make([]string, len(candidates))
	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		for i, c := range candidates {
			result, err := upsertProduct(ctx, tx, c)
			if err != nil {
				return err
			}
			results[i] = result
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		metrics.ProductsUpserted.WithLabelValues(c.Store, results[i]).Inc()
	}
	return ids, nil
}

func upsertProduct(ctx context.Context, ex dbExecutor, candidate *model.Product) (string, error) {
	existing, err := findByNameAndStore(ctx, ex, candidate.Name, candidate.Store)
	if err != nil {
		return "", err
	}

	if existing == nil {
		candidate.PriceChangePercentage = decimal.Zero
		if candidate.CreatedAt.IsZero() {
			candidate.InitMeta()
		}
		if err := insertProduct(ctx, ex, candidate); err != nil {
			return "", err
		}
		if err := insertPricePoint(ctx, ex, candidate.ID, candidate.Price); err != nil {
			return "", err
		}
		return metrics.ResultCreated, nil
	}

	last, found, err := latestPrice(ctx, ex, existing.ID)
	if err != nil {
		return "", err
	}
	change := decimal.Zero
	if found {
		change = model.PriceChange(last, candidate.Price)
	}

	candidate.ID = existing.ID
	candidate.CreatedAt = existing.CreatedAt
	candidate.UpdatedAt = time.Now().UTC()
	candidate.PriceChangePercentage = change

	if err := updateProduct(ctx, ex, candidate); err != nil {
		return "", err
	}
	if err := insertPricePoint(ctx, ex, candidate.ID, candidate.Price); err != nil {
		return "", err
	}
	return metrics.ResultUpdated, nil
}

func insertProduct(ctx context.Context, ex dbExecutor, product *model.Product) error {
	stmt, err := ex.PrepareContext(ctx, insertProductQuery)
	if err != nil {
		return repository.StorageFault("failed to prepare insert statement", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		product.Name, product.Price, product.Link, product.ImageURL, product.Store,
		product.PriceChangePercentage, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return repository.StorageFault("failed to insert product", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return repository.StorageFault("failed to read product id", err)
	}
	product.ID = id
	return nil
}

func updateProduct(ctx context.Context, ex dbExecutor, product *model.Product) error {
	if product.ID == 0 {
		return repository.InvalidArgument(errors.New("product id is required for update"))
	}

	stmt, err := ex.PrepareContext(ctx, updateProductQuery)
	if err != nil {
		return repository.StorageFault("failed to prepare update statement", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		product.Price, product.Link, product.ImageURL, product.PriceChangePercentage, product.UpdatedAt, product.ID,
	)
	if err != nil {
		return repository.StorageFault("failed to update product", err)
	}
	return nil
}

func insertPricePoint(ctx context.Context, ex dbExecutor, productID int64, price decimal.Decimal) error {
	stmt, err := ex.PrepareContext(ctx, insertPricePointQuery)
	if err != nil {
		return repository.StorageFault("failed to prepare price history statement", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, productID, price, time.Now().UTC()); err != nil {
		return repository.StorageFault("failed to insert price history", err)
	}
	return nil
}

func latestPrice(ctx context.Context, ex dbExecutor, productID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := ex.QueryRowContext(ctx, latestPriceQuery, productID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, repository.StorageFault("failed to query latest price", err)
	}
	return price, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p        model.Product
		imageURL sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Link, &imageURL, &p.Store,
		&p.PriceChangePercentage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ImageURL = imageURL.String
	return &p, nil
}

func findByNameAndStore(ctx context.Context, ex dbExecutor, name, store string) (*model.Product, error) {
	product, err := scanProduct(ex.QueryRowContext(ctx, findByNameAndStoreQuery, name, store))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.StorageFault("failed to query product", err)
	}
	return product, nil
}

// GetProducts returns products, optionally filtered by store, capped at the query limit.
func (r *ProductRepository) GetProducts(ctx context.Context, query repository.Query) ([]model.Product, error) {
	defer metrics.ObserveDBOperation("get_products", time.Now())

	var products []model.Product
	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		var err error
		products, err = listProducts(ctx, conn, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func listProducts(ctx context.Context, ex dbExecutor, query repository.Query) ([]model.Product, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + productColumns + " FROM products")

	var args []any
	if store := query.Store(); store != "" {
		queryBuilder.WriteString(" WHERE store = ?")
		args = append(args, store)
	}
	queryBuilder.WriteString(" ORDER BY id LIMIT ?")
	args = append(args, query.EffectiveLimit())

	stmt, err := ex.PrepareContext(ctx, queryBuilder.String())
	if err != nil {
		return nil, repository.StorageFault("failed to prepare select statement", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, repository.StorageFault("failed to query products", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, repository.StorageFault("failed to scan product", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.StorageFault("error iterating rows", err)
	}
	return products, nil
}

// GetProductByID returns the product or nil when it does not exist.
func (r *ProductRepository) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	defer metrics.ObserveDBOperation("get_product_by_id", time.Now())

	var product *model.Product
	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, findByIDQuery)
		if err != nil {
			return repository.StorageFault("failed to prepare select statement", err)
		}
		defer stmt.Close()

		product, err = scanProduct(stmt.QueryRowContext(ctx, id))
		if errors.Is(err, sql.ErrNoRows) {
			product = nil
			return nil
		}
		if err != nil {
			return repository.StorageFault("failed to query product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes the product together with its price history. Unknown ids are ignored.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	defer metrics.ObserveDBOperation("delete_product", time.Now())

	var deleted int64
	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deletePriceHistoryQuery, id); err != nil {
			return repository.StorageFault("failed to delete price history", err)
		}

		stmt, err := tx.PrepareContext(ctx, deleteProductQuery)
		if err != nil {
			return repository.StorageFault("failed to prepare delete statement", err)
		}
		defer stmt.Close()

		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return repository.StorageFault("failed to delete product", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return repository.StorageFault("failed to get rows affected", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if deleted > 0 {
		metrics.ProductsDeleted.Inc()
	}
	return nil
}

// GetPriceHistory returns all price points of a product, newest first.
func (r *ProductRepository) GetPriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error) {
	defer metrics.ObserveDBOperation("get_price_history", time.Now())

	history := []model.PricePoint{}
	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, priceHistoryQuery, productID)
		if err != nil {
			return repository.StorageFault("failed to query price history", err)
		}
		defer rows.Close()

		for rows.Next() {
			var point model.PricePoint
			if err := rows.Scan(&point.ID, &point.ProductID, &point.Price, &point.RecordedAt); err != nil {
				return repository.StorageFault("failed to scan price point", err)
			}
			history = append(history, point)
		}
		if err := rows.Err(); err != nil {
			return repository.StorageFault("error iterating rows", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// GetLatestPrices returns the newest recorded price of each product that has any history.
func (r *ProductRepository) GetLatestPrices(ctx context.Context, productIDs []int64) (map[int64]decimal.Decimal, error) {
	defer metrics.ObserveDBOperation("get_latest_prices", time.Now())

	prices := make(map[int64]decimal.Decimal, len(productIDs))
	if len(productIDs) == 0 {
		return prices, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productIDs)), ",")
	query := fmt.Sprintf(`SELECT ph.product_id, ph.price FROM price_history ph
		WHERE ph.product_id IN (%s)
		AND ph.id = (
			SELECT latest.id FROM price_history latest
			WHERE latest.product_id = ph.product_id
			ORDER BY latest.recorded_at DESC, latest.id DESC
			LIMIT 1
		)`, placeholders)

	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return repository.StorageFault("failed to query latest prices", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id    int64
				price decimal.Decimal
			)
			if err := rows.Scan(&id, &price); err != nil {
				return repository.StorageFault("failed to scan latest price", err)
			}
			prices[id] = price
		}
		if err := rows.Err(); err != nil {
			return repository.StorageFault("error iterating rows", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prices, nil
}

// GetPriceStatistics aggregates the full price history of a product.
// All values are zero when the product has no history.
func (r *ProductRepository) GetPriceStatistics(ctx context.Context, productID int64) (model.PriceStats, error) {
	defer metrics.ObserveDBOperation("get_price_statistics", time.Now())

	var stats model.PriceStats
	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		var err error
		stats, err = priceStatistics(ctx, conn, productID)
		return err
	})
	if err != nil {
		return model.PriceStats{}, err
	}
	return stats, nil
}

func priceStatistics(ctx context.Context, ex dbExecutor, productID int64) (model.PriceStats, error) {
	var lowest, highest, average decimal.NullDecimal
	err := ex.QueryRowContext(ctx, priceStatisticsQuery, productID).Scan(&lowest, &highest, &average)
	if err != nil {
		return model.PriceStats{}, repository.StorageFault("failed to query price statistics", err)
	}

	stats := model.PriceStats{
		Lowest:  decimal.Zero,
		Highest: decimal.Zero,
		Average: decimal.Zero,
	}
	if lowest.Valid {
		stats.Lowest = lowest.Decimal
	}
	if highest.Valid {
		stats.Highest = highest.Decimal
	}
	if average.Valid {
		stats.Average = average.Decimal.Round(2)
	}
	return stats, nil
}

// GetProductsWithStats lists products together with their price statistics.
func (r *ProductRepository) GetProductsWithStats(ctx context.Context, query repository.Query) ([]model.ProductWithStats, error) {
	defer metrics.ObserveDBOperation("get_products_with_stats", time.Now())

	var result []model.ProductWithStats
	err := r.conn.WithConnection(ctx, func(conn *sql.Conn) error {
		products, err := listProducts(ctx, conn, query)
		if err != nil {
			return err
		}

		result = make([]model.ProductWithStats, 0, len(products))
		for _, product := range products {
			stats, err := priceStatistics(ctx, conn, product.ID)
			if err != nil {
				return err
			}
			result = append(result, model.ProductWithStats{Product: product, Stats: stats})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
