package sql_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iyhunko/price-tracker/internal/config"
	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/iyhunko/price-tracker/internal/repository"
	sqlrepo "github.com/iyhunko/price-tracker/internal/repository/sql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestDB opens a migrated database in a fresh temp directory.
func startTestDB(t *testing.T) *sqlrepo.Connector {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "products.db")
	conn, err := sqlrepo.StartDB(context.Background(), config.DB{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newCandidate(t *testing.T, name, store, price string) *model.Product {
	t.Helper()

	product, err := model.NewProductFromRaw(model.RawProduct{
		Name:  name,
		Price: []byte(`"` + price + `"`),
		Link:  "https://example.com/" + name,
		Image: "https://example.com/" + name + ".jpg",
	}, store)
	require.NoError(t, err)
	return product
}

func historyPrices(history []model.PricePoint) []string {
	prices := make([]string, 0, len(history))
	for _, point := range history {
		prices = append(prices, point.Price.StringFixed(2))
	}
	return prices
}

func TestSQLiteStore_FirstInsert(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))

	// given
	candidate := newCandidate(t, "RTX 4080", "microcenter", "$999.99")

	// when
	id, err := repo.UpsertProduct(ctx, candidate)
	require.NoError(t, err)

	// then
	assert.Equal(t, int64(1), id)

	stored, err := repo.GetProductByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "RTX 4080", stored.Name)
	assert.Equal(t, "microcenter", stored.Store)
	assert.Equal(t, "https://example.com/RTX 4080", stored.Link)
	assert.Equal(t, "https://example.com/RTX 4080.jpg", stored.ImageURL)
	assert.True(t, decimal.RequireFromString("999.99").Equal(stored.Price), "got %s", stored.Price)
	assert.True(t, stored.PriceChangePercentage.IsZero())
	assert.True(t, candidate.CreatedAt.Equal(stored.CreatedAt))

	history, err := repo.GetPriceHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"999.99"}, historyPrices(history))
}

func TestSQLiteStore_RepeatedUpserts(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))
	prices := []string{"100", "150", "80", "0", "40"}

	var id int64
	for _, price := range prices {
		var err error
		id, err = repo.UpsertProduct(ctx, newCandidate(t, "GPU", "newegg", price))
		require.NoError(t, err)
	}

	product, err := repo.GetProductByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, product)
	// previous price was 0, so there is no usable base for a percentage
	assert.True(t, product.PriceChangePercentage.IsZero())
	assert.True(t, decimal.NewFromInt(40).Equal(product.Price))

	history, err := repo.GetPriceHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"40.00", "0.00", "80.00", "150.00", "100.00"}, historyPrices(history))
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].RecordedAt.After(history[i-1].RecordedAt))
	}

	products, err := repo.GetProducts(ctx, *repository.NewQuery())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestSQLiteStore_PriceChange(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))

	_, err := repo.UpsertProduct(ctx, newCandidate(t, "CPU", "microcenter", "100"))
	require.NoError(t, err)
	second := newCandidate(t, "CPU", "microcenter", "150")
	id, err := repo.UpsertProduct(ctx, second)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(50).Equal(second.PriceChangePercentage))
	product, err := repo.GetProductByID(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, product.PriceChangePercentage.InexactFloat64(), 0.0001)
	assert.False(t, product.UpdatedAt.Before(product.CreatedAt))
}

func TestSQLiteStore_PriceStatistics(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))

	var id int64
	for _, price := range []string{"100", "150", "80"} {
		var err error
		id, err = repo.UpsertProduct(ctx, newCandidate(t, "Monitor", "microcenter", price))
		require.NoError(t, err)
	}

	stats, err := repo.GetPriceStatistics(ctx, id)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(80).Equal(stats.Lowest))
	assert.True(t, decimal.NewFromInt(150).Equal(stats.Highest))
	assert.True(t, decimal.NewFromInt(110).Equal(stats.Average))

	empty, err := repo.GetPriceStatistics(ctx, id+100)
	require.NoError(t, err)
	assert.True(t, empty.Lowest.IsZero())
	assert.True(t, empty.Highest.IsZero())
	assert.True(t, empty.Average.IsZero())

	withStats, err := repo.GetProductsWithStats(ctx, *repository.NewQuery().With(repository.StoreField, "microcenter"))
	require.NoError(t, err)
	require.Len(t, withStats, 1)
	assert.Equal(t, id, withStats[0].Product.ID)
	assert.True(t, stats.Average.Equal(withStats[0].Stats.Average))
}

func TestSQLiteStore_DeleteProduct(t *testing.T) {
	ctx := context.Background()
	conn := startTestDB(t)
	repo := sqlrepo.NewProductRepository(conn)

	id, err := repo.UpsertProduct(ctx, newCandidate(t, "Keyboard", "microcenter", "50"))
	require.NoError(t, err)
	_, err = repo.UpsertProduct(ctx, newCandidate(t, "Keyboard", "microcenter", "45"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteProduct(ctx, id))

	product, err := repo.GetProductByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, product)

	history, err := repo.GetPriceHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)

	var orphans int
	err = conn.WithConnection(ctx, func(c *sql.Conn) error {
		return c.QueryRowContext(ctx, "SELECT COUNT(*) FROM price_history WHERE product_id = ?", id).Scan(&orphans)
	})
	require.NoError(t, err)
	assert.Zero(t, orphans)

	// deleting again is a no-op
	assert.NoError(t, repo.DeleteProduct(ctx, id))
}

func TestSQLiteStore_GetLatestPrices(t *testing.T) {
	ctx := context.Background()
	conn := startTestDB(t)
	repo := sqlrepo.NewProductRepository(conn)

	withHistory, err := repo.UpsertProduct(ctx, newCandidate(t, "Mouse", "microcenter", "30"))
	require.NoError(t, err)
	_, err = repo.UpsertProduct(ctx, newCandidate(t, "Mouse", "microcenter", "25"))
	require.NoError(t, err)

	var withoutHistory int64
	err = conn.WithConnection(ctx, func(c *sql.Conn) error {
		res, err := c.ExecContext(ctx,
			"INSERT INTO products (name, price, link, image_url, store) VALUES ('Bare', 10, '', '', 'microcenter')")
		if err != nil {
			return err
		}
		withoutHistory, err = res.LastInsertId()
		return err
	})
	require.NoError(t, err)

	prices, err := repo.GetLatestPrices(ctx, []int64{withHistory, withoutHistory})
	require.NoError(t, err)

	assert.Len(t, prices, 1)
	assert.True(t, decimal.NewFromInt(25).Equal(prices[withHistory]))
	assert.NotContains(t, prices, withoutHistory)
}

func TestSQLiteStore_StoreScoping(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))

	ids, err := repo.UpsertProducts(ctx, []*model.Product{
		newCandidate(t, "SSD", "microcenter", "80"),
		newCandidate(t, "SSD", "newegg", "75"),
		newCandidate(t, "SSD", "microcenter", "60"),
	})
	require.NoError(t, err)

	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])

	microcenter, err := repo.GetProducts(ctx, *repository.NewQuery().With(repository.StoreField, "microcenter"))
	require.NoError(t, err)
	require.Len(t, microcenter, 1)
	assert.InDelta(t, -25.0, microcenter[0].PriceChangePercentage.InexactFloat64(), 0.0001)

	limited, err := repo.GetProducts(ctx, *repository.NewQuery().ApplyLimit(1))
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewProductRepository(startTestDB(t))

	// given
	first := newCandidate(t, "RTX 4080", "microcenter", "$999.99")
	second := newCandidate(t, "RTX 4080", "microcenter", "$899.99")

	// when
	firstID, err := repo.UpsertProduct(ctx, first)
	require.NoError(t, err)
	secondID, err := repo.UpsertProduct(ctx, second)
	require.NoError(t, err)

	// then
	assert.Equal(t, int64(1), firstID)
	assert.Equal(t, firstID, secondID)

	product, err := repo.GetProductByID(ctx, firstID)
	require.NoError(t, err)
	assert.InDelta(t, -10.0, product.PriceChangePercentage.InexactFloat64(), 0.01)

	history, err := repo.GetPriceHistory(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, []string{"899.99", "999.99"}, historyPrices(history))
}
