package integration

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/iyhunko/price-tracker/internal/config"
	httpAPI "github.com/iyhunko/price-tracker/internal/http"
	"github.com/iyhunko/price-tracker/internal/http/controller"
	sqlrepo "github.com/iyhunko/price-tracker/internal/repository/sql"
	"github.com/iyhunko/price-tracker/internal/service"
)

// TestDB holds a migrated database file that lives for one test
type TestDB struct {
	Conn *sqlrepo.Connector
	Path string
}

// SetupTestDB opens a fresh database in a temp directory and runs migrations
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "products.db")
	conn, err := sqlrepo.StartDB(context.Background(), config.DB{Path: path})
	if err != nil {
		t.Fatalf("Could not start database: %s", err)
	}

	return &TestDB{
		Conn: conn,
		Path: path,
	}
}

// Cleanup closes the database connection
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()

	if tdb.Conn != nil {
		if err := tdb.Conn.Close(); err != nil {
			t.Errorf("Could not close database: %s", err)
		}
	}
}

// TruncateTables removes all products and their history
func (tdb *TestDB) TruncateTables(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	tables := []string{"price_history", "products"}

	err := tdb.Conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Could not truncate tables: %s", err)
	}
}

// CountRows runs a COUNT(*) query
func (tdb *TestDB) CountRows(t *testing.T, query string, args ...any) int {
	t.Helper()

	var n int
	ctx := context.Background()
	err := tdb.Conn.WithConnection(ctx, func(c *sql.Conn) error {
		return c.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		t.Fatalf("Could not count rows: %s", err)
	}
	return n
}

// NewRouter wires the full HTTP stack on top of the test database
func NewRouter(tdb *TestDB, publisher service.PriceEventPublisher, documents service.DocumentSender) *gin.Engine {
	gin.SetMode(gin.TestMode)

	tracker := service.NewTrackerService(sqlrepo.NewProductRepository(tdb.Conn), publisher, documents, config.DefaultPriceDropThreshold)
	router := gin.New()
	return httpAPI.InitRouter(router, controller.New(tdb.Conn), controller.NewProductController(tracker))
}

// FakeBot records everything sent through the Telegram client
type FakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *FakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

// Sent returns a copy of the recorded messages
func (f *FakeBot) Sent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}
