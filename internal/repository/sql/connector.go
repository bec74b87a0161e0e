package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iyhunko/price-tracker/internal/repository"
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverName = "sqlite3"

	// Foreign keys are off by default in SQLite and the cascade from products to price_history depends on them.
	// Immediate transactions take the write lock up front so two upserts never both read before writing.
	dsnParams = "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
)

// Connector owns the database handle and hands out scoped connections and transactions.
type Connector struct {
	db   *sql.DB
	path string

	dirOnce sync.Once
	dirErr  error
}

// NewConnector prepares a connector for the SQLite file at path.
// The parent directory is created on first use if it does not exist.
func NewConnector(path string) (*Connector, error) {
	if path == "" {
		return nil, repository.InvalidArgument(errors.New("database path must not be empty"))
	}

	db, err := sql.Open(driverName, path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	return &Connector{db: db, path: path}, nil
}

// NewConnectorWithDB wraps an already opened database handle.
func NewConnectorWithDB(db *sql.DB) *Connector {
	c := &Connector{db: db}
	c.dirOnce.Do(func() {})
	return c
}

func (c *Connector) ensureDir() error {
	c.dirOnce.Do(func() {
		dir := filepath.Dir(c.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.dirErr = fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	})
	return c.dirErr
}

// WithConnection runs fn with a dedicated connection that is released on every exit path.
func (c *Connector) WithConnection(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if err := c.ensureDir(); err != nil {
		return repository.StorageFault("failed to prepare storage", err)
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return repository.StorageFault("failed to acquire connection", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Error("failed to release connection", slog.Any("err", err))
		}
	}()

	return fn(conn)
}

// WithTransaction runs fn inside a transaction on a scoped connection.
// The transaction commits when fn returns nil; otherwise it is rolled back and fn's error is returned as is.
func (c *Connector) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.WithConnection(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return repository.StorageFault("failed to begin transaction", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to rollback transaction", slog.Any("err", rbErr), slog.Any("cause", err))
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return repository.StorageFault("failed to commit transaction", err)
		}
		return nil
	})
}

// Ping verifies that the database file can be opened.
func (c *Connector) Ping(ctx context.Context) error {
	return c.WithConnection(ctx, func(conn *sql.Conn) error {
		if err := conn.PingContext(ctx); err != nil {
			return repository.StorageFault("failed to ping database", err)
		}
		return nil
	})
}

// Path returns the database file path.
func (c *Connector) Path() string {
	return c.path
}

// Close closes the underlying database handle.
func (c *Connector) Close() error {
	return c.db.Close()
}
