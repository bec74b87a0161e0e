package sql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iyhunko/price-tracker/internal/config"
)

// StartDB opens the product database and brings its schema to the latest version.
func StartDB(ctx context.Context, dbConf config.DB) (*Connector, error) {
	conn, err := startDBConnection(ctx, dbConf)
	if err != nil {
		slog.Error("failed to initialize DB connection", slog.Any("err", err))
		return nil, fmt.Errorf("failed to initialize DB connection: %w", err)
	}
	slog.Info("DB connection done", slog.String("path", conn.Path()))

	if err = RunMigrations(ctx, conn); err != nil {
		slog.Error("failed to run migrations", slog.Any("err", err))
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("DB migration done")
	return conn, nil
}

func startDBConnection(ctx context.Context, conf config.DB) (*Connector, error) {
	conn, err := NewConnector(conf.Path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// RunMigrations applies every embedded migration that has not been applied yet.
func RunMigrations(ctx context.Context, conn *Connector) error {
	list, err := DefaultMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := NewMigrator(ctx, conn, list)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	status, err := m.MigrateToLatest(ctx)
	if err != nil {
		return err
	}
	slog.Info("schema is up to date", slog.String("status", status.String()), slog.Int("version", m.Latest()))
	return nil
}
