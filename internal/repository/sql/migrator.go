package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/iyhunko/price-tracker/internal/repository"
	"github.com/iyhunko/price-tracker/migrations"
)

const (
	createLedgerQuery = `CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	currentVersionQuery = `SELECT MAX(version) FROM migrations`
	insertLedgerQuery   = `INSERT INTO migrations (version, applied_at) VALUES (?, ?)`
	regressLedgerQuery  = `DELETE FROM migrations WHERE version >= ?`
)

// Migration is one versioned schema change with the script that reverses it.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports what MigrateTo did.
type MigrationStatus int

const (
	AlreadyCurrent MigrationStatus = iota
	Upgraded
	Downgraded
)

func (s MigrationStatus) String() string {
	switch s {
	case Upgraded:
		return "upgraded"
	case Downgraded:
		return "downgraded"
	default:
		return "already current"
	}
}

// Migrator moves the schema between versions of an ordered migration list.
type Migrator struct {
	conn       *Connector
	migrations []Migration
}

// NewMigrator validates the migration list and makes sure the ledger table exists.
func NewMigrator(ctx context.Context, conn *Connector, list []Migration) (*Migrator, error) {
	sorted := make([]Migration, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i, m := range sorted {
		if m.Version <= 0 {
			return nil, repository.InvalidArgument(fmt.Errorf("migration version must be positive, got %d", m.Version))
		}
		if i > 0 && sorted[i-1].Version == m.Version {
			return nil, repository.InvalidArgument(fmt.Errorf("duplicate migration version %d", m.Version))
		}
	}

	err := conn.WithConnection(ctx, func(c *sql.Conn) error {
		if _, err := c.ExecContext(ctx, createLedgerQuery); err != nil {
			return repository.StorageFault("failed to create migrations table", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Migrator{conn: conn, migrations: sorted}, nil
}

// Latest returns the highest known migration version, or 0 for an empty list.
func (m *Migrator) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// CurrentVersion returns the highest version recorded in the ledger, or 0.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := m.conn.WithConnection(ctx, func(c *sql.Conn) error {
		if err := c.QueryRowContext(ctx, currentVersionQuery).Scan(&version); err != nil {
			return repository.StorageFault("failed to read schema version", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// MigrateToLatest applies every pending migration.
func (m *Migrator) MigrateToLatest(ctx context.Context) (MigrationStatus, error) {
	return m.MigrateTo(ctx, m.Latest())
}

// MigrateTo moves the schema up or down to target.
// A failed step stops the run; steps already applied stay applied.
func (m *Migrator) MigrateTo(ctx context.Context, target int) (MigrationStatus, error) {
	if target < 0 || target > m.Latest() {
		return AlreadyCurrent, repository.InvalidArgument(fmt.Errorf("unknown target version %d, latest is %d", target, m.Latest()))
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return AlreadyCurrent, err
	}

	switch {
	case current == target:
		slog.Info("database is already at target version", slog.Int("version", target))
		return AlreadyCurrent, nil

	case current < target:
		slog.Info("upgrading database", slog.Int("from", current), slog.Int("to", target))
		for _, mig := range m.migrations {
			if mig.Version <= current || mig.Version > target {
				continue
			}
			if err := m.up(ctx, mig); err != nil {
				return AlreadyCurrent, err
			}
		}
		return Upgraded, nil

	default:
		slog.Info("downgrading database", slog.Int("from", current), slog.Int("to", target))
		for i := len(m.migrations) - 1; i >= 0; i-- {
			mig := m.migrations[i]
			if mig.Version <= target || mig.Version > current {
				continue
			}
			if err := m.down(ctx, mig); err != nil {
				return AlreadyCurrent, err
			}
		}
		return Downgraded, nil
	}
}

func (m *Migrator) up(ctx context.Context, mig Migration) error {
	slog.Info("running up migration", slog.Int("version", mig.Version), slog.String("name", mig.Name))

	err := m.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, insertLedgerQuery, mig.Version, time.Now().UTC())
		return err
	})
	if err == nil {
		return nil
	}

	slog.Error("failed to apply migration", slog.Int("version", mig.Version), slog.Any("err", err))
	if mig.Down != "" {
		compensateErr := m.conn.WithConnection(ctx, func(c *sql.Conn) error {
			_, err := c.ExecContext(ctx, mig.Down)
			return err
		})
		if compensateErr != nil {
			slog.Error("failed to roll back migration", slog.Int("version", mig.Version), slog.Any("err", compensateErr))
		}
	}

	return &repository.MigrationError{Version: mig.Version, Err: err}
}

// down reverts mig and leaves version-1 as the highest ledger entry.
func (m *Migrator) down(ctx context.Context, mig Migration) error {
	slog.Info("running down migration", slog.Int("version", mig.Version), slog.String("name", mig.Name))

	regressed := mig.Version - 1
	err := m.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.Down); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, regressLedgerQuery, regressed); err != nil {
			return err
		}
		if regressed == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, insertLedgerQuery, regressed, time.Now().UTC())
		return err
	})
	if err != nil {
		slog.Error("failed to revert migration", slog.Int("version", mig.Version), slog.Any("err", err))
		return &repository.MigrationError{Version: mig.Version, Down: true, Err: err}
	}
	return nil
}

// DefaultMigrations returns the product store schema embedded in the binary.
func DefaultMigrations() ([]Migration, error) {
	return LoadMigrations(migrations.FS, ".")
}

// LoadMigrations reads {version}_{name}.up.sql / .down.sql pairs from dir.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	defer src.Close()

	var list []Migration
	version, err := src.First()
	for err == nil {
		mig, readErr := readMigration(src, version)
		if readErr != nil {
			return nil, readErr
		}
		list = append(list, mig)
		version, err = src.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	return list, nil
}

func readMigration(src source.Driver, version uint) (Migration, error) {
	mig := Migration{Version: int(version)}

	up, name, err := src.ReadUp(version)
	if err != nil {
		return mig, fmt.Errorf("failed to read up migration %d: %w", version, err)
	}
	mig.Name = name
	if mig.Up, err = readScript(up); err != nil {
		return mig, fmt.Errorf("failed to read up migration %d: %w", version, err)
	}

	down, _, err := src.ReadDown(version)
	if errors.Is(err, fs.ErrNotExist) {
		return mig, nil
	}
	if err != nil {
		return mig, fmt.Errorf("failed to read down migration %d: %w", version, err)
	}
	if mig.Down, err = readScript(down); err != nil {
		return mig, fmt.Errorf("failed to read down migration %d: %w", version, err)
	}

	return mig, nil
}

func readScript(r io.ReadCloser) (string, error) {
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
