package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for caller mistakes such as updating a product without an ID.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageFault wraps failures of the underlying database.
	ErrStorageFault = errors.New("storage fault")

	// ErrMigrationFault is matched by every *MigrationError.
	ErrMigrationFault = errors.New("migration fault")
)

// MigrationError is returned when a migration step could not be applied or reverted.
type MigrationError struct {
	Version int
	Down    bool
	Err     error
}

func (m *MigrationError) Error() string {
	if m.Down {
		return fmt.Sprintf("failed to revert migration %d: %v", m.Version, m.Err)
	}
	return fmt.Sprintf("failed to apply migration %d: %v", m.Version, m.Err)
}

// Unwrap returns the original cause of the failed migration.
func (m *MigrationError) Unwrap() error {
	return m.Err
}

// Is reports whether target is ErrMigrationFault.
func (m *MigrationError) Is(target error) bool {
	return target == ErrMigrationFault
}

// InvalidArgument wraps err so that it matches ErrInvalidArgument.
func InvalidArgument(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}

// StorageFault wraps err with a message so that it matches ErrStorageFault.
func StorageFault(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFault, msg, err)
}
