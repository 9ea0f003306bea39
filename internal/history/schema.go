package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var passesV1 string

// migrations[i] upgrades a history database from PRAGMA user_version i to
// i+1. Append new steps; never edit a released one, so recorded passes
// survive upgrades.
var migrations = []string{
	passesV1,
}

// ErrSchemaMismatch indicates the history database was written by a newer
// memsweep than this one.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func currentVersion() int { return len(migrations) }

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read history version: %w", err)
	}
	switch {
	case version == currentVersion():
		return nil
	case version > currentVersion():
		return fmt.Errorf("%w: %s is at version %d but this build understands up to %d; upgrade memsweep or move the file aside",
			ErrSchemaMismatch, s.path, version, currentVersion())
	}
	return s.migrate(ctx, version)
}

// migrate applies the pending steps in one transaction so a failed upgrade
// leaves the old history readable.
func (s *Store) migrate(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for v := from; v < currentVersion(); v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrate history to version %d: %w", v+1, err)
		}
	}
	// PRAGMA arguments cannot be bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentVersion())); err != nil {
		return fmt.Errorf("record history version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history migration: %w", err)
	}
	return nil
}
