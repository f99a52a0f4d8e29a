package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RH-FMK/sktm/internal/metrics"
)

// migration is a single schema revision. The guard, when set, is run
// before the SQL and may veto the migration.
type migration struct {
	Version int
	Name    string
	Guard   func(ctx context.Context, tx *sql.Tx) error
	SQL     string
}

// migrations are applied in order; each successful application is
// recorded in schema_version.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial schema",
		SQL:     SchemaV1,
	},
	{
		Version: 2,
		Name:    "pendingpatches patch_id rebuild",
		Guard:   guardNoAssignedPatches,
		SQL:     SchemaV2,
	},
}

// guardNoAssignedPatches refuses the pendingpatches rebuild while any
// queued patch is still attached to a job. Rows carrying only a
// timestamp are exactly what the copy preserves and do not block.
func guardNoAssignedPatches(ctx context.Context, tx *sql.Tx) error {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pendingpatches WHERE pendingjob_id IS NOT NULL").Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to count assigned pending patches: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%d pending patches still attached to jobs; drain the ledger before migrating", n)
	}
	return nil
}

// migrate brings the database to the latest schema version. It runs on
// a pinned connection with foreign key enforcement suspended, checks
// referential integrity before and after every revision, and records
// each applied version.
func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to release migration connection")
		}
	}()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to suspend foreign keys: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Applying schema migration")

		if err := applyMigration(ctx, conn, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Name, err)
		}
		metrics.MigrationsApplied.Inc()
		current = m.Version
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to re-enable foreign keys: %w", err)
	}

	return nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, m migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logrus.WithError(rollbackErr).Warn("Failed to rollback migration transaction")
			}
		}
	}()

	// Dangling references in the pre-migration tables would be
	// silently discarded by a table rebuild, so fail on them first.
	if m.Version > 1 {
		if err := foreignKeyCheck(ctx, tx); err != nil {
			return err
		}
	}

	if m.Guard != nil {
		if err := m.Guard(ctx, tx); err != nil {
			return fmt.Errorf("precondition failed: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if err := foreignKeyCheck(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true

	return nil
}

// foreignKeyCheck fails when any row references a missing parent.
// Enforcement is suspended while migrating, so this is the only line
// of defense against dangling patch_id or pendingjob_id values.
func foreignKeyCheck(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close foreign_key_check rows")
		}
	}()

	var violations []string
	for rows.Next() {
		var table, parent string
		var rowid, fkid interface{}
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check row: %w", err)
		}
		violations = append(violations, fmt.Sprintf("%s(rowid=%v) -> %s", table, rowid, parent))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating foreign_key_check: %w", err)
	}

	if len(violations) > 0 {
		return fmt.Errorf("foreign key check failed: %v", violations)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
