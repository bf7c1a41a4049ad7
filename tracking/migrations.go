package tracking

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/estateml/estateml/pkg/errors"
)

// ExpectedSchemaVersion is the schema version the tracker works with.
const ExpectedSchemaVersion = 2

// Migration is one schema change.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					experiment TEXT NOT NULL,
					name TEXT NOT NULL,
					version INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					artifact_uri TEXT,
					start_time TEXT NOT NULL,
					end_time TEXT
				)`,
				`CREATE INDEX idx_runs_experiment_start ON runs(experiment, start_time)`,
				`CREATE TABLE IF NOT EXISTS run_params (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					key TEXT NOT NULL,
					value TEXT NOT NULL,
					PRIMARY KEY (run_id, key)
				)`,
				`CREATE TABLE IF NOT EXISTS run_metrics (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					key TEXT NOT NULL,
					value REAL NOT NULL,
					PRIMARY KEY (run_id, key)
				)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add run tags and unique run names",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS run_tags (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					key TEXT NOT NULL,
					value TEXT NOT NULL,
					PRIMARY KEY (run_id, key)
				)`,
				`CREATE UNIQUE INDEX idx_runs_experiment_name ON runs(experiment, name)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (t *SQLiteTracker) Migrate(ctx context.Context) error {
	currentVersion, err := t.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := t.db.BeginTx(ctx, nil)
		if txErr != nil {
			return errors.Wrap(txErr, "failed to begin transaction")
		}
		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return errors.Wrapf(upErr, "migration %d failed", migration.Version)
		}
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return errors.Wrap(execErr, "failed to update schema version")
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return errors.Wrapf(commitErr, "failed to commit migration %d", migration.Version)
		}

		t.logger.Info("applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := t.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return errors.Newf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}
