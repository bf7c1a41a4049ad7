package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// timeLayout is fixed-width so that stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteTracker stores runs in a SQLite database.
type SQLiteTracker struct {
	db     *sql.DB
	path   string
	logger log.Logger
}

var (
	_ Tracker   = (*SQLiteTracker)(nil)
	_ RunLister = (*SQLiteTracker)(nil)
)

// NewSQLiteTracker opens (creating if needed) the database at path and
// applies pending migrations.
func NewSQLiteTracker(ctx context.Context, path string, logger log.Logger) (*SQLiteTracker, error) {
	if path == "" {
		return nil, errors.NewValidationError("path", "database path is required", path)
	}
	if logger == nil {
		logger = log.GetLoggerWithName("tracking")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	t := &SQLiteTracker{db: db, path: path, logger: logger}
	if err := t.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Close closes the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

// PutRun inserts run or replaces the stored run with the same ID.
func (t *SQLiteTracker) PutRun(ctx context.Context, run *Run) (err error) {
	if run == nil || run.ID == "" {
		return errors.NewValidationError("run", "run with an ID is required", run)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var end sql.NullString
	if !run.EndTime.IsZero() {
		end = sql.NullString{String: run.EndTime.UTC().Format(timeLayout), Valid: true}
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, experiment, name, version, status, artifact_uri, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			experiment = excluded.experiment,
			name = excluded.name,
			version = excluded.version,
			status = excluded.status,
			artifact_uri = excluded.artifact_uri,
			start_time = excluded.start_time,
			end_time = excluded.end_time`,
		run.ID, run.Experiment, run.Name, run.Version, run.Status, run.ArtifactURI,
		run.StartTime.UTC().Format(timeLayout), end,
	); err != nil {
		return errors.Wrapf(err, "failed to save run %s", run.ID)
	}

	for _, table := range []string{"run_params", "run_metrics", "run_tags"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", run.ID); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}
	for k, v := range run.Params {
		if _, err = tx.ExecContext(ctx, `INSERT INTO run_params (run_id, key, value) VALUES (?, ?, ?)`, run.ID, k, v); err != nil {
			return errors.Wrapf(err, "failed to save param %s", k)
		}
	}
	for k, v := range run.Metrics {
		// run_metrics.value is NOT NULL and SQLite binds NaN as NULL
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.logger.Warn("skipping non-finite metric", log.RunNameKey, run.Name, "metric", k, "value", fmt.Sprint(v))
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO run_metrics (run_id, key, value) VALUES (?, ?, ?)`, run.ID, k, v); err != nil {
			return errors.Wrapf(err, "failed to save metric %s", k)
		}
	}
	for k, v := range run.Tags {
		if _, err = tx.ExecContext(ctx, `INSERT INTO run_tags (run_id, key, value) VALUES (?, ?, ?)`, run.ID, k, v); err != nil {
			return errors.Wrapf(err, "failed to save tag %s", k)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit run")
	}
	t.logger.Debug("run saved", log.RunIDKey, run.ID, log.RunNameKey, run.Name)
	return nil
}

const runColumns = `id, experiment, name, version, status, artifact_uri, start_time, end_time`

func (t *SQLiteTracker) LatestRun(ctx context.Context, experiment, namePrefix string) (*Run, error) {
	runs, err := t.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE experiment = ? AND (? = '' OR instr(name, ?) = 1)
		ORDER BY start_time DESC, rowid DESC LIMIT 1`,
		experiment, namePrefix, namePrefix)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "experiment %q, prefix %q", experiment, namePrefix)
	}
	return runs[0], nil
}

func (t *SQLiteTracker) ListRuns(ctx context.Context, experiment string) ([]*Run, error) {
	return t.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE experiment = ? ORDER BY start_time, rowid`,
		experiment)
}

func (t *SQLiteTracker) GetRun(ctx context.Context, experiment, name string) (*Run, error) {
	runs, err := t.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE experiment = ? AND name = ?`,
		experiment, name)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %q in experiment %q", name, experiment)
	}
	return runs[0], nil
}

func (t *SQLiteTracker) queryRuns(ctx context.Context, query string, args ...interface{}) ([]*Run, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r          Run
			start      string
			end        sql.NullString
			artifactID sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Experiment, &r.Name, &r.Version, &r.Status, &artifactID, &start, &end); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		r.ArtifactURI = artifactID.String
		if r.StartTime, err = time.Parse(timeLayout, start); err != nil {
			return nil, errors.Wrapf(err, "run %s: bad start time", r.ID)
		}
		if end.Valid {
			if r.EndTime, err = time.Parse(timeLayout, end.String); err != nil {
				return nil, errors.Wrapf(err, "run %s: bad end time", r.ID)
			}
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}

	for _, r := range runs {
		if err := t.loadDetails(ctx, r); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (t *SQLiteTracker) loadDetails(ctx context.Context, r *Run) error {
	r.Params = map[string]string{}
	r.Metrics = map[string]float64{}
	r.Tags = map[string]string{}

	if err := scanPairs(ctx, t.db, `SELECT key, value FROM run_params WHERE run_id = ?`, r.ID, func(k string, v *string) error {
		r.Params[k] = *v
		return nil
	}); err != nil {
		return err
	}
	if err := scanPairs(ctx, t.db, `SELECT key, value FROM run_tags WHERE run_id = ?`, r.ID, func(k string, v *string) error {
		r.Tags[k] = *v
		return nil
	}); err != nil {
		return err
	}

	rows, err := t.db.QueryContext(ctx, `SELECT key, value FROM run_metrics WHERE run_id = ?`, r.ID)
	if err != nil {
		return errors.Wrap(err, "failed to query metrics")
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return errors.Wrap(err, "failed to scan metric")
		}
		r.Metrics[k] = v
	}
	return errors.WithStack(rows.Err())
}

func scanPairs(ctx context.Context, db *sql.DB, query, id string, fn func(k string, v *string) error) error {
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to query run details")
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return errors.Wrap(err, "failed to scan run detail")
		}
		if err := fn(k, &v); err != nil {
			return err
		}
	}
	return errors.WithStack(rows.Err())
}

// schemaVersion reads PRAGMA user_version.
func (t *SQLiteTracker) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := t.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to get schema version")
	}
	return v, nil
}

func (t *SQLiteTracker) String() string {
	return fmt.Sprintf("sqlite:%s", t.path)
}
