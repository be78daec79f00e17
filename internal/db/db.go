// Package db is the training-run ledger: a SQLite database recording every
// completed training run, with embedded schema migrations and admin debug
// routes.
package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/triage.report/internal/artifact"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the schema migrations compiled into the binary.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB wraps the ledger connection.
type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases
	// consistent across queries.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// RunRecord is one row of the training_runs table.
type RunRecord struct {
	RunID        string
	ModelVersion string
	Algorithm    string
	Seed         int64
	RMSEHoldout  float64
	NTrain       int
	NHoldout     int
	CVBestRMSE   *float64
	DatasetPath  string
	Duration     time.Duration
	CreatedAt    time.Time
	Metadata     *artifact.Metadata
}

// RecordFromMetadata builds a RunRecord from stored metadata.
func RecordFromMetadata(md *artifact.Metadata, datasetPath string, duration time.Duration) RunRecord {
	rec := RunRecord{
		RunID:        md.RunID,
		ModelVersion: md.ModelVersion,
		Algorithm:    md.Algorithm,
		Seed:         md.Seed,
		RMSEHoldout:  md.Metrics.RMSEHoldout,
		NTrain:       md.NTrain,
		NHoldout:     md.NHoldout,
		DatasetPath:  datasetPath,
		Duration:     duration,
		CreatedAt:    md.CreatedAt,
		Metadata:     md,
	}
	if md.CV != nil {
		best := md.CV.BestMeanRMSE
		rec.CVBestRMSE = &best
	}
	return rec
}

// ErrRunExists is returned when a run id is recorded twice.
var ErrRunExists = errors.New("run already recorded")

// RecordRun inserts rec.
func (db *DB) RecordRun(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return errors.New("run id is required")
	}
	metaJSON := []byte("{}")
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metaJSON = b
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_runs WHERE run_id = ?`, rec.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrRunExists, rec.RunID)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO training_runs (
			run_id, model_version, algorithm, seed, rmse_holdout,
			n_train, n_holdout, cv_best_rmse, dataset_path, duration_ms,
			created_at, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.ModelVersion, rec.Algorithm, rec.Seed, rec.RMSEHoldout,
		rec.NTrain, rec.NHoldout, rec.CVBestRMSE, rec.DatasetPath, rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns recorded runs, newest first. An empty version lists every
// version; limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, version string, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, model_version, algorithm, seed, rmse_holdout,
		       n_train, n_holdout, cv_best_rmse, dataset_path, duration_ms,
		       created_at, metadata_json
		FROM training_runs`
	var args []interface{}
	if version != "" {
		query += ` WHERE model_version = ?`
		args = append(args, version)
	}
	query += ` ORDER BY created_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			cvBest     sql.NullFloat64
			durationMS int64
			createdAt  string
			metaJSON   string
		)
		if err := rows.Scan(&rec.RunID, &rec.ModelVersion, &rec.Algorithm, &rec.Seed, &rec.RMSEHoldout,
			&rec.NTrain, &rec.NHoldout, &cvBest, &rec.DatasetPath, &durationMS,
			&createdAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if cvBest.Valid {
			v := cvBest.Float64
			rec.CVBestRMSE = &v
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("run %s: bad created_at %q: %w", rec.RunID, createdAt, err)
		}
		var md artifact.Metadata
		if err := json.Unmarshal([]byte(metaJSON), &md); err != nil {
			return nil, fmt.Errorf("run %s: bad metadata: %w", rec.RunID, err)
		}
		rec.Metadata = &md
		out = append(out, rec)
	}
	return out, rows.Err()
}
