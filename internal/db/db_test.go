package db

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/features"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleMetadata(version, runID string, created time.Time, rmse float64) *artifact.Metadata {
	return &artifact.Metadata{
		ModelVersion: version,
		Algorithm:    "StandardScaler + LinearRegression",
		Seed:         42,
		Metrics:      artifact.Metrics{RMSEHoldout: rmse},
		Features:     features.NameList(),
		RunID:        runID,
		CreatedAt:    created,
		NTrain:       353,
		NHoldout:     89,
	}
}

func TestNewDB_AppliesAllMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	latest, err := LatestMigrationVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("got version %d dirty=%t, want %d clean", version, dirty, latest)
	}
	if latest != 2 {
		t.Errorf("expected 2 migrations, got latest %d", latest)
	}
}

func TestNewDB_ReopenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("first NewDB failed: %v", err)
	}
	db.Close()

	db, err = NewDB(path)
	if err != nil {
		t.Fatalf("second NewDB failed: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestMigrateDownAndBackUp(t *testing.T) {
	db := setupTestDB(t)
	fsys := MigrationsFS()

	if err := db.MigrateDown(fsys); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	v, _, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if v != 1 {
		t.Fatalf("after down expected version 1, got %d", v)
	}
	if _, err := db.Exec(`SELECT cv_best_rmse FROM training_runs`); err == nil {
		t.Error("cv_best_rmse column should be gone after rollback")
	}

	if err := db.MigrateTo(fsys, 2); err != nil {
		t.Fatalf("MigrateTo failed: %v", err)
	}
	if _, err := db.Exec(`SELECT cv_best_rmse FROM training_runs`); err != nil {
		t.Errorf("cv_best_rmse column should exist again: %v", err)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := RecordFromMetadata(sampleMetadata("v0.1", "run-a", base, 53.85), "data/diabetes.csv", 1500*time.Millisecond)
	md := sampleMetadata("v0.2", "run-b", base.Add(time.Hour), 53.7)
	md.CV = &artifact.CVSummary{Folds: 5, BestMeanRMSE: 55.1}
	second := RecordFromMetadata(md, "data/diabetes.csv", 3*time.Second)
	third := RecordFromMetadata(sampleMetadata("v0.1", "run-c", base.Add(2*time.Hour), 53.85), "", time.Second)

	for _, rec := range []RunRecord{first, second, third} {
		if err := db.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", rec.RunID, err)
		}
	}

	all, err := db.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.RunID)
	}
	if got := strings.Join(ids, ","); got != "run-c,run-b,run-a" {
		t.Errorf("runs newest first: got %s", got)
	}

	v01, err := db.ListRuns(ctx, "v0.1", 1)
	if err != nil {
		t.Fatalf("ListRuns(v0.1) failed: %v", err)
	}
	if len(v01) != 1 || v01[0].RunID != "run-c" {
		t.Fatalf("expected only run-c, got %+v", v01)
	}

	got := all[1]
	if got.CVBestRMSE == nil || *got.CVBestRMSE != 55.1 {
		t.Errorf("cv best rmse not stored: %v", got.CVBestRMSE)
	}
	if got.Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", got.Duration)
	}
	if !got.CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
	if got.Metadata == nil || got.Metadata.ModelVersion != "v0.2" || got.Metadata.CV == nil {
		t.Errorf("metadata not round-tripped: %+v", got.Metadata)
	}
	if all[0].CVBestRMSE != nil {
		t.Errorf("linear run should have no cv score, got %v", *all[0].CVBestRMSE)
	}
}

func TestRecordRun_Rejects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordRun(ctx, RunRecord{}); err == nil {
		t.Error("expected error for empty run id")
	}

	rec := RecordFromMetadata(sampleMetadata("v0.1", "dup", time.Now(), 1), "", 0)
	if err := db.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := db.RecordRun(ctx, rec); !errors.Is(err, ErrRunExists) {
		t.Errorf("expected ErrRunExists, got %v", err)
	}
}

func TestRunsJSON(t *testing.T) {
	if got := RunsJSON(nil); got == nil || len(got) != 0 {
		t.Errorf("RunsJSON(nil) = %#v, want empty slice", got)
	}
	rec := RecordFromMetadata(sampleMetadata("v0.3", "r1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 54), "d.csv", 2*time.Second)
	got := RunsJSON([]RunRecord{rec})
	if got[0].CreatedAt != "2026-01-02T03:04:05Z" || got[0].DurationMS != 2000 {
		t.Errorf("unexpected wire form: %+v", got[0])
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	var out bytes.Buffer
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 0") {
		t.Errorf("fresh database should be at version 0:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"up"}, path, &out); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Up to date") {
		t.Errorf("expected up to date:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"version", "1"}, path, &out); err != nil {
		t.Fatalf("version 1 failed: %v", err)
	}
	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 migration(s) pending") {
		t.Errorf("expected one pending migration:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"force", "1"}, path, &out); err != nil {
		t.Fatalf("force failed: %v", err)
	}
}

func TestRunMigrateCommand_Usage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	var out bytes.Buffer

	tests := [][]string{
		nil,
		{"sideways"},
		{"version"},
		{"version", "abc"},
		{"force"},
	}
	for _, args := range tests {
		out.Reset()
		if err := RunMigrateCommand(args, path, &out); !errors.Is(err, ErrUsage) {
			t.Errorf("args %v: expected ErrUsage, got %v", args, err)
		}
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"help"}, path, &out); err != nil {
		t.Errorf("help returned %v", err)
	}
	if !strings.Contains(out.String(), "Usage: triage-serve migrate") {
		t.Errorf("help output missing usage line:\n%s", out.String())
	}
}
