package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/db"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/report"
	"github.com/banshee-data/triage.report/internal/timeutil"
)

var fixedTime = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type failingLedger struct{ calls int }

func (l *failingLedger) RecordRun(context.Context, db.RunRecord) error {
	l.calls++
	return errors.New("disk full")
}

func TestRun_LinearEndToEnd(t *testing.T) {
	root := filepath.Join(t.TempDir(), "models")
	cfg, err := config.Builtin("v0.1")
	require.NoError(t, err)
	ds, _, err := dataset.Default(42)
	require.NoError(t, err)
	var out bytes.Buffer

	res, err := Run(context.Background(), RunOptions{
		Config:  cfg,
		Dataset: ds,
		Store:   artifact.NewStore(root),
		Out:     &out,
		Clock:   timeutil.NewMockClock(fixedTime),
	})
	require.NoError(t, err)

	md := res.Metadata
	assert.Equal(t, "v0.1", md.ModelVersion)
	assert.Equal(t, "StandardScaler + LinearRegression", md.Algorithm)
	assert.Equal(t, int64(42), md.Seed)
	assert.Greater(t, md.Metrics.RMSEHoldout, 0.0)
	assert.False(t, math.IsInf(md.Metrics.RMSEHoldout, 0) || math.IsNaN(md.Metrics.RMSEHoldout))
	assert.Equal(t, 353, md.NTrain)
	assert.Equal(t, 89, md.NHoldout)
	assert.Nil(t, md.CV)
	assert.Empty(t, md.Hyperparameters)
	assert.Equal(t, fixedTime, md.CreatedAt)

	// the printed metadata is the stored record
	var printed artifact.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, md.RunID, printed.RunID)
	assert.Equal(t, md.Metrics.RMSEHoldout, printed.Metrics.RMSEHoldout)

	p, loaded, err := artifact.NewStore(root).Load("v0.1")
	require.NoError(t, err)
	assert.Equal(t, "v0.1", loaded.ModelVersion)
	assert.Equal(t, md.RunID, loaded.RunID)

	first := res.Partition.Holdout.Vector(0)
	assert.InDelta(t, res.Evaluation.YPred[0], p.Predict(first), 1e-9)
	for i := 0; i < res.Partition.Holdout.Len(); i++ {
		assert.InDelta(t, res.Evaluation.YPred[i], p.Predict(res.Partition.Holdout.Vector(i)), 1e-9)
	}
}

func TestRun_Reproducible(t *testing.T) {
	cfg := &config.TrainingConfig{
		ModelVersion: ptr("v9.1"),
		Estimator:    smallForest(),
	}
	ds := dataset.Synthetic(120, 5)

	var rmse [2]float64
	var params [2]map[string]interface{}
	for i := range rmse {
		res, err := Run(context.Background(), RunOptions{
			Config:  cfg,
			Dataset: ds,
			Store:   artifact.NewStore(t.TempDir()),
			Clock:   timeutil.NewMockClock(fixedTime),
		})
		require.NoError(t, err)
		rmse[i] = res.Metadata.Metrics.RMSEHoldout
		params[i] = res.Metadata.Hyperparameters
		assert.Contains(t, res.Metadata.Algorithm, "StandardScaler + RandomForestRegressor(")
		require.NotNil(t, res.Metadata.CV)
	}
	assert.Equal(t, math.Float64bits(rmse[0]), math.Float64bits(rmse[1]))
	assert.Equal(t, params[0], params[1])
}

func TestRun_ConfigurationErrorWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.TrainingConfig
	}{
		{"nil config", nil},
		{"holdout zero", &config.TrainingConfig{ModelVersion: ptr("v0.1"), HoldoutFraction: ptr(0.0)}},
		{"holdout one", &config.TrainingConfig{ModelVersion: ptr("v0.1"), HoldoutFraction: ptr(1.0)}},
		{"no version", &config.TrainingConfig{}},
		{"unsafe version", &config.TrainingConfig{ModelVersion: ptr("../escape")}},
		{"bad estimator", &config.TrainingConfig{ModelVersion: ptr("v0.1"), Estimator: &config.EstimatorConfig{Kind: "svm"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "models")
			_, err := Run(context.Background(), RunOptions{
				Config:  tt.cfg,
				Dataset: dataset.Synthetic(50, 1),
				Store:   artifact.NewStore(root),
			})
			assert.ErrorIs(t, err, config.ErrConfiguration)
			assert.NoDirExists(t, root)
		})
	}
}

func TestRun_FitFailureKeepsPreviousArtifact(t *testing.T) {
	root := t.TempDir()
	store := artifact.NewStore(root)
	cfg := &config.TrainingConfig{ModelVersion: ptr("v0.1")}

	first, err := Run(context.Background(), RunOptions{Config: cfg, Dataset: dataset.Synthetic(100, 2), Store: store})
	require.NoError(t, err)

	// fewer training rows than features cannot be fit by least squares
	_, err = Run(context.Background(), RunOptions{Config: cfg, Dataset: dataset.Synthetic(8, 2), Store: store})
	require.Error(t, err)

	md, err := store.LoadMetadata("v0.1")
	require.NoError(t, err)
	assert.Equal(t, first.Metadata.RunID, md.RunID)
}

func TestRun_LedgerAndReports(t *testing.T) {
	dir := t.TempDir()
	ledger, err := db.NewDB(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	cfg := &config.TrainingConfig{
		ModelVersion: ptr("v0.2"),
		Estimator:    &config.EstimatorConfig{Kind: config.KindRidge, Alpha: []float64{0.1, 1, 10}},
	}
	res, err := Run(context.Background(), RunOptions{
		Config:     cfg,
		Dataset:    dataset.Synthetic(200, 6),
		Store:      artifact.NewStore(filepath.Join(dir, "models")),
		Ledger:     ledger,
		ReportsDir: filepath.Join(dir, "reports"),
		Clock:      timeutil.NewMockClock(fixedTime),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Metadata.Algorithm, "StandardScaler + Ridge(alpha=")
	require.NotNil(t, res.Metadata.Hyperparameters)
	assert.Contains(t, res.Metadata.Hyperparameters, "alpha")

	runs, err := ledger.ListRuns(context.Background(), "v0.2", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Metadata.RunID, runs[0].RunID)
	require.NotNil(t, runs[0].CVBestRMSE)
	assert.Equal(t, res.Metadata.CV.BestMeanRMSE, *runs[0].CVBestRMSE)

	require.Len(t, res.Reports, 2)
	assert.FileExists(t, filepath.Join(dir, "reports", "v0.2", report.HoldoutPlotFile))
	assert.FileExists(t, filepath.Join(dir, "reports", "v0.2", report.GridChartFile))
}

func TestRun_LedgerFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	ledger := &failingLedger{}
	_, err := Run(context.Background(), RunOptions{
		Config:  &config.TrainingConfig{ModelVersion: ptr("v0.1")},
		Dataset: dataset.Synthetic(60, 3),
		Store:   artifact.NewStore(root),
		Ledger:  ledger,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.calls)
	assert.FileExists(t, filepath.Join(root, "v0.1", artifact.MetadataFile))
}

func TestRun_LoadsDatasetFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diabetes.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, dataset.Synthetic(80, 4).WriteCSV(f))
	require.NoError(t, f.Close())

	cfg := &config.TrainingConfig{
		ModelVersion: ptr("v0.1"),
		DatasetPath:  ptr(path),
		ModelsDir:    ptr(filepath.Join(dir, "models")),
	}
	res, err := Run(context.Background(), RunOptions{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 64, res.Metadata.NTrain)
	assert.Equal(t, 16, res.Metadata.NHoldout)
	assert.Equal(t, features.NameList(), res.Metadata.Features)
	assert.FileExists(t, filepath.Join(dir, "models", "v0.1", artifact.BlobFile))

	cfg.DatasetPath = ptr(filepath.Join(dir, "missing.csv"))
	_, err = Run(context.Background(), RunOptions{Config: cfg})
	assert.Error(t, err)
}
