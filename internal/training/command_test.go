package training

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/db"
)

func TestRunCommand_Synthetic(t *testing.T) {
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	ledgerPath := filepath.Join(dir, "ledger.db")
	var out bytes.Buffer

	err := RunCommand(context.Background(), "v0.1",
		[]string{"-synthetic", "150", "-models", models, "-ledger", ledgerPath}, &out)
	require.NoError(t, err)

	var md artifact.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &md))
	assert.Equal(t, "v0.1", md.ModelVersion)
	assert.Equal(t, 120, md.NTrain)
	assert.Equal(t, 30, md.NHoldout)
	assert.FileExists(t, filepath.Join(models, "v0.1", artifact.BlobFile))

	ledger, err := db.NewDB(ledgerPath)
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, md.RunID, runs[0].RunID)
}

func TestRunCommand_ConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ridge.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"model_version":"v0.2","cv_folds":3,"estimator":{"kind":"ridge","alpha":[0.5,5]}}`), 0o644))
	var out bytes.Buffer

	err := RunCommand(context.Background(), "v0.2",
		[]string{"-config", cfgPath, "-synthetic", "90", "-models", filepath.Join(dir, "models")}, &out)
	require.NoError(t, err)

	var md artifact.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &md))
	assert.Equal(t, "v0.2", md.ModelVersion)
	require.NotNil(t, md.CV)
	assert.Equal(t, 3, md.CV.Folds)
	assert.Len(t, md.CV.Results, 2)
}

func TestRunCommand_Errors(t *testing.T) {
	var out bytes.Buffer
	err := RunCommand(context.Background(), "v9.9", nil, &out)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	err = RunCommand(context.Background(), "v0.1", []string{"-bogus"}, &out)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	err = RunCommand(context.Background(), "v0.1", []string{"extra"}, &out)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	err = RunCommand(context.Background(), "v0.1", []string{"-config", filepath.Join(t.TempDir(), "missing.json")}, &out)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	// no synthetic rows and no CSV on disk
	err = RunCommand(context.Background(), "v0.1",
		[]string{"-dataset", filepath.Join(t.TempDir(), "nope.csv"), "-models", t.TempDir()}, &out)
	assert.Error(t, err)
}

func TestRunCommand_OverlayCannotChangeVersion(t *testing.T) {
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	cfgPath := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"model_version":"v0.3"}`), 0o644))
	var out bytes.Buffer

	err := RunCommand(context.Background(), "v0.1",
		[]string{"-config", cfgPath, "-synthetic", "60", "-models", models}, &out)
	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.Contains(t, err.Error(), "v0.3")
	assert.NoDirExists(t, filepath.Join(models, "v0.3"))
	assert.NoDirExists(t, filepath.Join(models, "v0.1"))
}

func TestRunCommand_NoArgumentsInEmptyDir(t *testing.T) {
	t.Chdir(t.TempDir())
	var out bytes.Buffer

	require.NoError(t, RunCommand(context.Background(), "v0.1", nil, &out))

	var md artifact.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &md))
	assert.Equal(t, "v0.1", md.ModelVersion)
	assert.Equal(t, dataset.BundledRows, md.NTrain+md.NHoldout)
	assert.Equal(t, 353, md.NTrain)
	assert.Equal(t, 89, md.NHoldout)
	assert.FileExists(t, filepath.Join(config.DefaultModelsDir, "v0.1", artifact.BlobFile))
	assert.FileExists(t, filepath.Join(config.DefaultModelsDir, "v0.1", artifact.MetadataFile))
}

func TestRunCommand_PrefersDefaultDatasetFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(config.DefaultDatasetPath), 0o755))
	f, err := os.Create(config.DefaultDatasetPath)
	require.NoError(t, err)
	require.NoError(t, dataset.Synthetic(100, 7).WriteCSV(f))
	require.NoError(t, f.Close())
	var out bytes.Buffer

	require.NoError(t, RunCommand(context.Background(), "v0.1", nil, &out))

	var md artifact.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &md))
	assert.Equal(t, 100, md.NTrain+md.NHoldout)
}
