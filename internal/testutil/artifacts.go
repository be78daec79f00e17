package testutil

import (
	"testing"
	"time"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/model"
)

// SaveLinearArtifact fits a scaler + linear regression pipeline on synthetic
// data drawn with seed and saves it under version.
func SaveLinearArtifact(t *testing.T, store *artifact.Store, version string, seed int64) (*model.Pipeline, *artifact.Metadata) {
	t.Helper()
	ds := dataset.Synthetic(120, seed)
	scaler, err := model.FitScaler(ds.X())
	if err != nil {
		t.Fatalf("fit scaler: %v", err)
	}
	lin, err := model.FitLinear(scaler.TransformAll(ds.X()), ds.Y())
	if err != nil {
		t.Fatalf("fit linear: %v", err)
	}
	p := model.NewPipeline(scaler, lin)
	md := &artifact.Metadata{
		ModelVersion: version,
		Algorithm:    p.Algorithm(),
		Seed:         seed,
		Metrics:      artifact.Metrics{RMSEHoldout: 54.0},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		NTrain:       96,
		NHoldout:     24,
	}
	if err := store.Save(version, p, md); err != nil {
		t.Fatalf("save %s: %v", version, err)
	}
	return p, md
}
