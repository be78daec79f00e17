package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/triage.report/internal/features"
)

// Metrics holds evaluation results on the holdout subset.
type Metrics struct {
	RMSEHoldout float64 `json:"rmse_holdout"`
}

// CVResult is the cross-validated score of one grid configuration.
type CVResult struct {
	Params   map[string]interface{} `json:"params"`
	MeanRMSE float64                `json:"mean_rmse"`
	StdRMSE  float64                `json:"std_rmse"`
	FoldRMSE []float64              `json:"fold_rmse"`
}

// CVSummary records a grid search. Results are in grid enumeration order.
type CVSummary struct {
	Folds        int        `json:"folds"`
	BestIndex    int        `json:"best_index"`
	BestMeanRMSE float64    `json:"best_mean_rmse"`
	Results      []CVResult `json:"results"`
}

// Metadata is the JSON record stored next to every pipeline blob.
type Metadata struct {
	ModelVersion    string                 `json:"model_version"`
	Algorithm       string                 `json:"algorithm"`
	Seed            int64                  `json:"seed"`
	Metrics         Metrics                `json:"metrics"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	Features        []string               `json:"features"`
	RunID           string                 `json:"run_id"`
	CreatedAt       time.Time              `json:"created_at"`
	NTrain          int                    `json:"n_train"`
	NHoldout        int                    `json:"n_holdout"`
	CV              *CVSummary             `json:"cv,omitempty"`
}

// Validate checks the fields a consumer relies on.
func (m *Metadata) Validate() error {
	if m.ModelVersion == "" {
		return fmt.Errorf("%w: model_version is empty", ErrMetadataMismatch)
	}
	if m.Algorithm == "" {
		return fmt.Errorf("%w: algorithm is empty", ErrMetadataMismatch)
	}
	if r := m.Metrics.RMSEHoldout; math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return fmt.Errorf("%w: rmse_holdout %v is not a non-negative finite number", ErrMetadataMismatch, r)
	}
	if err := features.CheckNames(m.Features); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataMismatch, err)
	}
	return nil
}

// MarshalIndent renders the metadata the way it is written to disk.
func (m *Metadata) MarshalIndent() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
