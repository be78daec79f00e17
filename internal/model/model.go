// Package model holds the fitted regression pipelines: a standard scaler
// composed with one of three estimators. Fitted values are immutable and safe
// for concurrent Predict calls.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/features"
)

// PredictiveModel maps one feature vector, in canonical order, to a scalar.
type PredictiveModel interface {
	Predict(v features.Vector) float64
}

// Estimator is a fitted regressor operating on already-preprocessed rows.
type Estimator interface {
	PredictiveModel
	PredictRow(row []float64) float64
	Params() Params
}

// Params are the resolved hyperparameters of one estimator. Only the fields
// relevant to Kind are meaningful. A MaxDepth of 0 means unlimited.
type Params struct {
	Kind            string
	Alpha           float64
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
}

// String renders the estimator the way operators read it in metadata, for
// example "Ridge(alpha=1.0)".
func (p Params) String() string {
	switch p.Kind {
	case config.KindLinear:
		return "LinearRegression"
	case config.KindRidge:
		return fmt.Sprintf("Ridge(alpha=%s)", FormatFloat(p.Alpha))
	case config.KindRandomForest:
		depth := "None"
		if p.MaxDepth > 0 {
			depth = strconv.Itoa(p.MaxDepth)
		}
		return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%s, min_samples_split=%d)",
			p.NEstimators, depth, p.MinSamplesSplit)
	default:
		return p.Kind
	}
}

// Map returns the hyperparameters relevant to Kind, keyed by their
// configuration names. Unlimited depth is reported as nil.
func (p Params) Map() map[string]interface{} {
	switch p.Kind {
	case config.KindRidge:
		return map[string]interface{}{"alpha": p.Alpha}
	case config.KindRandomForest:
		var depth interface{}
		if p.MaxDepth > 0 {
			depth = p.MaxDepth
		}
		return map[string]interface{}{
			"n_estimators":      p.NEstimators,
			"max_depth":         depth,
			"min_samples_split": p.MinSamplesSplit,
		}
	default:
		return map[string]interface{}{}
	}
}

// FormatFloat prints a float with at least one fractional digit: 1 -> "1.0",
// 0.5 -> "0.5".
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}

const scalerName = "StandardScaler"

// Pipeline is a fitted scaler followed by a fitted estimator.
type Pipeline struct {
	scaler    *Scaler
	estimator Estimator
}

// NewPipeline composes fitted stages.
func NewPipeline(s *Scaler, e Estimator) *Pipeline {
	return &Pipeline{scaler: s, estimator: e}
}

// Predict scales v with the training-time statistics and applies the
// estimator.
func (p *Pipeline) Predict(v features.Vector) float64 {
	row := p.scaler.Transform(v[:])
	return p.estimator.PredictRow(row)
}

// PredictRows predicts every row of x.
func (p *Pipeline) PredictRows(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = p.estimator.PredictRow(p.scaler.Transform(row))
	}
	return out
}

// Scaler returns the fitted preprocessing stage.
func (p *Pipeline) Scaler() *Scaler { return p.scaler }

// Estimator returns the fitted estimator.
func (p *Pipeline) Estimator() Estimator { return p.estimator }

// Params returns the estimator's hyperparameters.
func (p *Pipeline) Params() Params { return p.estimator.Params() }

// Algorithm describes the whole pipeline, for example
// "StandardScaler + Ridge(alpha=1.0)".
func (p *Pipeline) Algorithm() string {
	return scalerName + " + " + p.estimator.Params().String()
}
