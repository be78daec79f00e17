// Package inference turns a validated feature vector into a single point
// prediction with a loaded model.
package inference

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/model"
)

// ErrNonFinitePrediction means the model produced NaN or an infinity for a
// valid input.
var ErrNonFinitePrediction = errors.New("model produced a non-finite prediction")

// Predict validates v and returns m's prediction. It does not modify m and
// may be called concurrently.
func Predict(m model.PredictiveModel, v features.Vector) (float64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	y := m.Predict(v)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinitePrediction, y)
	}
	return y, nil
}

// PredictRequest predicts from the wire form of a request.
func PredictRequest(m model.PredictiveModel, req *features.Request) (float64, error) {
	v, err := req.Vector()
	if err != nil {
		return 0, err
	}
	return Predict(m, v)
}

// PredictJSON decodes a JSON request body and predicts from it.
func PredictJSON(m model.PredictiveModel, r io.Reader) (float64, error) {
	v, err := features.DecodeRequest(r)
	if err != nil {
		return 0, err
	}
	return Predict(m, v)
}

// PredictMap predicts from a decoded object keyed by feature name.
func PredictMap(m model.PredictiveModel, obj map[string]interface{}) (float64, error) {
	v, err := features.FromMap(obj)
	if err != nil {
		return 0, err
	}
	return Predict(m, v)
}
