package model

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit variance using the
// population standard deviation. Constant columns keep a scale of 1.
type Scaler struct {
	mean  []float64
	scale []float64
}

// FitScaler computes per-column statistics of x.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, errors.New("cannot fit scaler on zero rows")
	}
	p := len(x[0])
	s := &Scaler{mean: make([]float64, p), scale: make([]float64, p)}
	col := make([]float64, len(x))
	for j := 0; j < p; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.scale[j] = std
	}
	return s, nil
}

// Transform returns a standardized copy of row.
func (s *Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.mean[j]) / s.scale[j]
	}
	return out
}

// TransformAll standardizes every row of x.
func (s *Scaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.Transform(row)
	}
	return out
}

// Mean returns a copy of the fitted column means.
func (s *Scaler) Mean() []float64 { return append([]float64(nil), s.mean...) }

// Scale returns a copy of the fitted column scales.
func (s *Scaler) Scale() []float64 { return append([]float64(nil), s.scale...) }
