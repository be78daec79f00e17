package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/monitoring"
)

// ErrDegenerate reports training data an estimator cannot be fitted on.
var ErrDegenerate = errors.New("degenerate training data")

// LinearModel is an ordinary least squares fit with an unpenalized intercept.
type LinearModel struct {
	coef      []float64
	intercept float64
}

// RegularizedLinearModel is a ridge (L2-penalized) least squares fit. The
// intercept is not penalized.
type RegularizedLinearModel struct {
	LinearModel
	alpha float64
}

// Coef returns a copy of the fitted coefficients.
func (m *LinearModel) Coef() []float64 { return append([]float64(nil), m.coef...) }

// Intercept returns the fitted intercept.
func (m *LinearModel) Intercept() float64 { return m.intercept }

// PredictRow evaluates intercept + coef·row.
func (m *LinearModel) PredictRow(row []float64) float64 {
	y := m.intercept
	for j, c := range m.coef {
		y += c * row[j]
	}
	return y
}

// Predict evaluates the model on an unscaled vector.
func (m *LinearModel) Predict(v features.Vector) float64 { return m.PredictRow(v[:]) }

// Params implements Estimator.
func (m *LinearModel) Params() Params { return Params{Kind: config.KindLinear} }

// Alpha returns the penalty strength.
func (m *RegularizedLinearModel) Alpha() float64 { return m.alpha }

// Params implements Estimator.
func (m *RegularizedLinearModel) Params() Params {
	return Params{Kind: config.KindRidge, Alpha: m.alpha}
}

// center returns x and y with column means removed, plus those means.
func center(x [][]float64, y []float64) (*mat.Dense, *mat.VecDense, []float64, float64) {
	n, p := len(x), len(x[0])
	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range x {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}
	return xc, yc, xMean, yMean
}

func checkShape(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no rows", ErrDegenerate)
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrDegenerate, len(x), len(y))
	}
	return nil
}

func finish(w *mat.VecDense, xMean []float64, yMean float64) (LinearModel, error) {
	m := LinearModel{coef: make([]float64, len(xMean)), intercept: yMean}
	for j := range xMean {
		c := w.AtVec(j)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return LinearModel{}, fmt.Errorf("%w: coefficient %d is not finite", ErrDegenerate, j)
		}
		m.coef[j] = c
		m.intercept -= c * xMean[j]
	}
	return m, nil
}

// FitLinear solves the least squares problem by QR decomposition of the
// centred design matrix.
func FitLinear(x [][]float64, y []float64) (*LinearModel, error) {
	if err := checkShape(x, y); err != nil {
		return nil, err
	}
	xc, yc, xMean, yMean := center(x, y)
	if len(x) < len(xMean) {
		return nil, fmt.Errorf("%w: %d rows for %d features", ErrDegenerate, len(x), len(xMean))
	}

	var w mat.VecDense
	if err := w.SolveVec(xc, yc); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("least squares: %w", err)
		}
		monitoring.Logf("linear regression: ill-conditioned design matrix (condition %.3g)", float64(cond))
	}
	m, err := finish(&w, xMean, yMean)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FitRidge solves (XᵀX + αI)w = Xᵀy on centred data by Cholesky
// factorization.
func FitRidge(x [][]float64, y []float64, alpha float64) (*RegularizedLinearModel, error) {
	if err := checkShape(x, y); err != nil {
		return nil, err
	}
	if alpha < 0 || math.IsNaN(alpha) {
		return nil, fmt.Errorf("%w: alpha must be non-negative, got %v", config.ErrConfiguration, alpha)
	}
	xc, yc, xMean, yMean := center(x, y)
	p := len(xMean)

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("%w: ridge normal equations are not positive definite (alpha=%v)", ErrDegenerate, alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("ridge solve: %w", err)
		}
		monitoring.Logf("ridge regression: ill-conditioned normal equations (condition %.3g)", float64(cond))
	}
	m, err := finish(&w, xMean, yMean)
	if err != nil {
		return nil, err
	}
	return &RegularizedLinearModel{LinearModel: m, alpha: alpha}, nil
}
