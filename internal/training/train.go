// Package training fits, cross-validates and evaluates regression pipelines,
// and drives a complete versioned training run.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/model"
	"github.com/banshee-data/triage.report/internal/monitoring"
	"github.com/banshee-data/triage.report/internal/repro"
)

// Grid enumerates the hyperparameter configurations of est as a cartesian
// product in declaration order, the last parameter varying fastest. Linear
// regression has exactly one configuration.
func Grid(est config.EstimatorConfig) []model.Params {
	switch est.Kind {
	case config.KindRidge:
		out := make([]model.Params, 0, len(est.Alpha))
		for _, a := range est.Alpha {
			out = append(out, model.Params{Kind: config.KindRidge, Alpha: a})
		}
		return out
	case config.KindRandomForest:
		out := make([]model.Params, 0, len(est.NEstimators)*len(est.MaxDepth)*len(est.MinSamplesSplit))
		for _, n := range est.NEstimators {
			for _, d := range est.MaxDepth {
				for _, m := range est.MinSamplesSplit {
					out = append(out, model.Params{
						Kind:            config.KindRandomForest,
						NEstimators:     n,
						MaxDepth:        d,
						MinSamplesSplit: m,
					})
				}
			}
		}
		return out
	default:
		return []model.Params{{Kind: config.KindLinear}}
	}
}

// Fit standardizes ds with statistics of ds alone and fits one estimator on
// the result.
func Fit(ctx context.Context, ds *dataset.Dataset, params model.Params, src *repro.Source, workers int) (*model.Pipeline, error) {
	x := ds.X()
	scaler, err := model.FitScaler(x)
	if err != nil {
		return nil, err
	}
	xs := scaler.TransformAll(x)
	y := ds.Y()

	var est model.Estimator
	switch params.Kind {
	case config.KindLinear:
		est, err = model.FitLinear(xs, y)
	case config.KindRidge:
		est, err = model.FitRidge(xs, y, params.Alpha)
	case config.KindRandomForest:
		est, err = model.FitForest(ctx, xs, y, params, src, workers)
	default:
		return nil, fmt.Errorf("%w: unknown estimator kind %q", config.ErrConfiguration, params.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", params, err)
	}
	return model.NewPipeline(scaler, est), nil
}

// Result is the outcome of Train.
type Result struct {
	Pipeline *model.Pipeline
	Params   model.Params
	// CV is nil when the estimator has no grid.
	CV *artifact.CVSummary
}

// Train selects hyperparameters by k-fold cross-validation when the
// estimator has a grid, then refits the winner on all of train.
func Train(ctx context.Context, train *dataset.Dataset, cfg *config.TrainingConfig, src *repro.Source) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	est := cfg.GetEstimator()
	if err := est.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.GetWorkers()
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	grid := Grid(est)
	res := &Result{Params: grid[0]}
	if est.Kind != config.KindLinear {
		summary, err := CrossValidate(ctx, train, grid, cfg.GetCVFolds(), src, workers)
		if err != nil {
			return nil, err
		}
		res.CV = summary
		res.Params = grid[summary.BestIndex]
		monitoring.Logf("training: selected %s (mean cv rmse %.4f over %d configurations)",
			res.Params, summary.BestMeanRMSE, len(grid))
	}

	stop := monitoring.Timed("training: refit " + res.Params.String())
	p, err := Fit(ctx, train, res.Params, src, workers)
	stop()
	if err != nil {
		return nil, err
	}
	res.Pipeline = p
	return res, nil
}

// CrossValidate scores every configuration of grid on the same k folds of
// ds. The best configuration has the highest mean negative RMSE; ties go to
// the earliest configuration in grid order. Fold fits run on up to workers
// goroutines and their results are stored by index, so the outcome does not
// depend on scheduling.
func CrossValidate(ctx context.Context, ds *dataset.Dataset, grid []model.Params, k int, src *repro.Source, workers int) (*artifact.CVSummary, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty hyperparameter grid", config.ErrConfiguration)
	}
	folds, err := dataset.KFold(ds.Len(), k, src)
	if err != nil {
		return nil, err
	}
	type foldData struct{ train, test *dataset.Dataset }
	data := make([]foldData, len(folds))
	for i, f := range folds {
		data[i] = foldData{train: ds.Subset(f.Train), test: ds.Subset(f.Test)}
	}

	defer monitoring.Timed(fmt.Sprintf("training: %d-fold cross-validation of %d configurations", k, len(grid)))()

	scores := make([][]float64, len(grid))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for ci, params := range grid {
		for fi, fd := range data {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				p, err := Fit(ctx, fd.train, params, src, 1)
				if err != nil {
					return fmt.Errorf("fold %d: %w", fi, err)
				}
				rmse, err := RMSE(fd.test.Y(), p.PredictRows(fd.test.X()))
				if err != nil {
					return fmt.Errorf("fold %d: %w", fi, err)
				}
				scores[ci][fi] = rmse
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &artifact.CVSummary{Folds: len(folds), Results: make([]artifact.CVResult, len(grid))}
	bestScore := math.Inf(-1)
	for ci, params := range grid {
		mean, std := stat.PopMeanStdDev(scores[ci], nil)
		summary.Results[ci] = artifact.CVResult{
			Params:   params.Map(),
			MeanRMSE: mean,
			StdRMSE:  std,
			FoldRMSE: scores[ci],
		}
		if score := -mean; score > bestScore {
			bestScore = score
			summary.BestIndex = ci
			summary.BestMeanRMSE = mean
		}
	}
	return summary, nil
}

// ErrEmptyEvaluation is returned when there is nothing to score.
var ErrEmptyEvaluation = errors.New("no rows to evaluate")

// RMSE returns the root of the mean squared difference of yTrue and yPred.
func RMSE(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) == 0 {
		return 0, ErrEmptyEvaluation
	}
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("rmse: %d targets but %d predictions", len(yTrue), len(yPred))
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue))), nil
}

// Evaluation is the holdout score of a pipeline. YPred is aligned with the
// rows of the holdout dataset.
type Evaluation struct {
	RMSE  float64
	YTrue []float64
	YPred []float64
}

// Evaluate predicts every holdout row with p and scores it. p is only read.
func Evaluate(p model.PredictiveModel, holdout *dataset.Dataset) (*Evaluation, error) {
	ev := &Evaluation{YTrue: holdout.Y(), YPred: make([]float64, holdout.Len())}
	for i := range ev.YPred {
		ev.YPred[i] = p.Predict(holdout.Vector(i))
	}
	rmse, err := RMSE(ev.YTrue, ev.YPred)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(rmse) || math.IsInf(rmse, 0) {
		return nil, fmt.Errorf("holdout rmse is not finite: %v", rmse)
	}
	ev.RMSE = rmse
	return ev, nil
}
