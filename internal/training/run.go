package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/db"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/monitoring"
	"github.com/banshee-data/triage.report/internal/report"
	"github.com/banshee-data/triage.report/internal/repro"
	"github.com/banshee-data/triage.report/internal/timeutil"
)

// Ledger records completed runs. *db.DB satisfies it.
type Ledger interface {
	RecordRun(ctx context.Context, rec db.RunRecord) error
}

// RunOptions wires one training invocation.
type RunOptions struct {
	Config *config.TrainingConfig
	// Dataset overrides loading Config's dataset path.
	Dataset *dataset.Dataset
	// Store defaults to an OS store rooted at Config's models dir.
	Store *artifact.Store
	// Ledger and ReportsDir are optional.
	Ledger     Ledger
	ReportsDir string
	// Out receives the indented metadata JSON. Nil discards it.
	Out io.Writer
	// Clock stamps created_at and the run duration. Nil uses the wall clock.
	Clock timeutil.Clock
}

// RunResult is what a completed run produced.
type RunResult struct {
	Metadata   *artifact.Metadata
	Train      *Result
	Evaluation *Evaluation
	Partition  *dataset.Partition
	Reports    []string
}

// Run performs one versioned training run end to end: split, train,
// evaluate on the holdout, persist the artifact, then record and report it.
// Configuration errors abort before any fitting. A failed run leaves any
// previously stored artifact for the version untouched. Ledger and report
// failures are logged and do not fail the run.
func Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("%w: no training configuration", config.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := cfg.GetModelVersion()
	if version == "" {
		return nil, fmt.Errorf("%w: model_version is required", config.ErrConfiguration)
	}
	if err := config.ValidateHoldoutFraction(cfg.GetHoldoutFraction()); err != nil {
		return nil, err
	}
	est := cfg.GetEstimator()
	if err := est.Validate(); err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		store = artifact.NewStore(cfg.GetModelsDir())
	}
	if _, err := store.Dir(version); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	clock := timeutil.OrReal(opts.Clock)
	started := clock.Now()

	seed := cfg.GetSeed()
	src := repro.SeedAll(seed)

	ds := opts.Dataset
	datasetPath := ""
	if ds == nil {
		var err error
		if ds, datasetPath, err = loadDataset(cfg, seed); err != nil {
			return nil, err
		}
	}
	part, err := dataset.Split(ds, seed, cfg.GetHoldoutFraction())
	if err != nil {
		return nil, err
	}
	monitoring.Logf("training %s: %d rows, %d train / %d holdout, seed %d",
		version, ds.Len(), part.Train.Len(), part.Holdout.Len(), seed)

	res, err := Train(ctx, part.Train, cfg, src)
	if err != nil {
		return nil, err
	}
	ev, err := Evaluate(res.Pipeline, part.Holdout)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("training %s: holdout rmse %.4f", version, ev.RMSE)

	md := &artifact.Metadata{
		ModelVersion: version,
		Algorithm:    res.Pipeline.Algorithm(),
		Seed:         seed,
		Metrics:      artifact.Metrics{RMSEHoldout: ev.RMSE},
		Features:     features.NameList(),
		CreatedAt:    clock.Now().UTC(),
		NTrain:       part.Train.Len(),
		NHoldout:     part.Holdout.Len(),
		CV:           res.CV,
	}
	if res.CV != nil {
		md.Hyperparameters = res.Params.Map()
	}
	if err := store.Save(version, res.Pipeline, md); err != nil {
		return nil, err
	}

	out := &RunResult{Metadata: md, Train: res, Evaluation: ev, Partition: part}

	if opts.Ledger != nil {
		rec := db.RecordFromMetadata(md, datasetPath, clock.Since(started))
		if err := opts.Ledger.RecordRun(ctx, rec); err != nil {
			monitoring.Logf("training %s: warning: failed to record run %s: %v", version, md.RunID, err)
		}
	}
	if opts.ReportsDir != "" {
		paths, err := report.Write(opts.ReportsDir, version, ev.RMSE, ev.YTrue, ev.YPred, res.CV)
		if err != nil {
			monitoring.Logf("training %s: warning: failed to write reports: %v", version, err)
		}
		out.Reports = paths
	}

	if opts.Out != nil {
		b, err := md.MarshalIndent()
		if err != nil {
			return nil, err
		}
		if _, err := opts.Out.Write(b); err != nil {
			return nil, fmt.Errorf("write metadata: %w", err)
		}
	}
	return out, nil
}

// loadDataset reads the configured CSV. With no path configured it reads
// the default path when that file exists and otherwise falls back to the
// table bundled into the binary.
func loadDataset(cfg *config.TrainingConfig, seed int64) (*dataset.Dataset, string, error) {
	path := cfg.GetDatasetPath()
	explicit := cfg.DatasetPath != nil && *cfg.DatasetPath != ""
	if explicit {
		ds, err := dataset.LoadCSV(path)
		return ds, path, err
	}
	if _, err := os.Stat(path); err == nil {
		ds, err := dataset.LoadCSV(path)
		return ds, path, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("open dataset: %w", err)
	}
	ds, src, err := dataset.Default(seed)
	if err != nil {
		return nil, "", fmt.Errorf("bundled dataset: %w", err)
	}
	if src == dataset.SourceSynthetic {
		monitoring.Logf("WARNING: %s not found and no table bundled, training on %d synthetic rows", path, ds.Len())
	} else {
		monitoring.Logf("%s not found, training on the bundled table (%d rows)", path, ds.Len())
	}
	return ds, string(src), nil
}
