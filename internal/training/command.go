package training

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/db"
)

// RunCommand implements the per-version training binaries. It starts from
// the built-in configuration for version, overlays an optional JSON config
// file and flags, then runs training and prints the metadata to out. The
// overlay may tune the run but never move it to another model version.
func RunCommand(ctx context.Context, version string, args []string, out io.Writer) error {
	cfg, err := config.Builtin(version)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("train-"+version, flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "JSON training config overlaid on the built-in settings")
	datasetPath := fs.String("dataset", "", "Dataset CSV (default "+config.DefaultDatasetPath+")")
	synthetic := fs.Int("synthetic", 0, "Train on N synthetic rows instead of a CSV")
	modelsDir := fs.String("models", "", "Artifact root directory (default "+config.DefaultModelsDir+")")
	ledgerPath := fs.String("ledger", "", "SQLite run ledger to record this run in")
	reportsDir := fs.String("reports", "", "Directory for holdout plot and CV chart")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", config.ErrConfiguration, fs.Args())
	}

	if *configPath != "" {
		overlay, err := config.LoadTrainingConfig(*configPath)
		if err != nil {
			return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		if v := overlay.GetModelVersion(); v != "" && v != version {
			return fmt.Errorf("%w: %s sets model_version %q but this binary trains %q",
				config.ErrConfiguration, *configPath, v, version)
		}
		cfg = cfg.Merge(overlay)
	}
	if *datasetPath != "" {
		cfg.DatasetPath = datasetPath
	}
	if *modelsDir != "" {
		cfg.ModelsDir = modelsDir
	}

	opts := RunOptions{Config: cfg, Out: out, ReportsDir: *reportsDir}
	if *synthetic > 0 {
		opts.Dataset = dataset.Synthetic(*synthetic, cfg.GetSeed())
	}
	if *ledgerPath != "" {
		ledger, err := db.NewDB(*ledgerPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer ledger.Close()
		opts.Ledger = ledger
	}

	_, err = Run(ctx, opts)
	return err
}
