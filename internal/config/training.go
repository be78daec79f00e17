package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExampleConfigPath is the operator-facing example shipped with the repo.
const ExampleConfigPath = "config/training.example.json"

// ErrConfiguration marks a training configuration that must abort the run
// before any fitting happens.
var ErrConfiguration = errors.New("configuration error")

// Estimator kinds.
const (
	KindLinear       = "linear"
	KindRidge        = "ridge"
	KindRandomForest = "random_forest"
)

// Defaults shared by every model version.
const (
	DefaultSeed            int64   = 42
	DefaultHoldoutFraction float64 = 0.2
	DefaultCVFolds                 = 5
	DefaultDatasetPath             = "data/diabetes.csv"
	DefaultModelsDir               = "models"
)

// TrainingConfig describes one model version's training run. Fields omitted
// from a JSON file fall back to the defaults returned by the Get* methods.
type TrainingConfig struct {
	ModelVersion    *string          `json:"model_version,omitempty"`
	Seed            *int64           `json:"seed,omitempty"`
	HoldoutFraction *float64         `json:"holdout_fraction,omitempty"`
	CVFolds         *int             `json:"cv_folds,omitempty"`
	Workers         *int             `json:"workers,omitempty"`
	DatasetPath     *string          `json:"dataset_path,omitempty"`
	ModelsDir       *string          `json:"models_dir,omitempty"`
	Estimator       *EstimatorConfig `json:"estimator,omitempty"`
}

// EstimatorConfig selects the regression estimator and its search grid.
// A MaxDepth of 0 means the trees grow without a depth limit.
type EstimatorConfig struct {
	Kind            string    `json:"kind"`
	Alpha           []float64 `json:"alpha,omitempty"`
	NEstimators     []int     `json:"n_estimators,omitempty"`
	MaxDepth        []int     `json:"max_depth,omitempty"`
	MinSamplesSplit []int     `json:"min_samples_split,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// builtins reproduce the three shipped model versions.
var builtins = map[string]func() *TrainingConfig{
	"v0.1": func() *TrainingConfig {
		return &TrainingConfig{
			ModelVersion: ptrString("v0.1"),
			Estimator:    &EstimatorConfig{Kind: KindLinear},
		}
	},
	"v0.2": func() *TrainingConfig {
		return &TrainingConfig{
			ModelVersion: ptrString("v0.2"),
			Estimator: &EstimatorConfig{
				Kind:  KindRidge,
				Alpha: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
		}
	},
	"v0.3": func() *TrainingConfig {
		return &TrainingConfig{
			ModelVersion: ptrString("v0.3"),
			Estimator: &EstimatorConfig{
				Kind:            KindRandomForest,
				NEstimators:     []int{100, 200, 300},
				MaxDepth:        []int{0, 5, 10, 20},
				MinSamplesSplit: []int{2, 5, 10},
			},
		}
	},
}

// Builtin returns the configuration for a shipped model version.
func Builtin(version string) (*TrainingConfig, error) {
	f, ok := builtins[version]
	if !ok {
		return nil, fmt.Errorf("%w: no built-in configuration for version %q (have %s)",
			ErrConfiguration, version, strings.Join(BuiltinVersions(), ", "))
	}
	return f(), nil
}

// BuiltinVersions lists the shipped versions in sorted order.
func BuiltinVersions() []string {
	out := make([]string, 0, len(builtins))
	for v := range builtins {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// LoadTrainingConfig loads a TrainingConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTrainingConfig(path string) (*TrainingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TrainingConfig{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge overlays every non-nil field of other onto a copy of c.
func (c *TrainingConfig) Merge(other *TrainingConfig) *TrainingConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.ModelVersion != nil {
		out.ModelVersion = other.ModelVersion
	}
	if other.Seed != nil {
		out.Seed = other.Seed
	}
	if other.HoldoutFraction != nil {
		out.HoldoutFraction = other.HoldoutFraction
	}
	if other.CVFolds != nil {
		out.CVFolds = other.CVFolds
	}
	if other.Workers != nil {
		out.Workers = other.Workers
	}
	if other.DatasetPath != nil {
		out.DatasetPath = other.DatasetPath
	}
	if other.ModelsDir != nil {
		out.ModelsDir = other.ModelsDir
	}
	if other.Estimator != nil {
		out.Estimator = other.Estimator
	}
	return &out
}

// Validate checks the configuration. Every failure wraps ErrConfiguration.
func (c *TrainingConfig) Validate() error {
	if c.ModelVersion != nil && strings.TrimSpace(*c.ModelVersion) == "" {
		return fmt.Errorf("%w: model_version must not be empty", ErrConfiguration)
	}
	if c.HoldoutFraction != nil {
		if err := ValidateHoldoutFraction(*c.HoldoutFraction); err != nil {
			return err
		}
	}
	if c.CVFolds != nil && *c.CVFolds < 2 {
		return fmt.Errorf("%w: cv_folds must be at least 2, got %d", ErrConfiguration, *c.CVFolds)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrConfiguration, *c.Workers)
	}
	if c.Estimator != nil {
		if err := c.Estimator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateHoldoutFraction requires a fraction strictly inside (0,1).
func ValidateHoldoutFraction(f float64) error {
	if !(f > 0 && f < 1) {
		return fmt.Errorf("%w: holdout_fraction must lie in (0,1), got %v", ErrConfiguration, f)
	}
	return nil
}

// Validate checks the estimator kind and its grid values.
func (e *EstimatorConfig) Validate() error {
	switch e.Kind {
	case KindLinear:
		if len(e.Alpha)+len(e.NEstimators)+len(e.MaxDepth)+len(e.MinSamplesSplit) > 0 {
			return fmt.Errorf("%w: linear estimator takes no hyperparameters", ErrConfiguration)
		}
	case KindRidge:
		if len(e.Alpha) == 0 {
			return fmt.Errorf("%w: ridge estimator needs at least one alpha", ErrConfiguration)
		}
		for _, a := range e.Alpha {
			if a < 0 {
				return fmt.Errorf("%w: alpha must be non-negative, got %v", ErrConfiguration, a)
			}
		}
	case KindRandomForest:
		if len(e.NEstimators) == 0 || len(e.MaxDepth) == 0 || len(e.MinSamplesSplit) == 0 {
			return fmt.Errorf("%w: random_forest needs n_estimators, max_depth and min_samples_split grids", ErrConfiguration)
		}
		for _, n := range e.NEstimators {
			if n < 1 {
				return fmt.Errorf("%w: n_estimators must be positive, got %d", ErrConfiguration, n)
			}
		}
		for _, d := range e.MaxDepth {
			if d < 0 {
				return fmt.Errorf("%w: max_depth must be non-negative (0 = unlimited), got %d", ErrConfiguration, d)
			}
		}
		for _, m := range e.MinSamplesSplit {
			if m < 2 {
				return fmt.Errorf("%w: min_samples_split must be at least 2, got %d", ErrConfiguration, m)
			}
		}
	case "":
		return fmt.Errorf("%w: estimator kind is required", ErrConfiguration)
	default:
		return fmt.Errorf("%w: unknown estimator kind %q", ErrConfiguration, e.Kind)
	}
	return nil
}

// GetModelVersion returns the model version or "" when unset.
func (c *TrainingConfig) GetModelVersion() string {
	if c.ModelVersion == nil {
		return ""
	}
	return *c.ModelVersion
}

// GetSeed returns the seed or the default.
func (c *TrainingConfig) GetSeed() int64 {
	if c.Seed == nil {
		return DefaultSeed
	}
	return *c.Seed
}

// GetHoldoutFraction returns the holdout fraction or the default.
func (c *TrainingConfig) GetHoldoutFraction() float64 {
	if c.HoldoutFraction == nil {
		return DefaultHoldoutFraction
	}
	return *c.HoldoutFraction
}

// GetCVFolds returns the number of cross-validation folds or the default.
func (c *TrainingConfig) GetCVFolds() int {
	if c.CVFolds == nil {
		return DefaultCVFolds
	}
	return *c.CVFolds
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *TrainingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetDatasetPath returns the dataset CSV path or the default.
func (c *TrainingConfig) GetDatasetPath() string {
	if c.DatasetPath == nil || *c.DatasetPath == "" {
		return DefaultDatasetPath
	}
	return *c.DatasetPath
}

// GetModelsDir returns the artifact root or the default.
func (c *TrainingConfig) GetModelsDir() string {
	if c.ModelsDir == nil || *c.ModelsDir == "" {
		return DefaultModelsDir
	}
	return *c.ModelsDir
}

// GetEstimator returns the estimator configuration, defaulting to plain
// linear regression.
func (c *TrainingConfig) GetEstimator() EstimatorConfig {
	if c.Estimator == nil {
		return EstimatorConfig{Kind: KindLinear}
	}
	return *c.Estimator
}
