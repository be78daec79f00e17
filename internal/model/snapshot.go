package model

import (
	"errors"
	"fmt"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/features"
)

// snapshotFormat is bumped whenever the encoded layout changes.
const snapshotFormat = 1

// ErrCorruptSnapshot is returned when a decoded pipeline is structurally
// unusable.
var ErrCorruptSnapshot = errors.New("corrupt pipeline snapshot")

// Snapshot is the serializable form of a Pipeline. It contains only
// exported fields so encoding/gob can carry it.
type Snapshot struct {
	Format      int
	ScalerMean  []float64
	ScalerScale []float64
	Params      Params
	Coef        []float64
	Intercept   float64
	Trees       []TreeSnapshot
}

// TreeSnapshot stores a tree as parallel node arrays.
type TreeSnapshot struct {
	Feature   []int
	Threshold []float64
	Left      []int
	Right     []int
	Value     []float64
}

// Snapshot captures the fitted state of p.
func (p *Pipeline) Snapshot() *Snapshot {
	s := &Snapshot{
		Format:      snapshotFormat,
		ScalerMean:  p.scaler.Mean(),
		ScalerScale: p.scaler.Scale(),
		Params:      p.estimator.Params(),
	}
	switch e := p.estimator.(type) {
	case *LinearModel:
		s.Coef, s.Intercept = e.Coef(), e.intercept
	case *RegularizedLinearModel:
		s.Coef, s.Intercept = e.Coef(), e.intercept
	case *EnsembleTreeModel:
		s.Trees = make([]TreeSnapshot, len(e.trees))
		for i, t := range e.trees {
			ts := TreeSnapshot{
				Feature:   make([]int, len(t.nodes)),
				Threshold: make([]float64, len(t.nodes)),
				Left:      make([]int, len(t.nodes)),
				Right:     make([]int, len(t.nodes)),
				Value:     make([]float64, len(t.nodes)),
			}
			for j, n := range t.nodes {
				ts.Feature[j], ts.Threshold[j] = n.feature, n.threshold
				ts.Left[j], ts.Right[j], ts.Value[j] = n.left, n.right, n.value
			}
			s.Trees[i] = ts
		}
	}
	return s
}

// Restore rebuilds a Pipeline, checking every index so that a damaged
// snapshot cannot panic at prediction time.
func (s *Snapshot) Restore() (*Pipeline, error) {
	if s.Format != snapshotFormat {
		return nil, fmt.Errorf("%w: format %d, expected %d", ErrCorruptSnapshot, s.Format, snapshotFormat)
	}
	p := len(s.ScalerMean)
	if p != features.Count || len(s.ScalerScale) != p {
		return nil, fmt.Errorf("%w: scaler has %d means and %d scales", ErrCorruptSnapshot, p, len(s.ScalerScale))
	}
	scaler := &Scaler{mean: append([]float64(nil), s.ScalerMean...), scale: append([]float64(nil), s.ScalerScale...)}

	var est Estimator
	switch s.Params.Kind {
	case config.KindLinear, config.KindRidge:
		if len(s.Coef) != p {
			return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrCorruptSnapshot, len(s.Coef), p)
		}
		lm := LinearModel{coef: append([]float64(nil), s.Coef...), intercept: s.Intercept}
		if s.Params.Kind == config.KindLinear {
			est = &lm
		} else {
			est = &RegularizedLinearModel{LinearModel: lm, alpha: s.Params.Alpha}
		}
	case config.KindRandomForest:
		if len(s.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest without trees", ErrCorruptSnapshot)
		}
		trees := make([]*Tree, len(s.Trees))
		for i, ts := range s.Trees {
			t, err := ts.restore(p)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = t
		}
		est = &EnsembleTreeModel{params: s.Params, trees: trees}
	default:
		return nil, fmt.Errorf("%w: unknown estimator kind %q", ErrCorruptSnapshot, s.Params.Kind)
	}
	return NewPipeline(scaler, est), nil
}

func (ts TreeSnapshot) restore(p int) (*Tree, error) {
	n := len(ts.Feature)
	if n == 0 || len(ts.Threshold) != n || len(ts.Left) != n || len(ts.Right) != n || len(ts.Value) != n {
		return nil, fmt.Errorf("%w: ragged node arrays", ErrCorruptSnapshot)
	}
	t := &Tree{nodes: make([]node, n)}
	for j := 0; j < n; j++ {
		nd := node{feature: ts.Feature[j], threshold: ts.Threshold[j], left: ts.Left[j], right: ts.Right[j], value: ts.Value[j]}
		if nd.feature >= p {
			return nil, fmt.Errorf("%w: node %d splits on feature %d", ErrCorruptSnapshot, j, nd.feature)
		}
		// Children always follow their parent in build order, which also
		// rules out cycles.
		if nd.feature >= 0 && (nd.left <= j || nd.left >= n || nd.right <= j || nd.right >= n) {
			return nil, fmt.Errorf("%w: node %d has invalid children", ErrCorruptSnapshot, j)
		}
		if nd.feature < 0 {
			nd.feature = -1
		}
		t.nodes[j] = nd
	}
	return t, nil
}
