package model

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/repro"
)

// node is one vertex of a flattened regression tree. Leaves have feature -1.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// Tree is a fitted CART regression tree.
type Tree struct {
	nodes []node
}

// PredictRow walks from the root to a leaf; rows with value <= threshold go
// left.
func (t *Tree) PredictRow(row []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// NodeCount returns the number of nodes, leaves included.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.nodes[i]
		if n.feature < 0 {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(0)
}

// EnsembleTreeModel averages bootstrap-trained regression trees.
type EnsembleTreeModel struct {
	params Params
	trees  []*Tree
}

// PredictRow returns the mean prediction of all trees.
func (m *EnsembleTreeModel) PredictRow(row []float64) float64 {
	var sum float64
	for _, t := range m.trees {
		sum += t.PredictRow(row)
	}
	return sum / float64(len(m.trees))
}

// Predict evaluates the ensemble on an unscaled vector.
func (m *EnsembleTreeModel) Predict(v features.Vector) float64 { return m.PredictRow(v[:]) }

// Params implements Estimator.
func (m *EnsembleTreeModel) Params() Params { return m.params }

// Trees returns the fitted trees.
func (m *EnsembleTreeModel) Trees() []*Tree { return m.trees }

// FitForest grows params.NEstimators trees on bootstrap resamples of (x, y).
// Tree i draws from the forest stream of src with index i, so the result does
// not depend on workers. workers <= 0 means one per CPU.
func FitForest(ctx context.Context, x [][]float64, y []float64, params Params, src *repro.Source, workers int) (*EnsembleTreeModel, error) {
	if err := checkShape(x, y); err != nil {
		return nil, err
	}
	params.Kind = config.KindRandomForest
	if params.NEstimators < 1 {
		return nil, fmt.Errorf("%w: n_estimators must be positive, got %d", config.ErrConfiguration, params.NEstimators)
	}
	if params.MinSamplesSplit < 2 {
		return nil, fmt.Errorf("%w: min_samples_split must be at least 2, got %d", config.ErrConfiguration, params.MinSamplesSplit)
	}
	if params.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth must be non-negative, got %d", config.ErrConfiguration, params.MaxDepth)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, params.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := src.Stream(repro.StreamForest, i)
			sample := bootstrap(len(x), r)
			trees[i] = growTree(x, y, sample, params.MaxDepth, params.MinSamplesSplit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &EnsembleTreeModel{params: params, trees: trees}, nil
}

func bootstrap(n int, r *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = r.IntN(n)
	}
	return idx
}

type treeBuilder struct {
	x               [][]float64
	y               []float64
	maxDepth        int
	minSamplesSplit int
	nodes           []node
}

func growTree(x [][]float64, y []float64, sample []int, maxDepth, minSamplesSplit int) *Tree {
	b := &treeBuilder{x: x, y: y, maxDepth: maxDepth, minSamplesSplit: minSamplesSplit}
	b.build(sample, 0)
	return &Tree{nodes: b.nodes}
}

// build appends the subtree for idx and returns its root index.
func (b *treeBuilder) build(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	self := len(b.nodes)
	b.nodes = append(b.nodes, node{feature: -1, value: mean})

	if len(idx) < b.minSamplesSplit || (b.maxDepth > 0 && depth >= b.maxDepth) || sse <= 1e-12*max(1, sumSq) {
		return self
	}
	feature, threshold, ok := b.bestSplit(idx, sse)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = node{feature: feature, threshold: threshold, left: l, right: r, value: mean}
	return self
}

// bestSplit scans every feature for the threshold minimizing the summed
// squared error of both children. Ties keep the first candidate found, in
// feature order then ascending threshold.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestSSE := parentSSE
	sorted := make([]int, len(idx))
	p := len(b.x[idx[0]])

	for f := 0; f < p; f++ {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			va, vc := b.x[a][f], b.x[c][f]
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}
		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			yi := b.y[sorted[k]]
			leftSum += yi
			leftSq += yi * yi
			v, next := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if v == next {
				continue
			}
			nl := float64(k + 1)
			nr := float64(len(sorted)) - nl
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			childSSE := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if childSSE < bestSSE-1e-12 {
				bestSSE = childSSE
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold == next {
					bestThreshold = v
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
