package dataset

import (
	"fmt"
	"math"

	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/repro"
)

// Partition is a disjoint partition of a dataset. The index slices refer to rows
// of the source dataset, in the order the subsets hold them.
type Partition struct {
	Train        *Dataset
	Holdout      *Dataset
	TrainIndex   []int
	HoldoutIndex []int
}

// HoldoutSize returns ceil(n * fraction), the number of holdout rows.
func HoldoutSize(n int, fraction float64) int {
	return int(math.Ceil(float64(n) * fraction))
}

// Split partitions ds by a seeded permutation: the first
// HoldoutSize rows of the permutation form the holdout set, the rest the
// training set. Identical inputs always give the identical partition.
func Split(ds *Dataset, seed int64, fraction float64) (*Partition, error) {
	if err := config.ValidateHoldoutFraction(fraction); err != nil {
		return nil, err
	}
	n := ds.Len()
	nHoldout := HoldoutSize(n, fraction)
	if nHoldout < 1 || nHoldout >= n {
		return nil, fmt.Errorf("%w: holdout_fraction %v leaves an empty subset for %d rows",
			config.ErrConfiguration, fraction, n)
	}

	perm := repro.SeedAll(seed).Perm(repro.StreamSplit, n)
	holdoutIdx := append([]int(nil), perm[:nHoldout]...)
	trainIdx := append([]int(nil), perm[nHoldout:]...)
	return &Partition{
		Train:        ds.Subset(trainIdx),
		Holdout:      ds.Subset(holdoutIdx),
		TrainIndex:   trainIdx,
		HoldoutIndex: holdoutIdx,
	}, nil
}

// Fold is one train/test partition of a k-fold cross-validation.
type Fold struct {
	Train []int
	Test  []int
}

// KFold shuffles [0,n) with the kfold stream of src and cuts it into k
// contiguous test folds; the first n%k folds hold one extra row.
func KFold(n, k int, src *repro.Source) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", config.ErrConfiguration, k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: cannot make %d folds from %d rows", config.ErrConfiguration, k, n)
	}
	perm := src.Perm(repro.StreamKFold, n)
	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		test := append([]int(nil), perm[start:start+size]...)
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		folds[f] = Fold{Train: train, Test: test}
		start += size
	}
	return folds, nil
}
