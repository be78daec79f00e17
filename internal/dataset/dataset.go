// Package dataset loads labelled feature tables and partitions them
// deterministically into training, holdout and cross-validation subsets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/repro"
)

// TargetColumn is the CSV header of the label column.
const TargetColumn = "target"

// ErrEmpty is returned for a dataset without rows.
var ErrEmpty = errors.New("dataset is empty")

// Dataset is an immutable collection of (feature vector, target) pairs.
// Rows are stored in canonical feature order.
type Dataset struct {
	x [][]float64
	y []float64
}

// New copies x and y into a Dataset after checking shapes and finiteness.
func New(x [][]float64, y []float64) (*Dataset, error) {
	if len(x) == 0 {
		return nil, ErrEmpty
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("dataset has %d rows but %d targets", len(x), len(y))
	}
	d := &Dataset{x: make([][]float64, len(x)), y: make([]float64, len(y))}
	for i, row := range x {
		if len(row) != features.Count {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), features.Count)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d feature %q is not finite", i, features.Names[j])
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("row %d target is not finite", i)
		}
		d.x[i] = append([]float64(nil), row...)
	}
	copy(d.y, y)
	return d, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.y) }

// Row returns a copy of row i.
func (d *Dataset) Row(i int) []float64 { return append([]float64(nil), d.x[i]...) }

// Vector returns row i as a feature vector.
func (d *Dataset) Vector(i int) features.Vector {
	var v features.Vector
	copy(v[:], d.x[i])
	return v
}

// Target returns the label of row i.
func (d *Dataset) Target(i int) float64 { return d.y[i] }

// X returns a deep copy of the feature matrix.
func (d *Dataset) X() [][]float64 {
	out := make([][]float64, len(d.x))
	for i, row := range d.x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Y returns a copy of the targets.
func (d *Dataset) Y() []float64 { return append([]float64(nil), d.y...) }

// Subset returns the rows at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	s := &Dataset{x: make([][]float64, len(idx)), y: make([]float64, len(idx))}
	for i, j := range idx {
		s.x[i] = append([]float64(nil), d.x[j]...)
		s.y[i] = d.y[j]
	}
	return s
}

// LoadCSV reads a dataset from a CSV file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	d, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return d, nil
}

// ReadCSV parses a header row naming every contract feature plus "target",
// in any column order, followed by numeric rows.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	featureCols := make([]int, features.Count)
	for j, name := range features.Names {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("header is missing feature column %q", name)
		}
		featureCols[j] = i
	}
	targetCol, ok := cols[TargetColumn]
	if !ok {
		return nil, fmt.Errorf("header is missing %q column", TargetColumn)
	}

	var x [][]float64
	var y []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, features.Count)
		for j, c := range featureCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, features.Names[j], err)
			}
			row[j] = v
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[targetCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d column %q: %w", line, TargetColumn, err)
		}
		x = append(x, row)
		y = append(y, t)
	}
	return New(x, y)
}

// WriteCSV writes the dataset with a canonical header.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append(features.NameList(), TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, features.Count+1)
	for i, row := range d.x {
		for j, v := range row {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		rec[features.Count] = strconv.FormatFloat(d.y[i], 'g', -1, 64)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// syntheticWeights approximate the least-squares coefficients of the diabetes
// progression data so synthetic tables behave like the real one.
var syntheticWeights = [features.Count]float64{-10, -240, 520, 320, -790, 480, 100, 180, 750, 70}

// Synthetic generates n rows with the diabetes schema: each feature is
// mean-centred with column scale 1/sqrt(n), the target is a noisy linear
// response around 152.
func Synthetic(n int, seed int64) *Dataset {
	r := repro.SeedAll(seed).Stream("synthetic")
	scale := 1 / math.Sqrt(float64(max(n, 1)))
	d := &Dataset{x: make([][]float64, n), y: make([]float64, n)}
	for i := 0; i < n; i++ {
		row := make([]float64, features.Count)
		t := 152.0
		for j := range row {
			row[j] = r.NormFloat64() * scale
			if j == 1 {
				// sex is binary in the source data
				if row[j] >= 0 {
					row[j] = scale
				} else {
					row[j] = -scale
				}
			}
			t += syntheticWeights[j] * row[j]
		}
		d.x[i] = row
		d.y[i] = t + r.NormFloat64()*54
	}
	return d
}
