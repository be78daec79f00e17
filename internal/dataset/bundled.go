package dataset

import (
	"bytes"
	"embed"
	"errors"
	"io/fs"
)

// BundledRows is the row count of the diabetes table and of the synthetic
// stand-in used when the table is not bundled.
const BundledRows = 442

//go:embed bundled
var bundledFS embed.FS

const bundledFile = "bundled/diabetes.csv"

// ErrNotBundled is returned by Bundled when the binary carries no table.
var ErrNotBundled = errors.New("no dataset bundled into this binary")

// Source names where a default dataset came from.
type Source string

const (
	SourceBundled   Source = "bundled"
	SourceSynthetic Source = "synthetic"
)

// Bundled parses the diabetes table compiled into the binary.
func Bundled() (*Dataset, error) {
	data, err := bundledFS.ReadFile(bundledFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotBundled
	}
	if err != nil {
		return nil, err
	}
	return ReadCSV(bytes.NewReader(data))
}

// Default returns the bundled table, or BundledRows synthetic rows drawn
// from seed when nothing is bundled.
func Default(seed int64) (*Dataset, Source, error) {
	d, err := Bundled()
	switch {
	case err == nil:
		return d, SourceBundled, nil
	case errors.Is(err, ErrNotBundled):
		return Synthetic(BundledRows, seed), SourceSynthetic, nil
	default:
		return nil, "", err
	}
}
