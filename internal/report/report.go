// Package report renders diagnostic charts for a training run: a PNG of
// holdout predictions against targets, and an HTML bar chart of the
// cross-validated error of every grid configuration.
package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/security"
)

// Output file names inside <dir>/<version>/.
const (
	HoldoutPlotFile = "holdout.png"
	GridChartFile   = "cv.html"
)

// Write renders every applicable chart for one training run into
// dir/<version>/ and returns the written paths. cv may be nil.
func Write(dir, version string, rmse float64, yTrue, yPred []float64, cv *artifact.CVSummary) ([]string, error) {
	if err := security.ValidateVersion(version); err != nil {
		return nil, err
	}
	out := filepath.Join(dir, version)
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	var written []string
	png := filepath.Join(out, HoldoutPlotFile)
	title := fmt.Sprintf("%s holdout (RMSE %.2f)", version, rmse)
	if err := WriteHoldoutPlot(png, title, yTrue, yPred); err != nil {
		return written, err
	}
	written = append(written, png)

	if cv != nil {
		html := filepath.Join(out, GridChartFile)
		var buf bytes.Buffer
		if err := RenderGridChart(&buf, version, cv); err != nil {
			return written, err
		}
		if err := os.WriteFile(html, buf.Bytes(), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", html, err)
		}
		written = append(written, html)
	}
	return written, nil
}

// WriteHoldoutPlot saves a predicted-against-actual scatter with the identity
// line. The image format follows the file extension.
func WriteHoldoutPlot(path, title string, yTrue, yPred []float64) error {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return fmt.Errorf("holdout plot needs equal non-empty series, got %d and %d", len(yTrue), len(yPred))
	}

	pts := make(plotter.XYs, len(yTrue))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range yTrue {
		pts[i] = plotter.XY{X: yTrue[i], Y: yPred[i]}
		lo = math.Min(lo, math.Min(yTrue[i], yPred[i]))
		hi = math.Max(hi, math.Max(yTrue[i], yPred[i]))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(scatter)
	p.Legend.Add("holdout rows", scatter)

	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return fmt.Errorf("failed to build identity line: %w", err)
	}
	identity.Width = vg.Points(1)
	identity.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(identity)
	p.Legend.Add("perfect fit", identity)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// RenderGridChart writes an HTML page with one bar per grid configuration,
// in grid order, showing mean cross-validated RMSE.
func RenderGridChart(w io.Writer, version string, cv *artifact.CVSummary) error {
	labels := make([]string, len(cv.Results))
	bars := make([]opts.BarData, len(cv.Results))
	for i, r := range cv.Results {
		labels[i] = ParamsLabel(r.Params)
		bars[i] = opts.BarData{Value: round(r.MeanRMSE, 4)}
		if i == cv.BestIndex {
			bars[i].ItemStyle = &opts.ItemStyle{Color: "#d62728"}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: version + " grid search", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %d-fold cross-validation", version, cv.Folds),
			Subtitle: fmt.Sprintf("best: %s (mean RMSE %.4f)", labelAt(labels, cv.BestIndex), cv.BestMeanRMSE),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "configuration", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean RMSE"}),
	)
	bar.SetXAxis(labels).AddSeries("mean RMSE", bars)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// ParamsLabel formats a hyperparameter map as "k=v, k=v" with sorted keys;
// nil values print as None.
func ParamsLabel(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := params[k]
		if v == nil {
			v = "None"
		}
		parts[i] = fmt.Sprintf("%s=%v", k, v)
	}
	return strings.Join(parts, ", ")
}

func labelAt(labels []string, i int) string {
	if i < 0 || i >= len(labels) {
		return "?"
	}
	return labels[i]
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
