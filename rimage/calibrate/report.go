package calibrate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 10

// ErrorSummary describes the spread of per-view reprojection errors.
type ErrorSummary struct {
	Mean      float64
	Median    float64
	StdDev    float64
	P90       float64
	Max       float64
	WorstView int // image index of the view with the largest error
}

// Summarize computes statistics over the per-view errors of a result.
func (r *Result) Summarize() (ErrorSummary, error) {
	var s ErrorSummary
	if len(r.PerViewErrors) == 0 {
		return s, errors.New("result has no views")
	}
	data := stats.Float64Data(r.PerViewErrors)
	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return s, err
	}
	if s.Median, err = data.Median(); err != nil {
		return s, err
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return s, err
	}
	if s.P90, err = data.Percentile(90); err != nil {
		return s, err
	}
	if s.Max, err = data.Max(); err != nil {
		return s, err
	}
	for i, e := range r.PerViewErrors {
		if e == s.Max {
			s.WorstView = r.ImageIndices[i]
			break
		}
	}
	return s, nil
}

// ErrorHistogram buckets the per-view errors. Equal errors share a single bucket.
func (r *Result) ErrorHistogram() histogram.Histogram {
	return histogram.Hist(histogramBins, r.PerViewErrors)
}

// WriteErrorHistogram prints an ASCII histogram of the per-view errors.
func (r *Result) WriteErrorHistogram(w io.Writer) error {
	if len(r.PerViewErrors) == 0 {
		return errors.New("result has no views")
	}
	return histogram.Fprint(w, r.ErrorHistogram(), histogram.Linear(40))
}

// SaveErrorPlot writes a bar chart of the per-view errors to path. The format follows the extension.
func (r *Result) SaveErrorPlot(path string) error {
	if len(r.PerViewErrors) == 0 {
		return errors.New("result has no views")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reprojection error per view (RMS %.3f px)", r.ReprojectionError)
	p.Y.Label.Text = "RMS error (px)"
	p.X.Label.Text = "image"

	bars, err := plotter.NewBarChart(plotter.Values(r.PerViewErrors), vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "could not build error plot")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	line, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: r.ReprojectionError},
		{X: float64(len(r.PerViewErrors)) - 0.5, Y: r.ReprojectionError},
	})
	if err != nil {
		return errors.Wrap(err, "could not build error plot")
	}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(line)

	labels := make([]string, len(r.ImageIndices))
	for i, idx := range r.ImageIndices {
		labels[i] = fmt.Sprint(idx)
	}
	p.NominalX(labels...)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "could not create directory for %q", path)
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "could not save error plot %q", path)
	}
	return nil
}
