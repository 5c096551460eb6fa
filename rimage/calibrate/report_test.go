package calibrate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestSummarize(t *testing.T) {
	res := &Result{
		ImageIndices:      []int{3, 5, 8, 9},
		PerViewErrors:     []float64{0.1, 0.4, 0.2, 0.3},
		ReprojectionError: 0.27,
	}
	s, err := res.Summarize()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Mean, test.ShouldAlmostEqual, 0.25)
	test.That(t, s.Median, test.ShouldAlmostEqual, 0.25)
	test.That(t, s.Max, test.ShouldEqual, 0.4)
	test.That(t, s.WorstView, test.ShouldEqual, 5)
	test.That(t, s.StdDev, test.ShouldBeGreaterThan, 0)

	_, err = (&Result{}).Summarize()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestErrorHistogram(t *testing.T) {
	res := &Result{PerViewErrors: []float64{0.1, 0.15, 0.2, 0.9}}
	hist := res.ErrorHistogram()
	total := 0
	for _, b := range hist.Buckets {
		total += b.Count
	}
	test.That(t, total, test.ShouldEqual, 4)

	same := &Result{PerViewErrors: []float64{0.5, 0.5}}
	test.That(t, same.ErrorHistogram().Buckets, test.ShouldHaveLength, 1)
	test.That(t, same.ErrorHistogram().Buckets[0].Count, test.ShouldEqual, 2)
	test.That(t, same.ErrorHistogram().Buckets[0].Min, test.ShouldEqual, 0.5)
	test.That(t, same.ErrorHistogram().Count, test.ShouldEqual, 2)
	var sameBuf bytes.Buffer
	test.That(t, same.WriteErrorHistogram(&sameBuf), test.ShouldBeNil)
	test.That(t, sameBuf.Len(), test.ShouldBeGreaterThan, 0)

	var buf bytes.Buffer
	test.That(t, res.WriteErrorHistogram(&buf), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, (&Result{}).WriteErrorHistogram(&buf), test.ShouldNotBeNil)
}

func TestSaveErrorPlot(t *testing.T) {
	res := &Result{
		ImageIndices:      []int{1, 2, 3},
		PerViewErrors:     []float64{0.1, 0.4, 0.2},
		ReprojectionError: 0.27,
	}
	path := filepath.Join(t.TempDir(), "plots", "errors.png")
	test.That(t, res.SaveErrorPlot(path), test.ShouldBeNil)
	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	test.That(t, (&Result{}).SaveErrorPlot(path), test.ShouldNotBeNil)
}
