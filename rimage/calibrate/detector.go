package calibrate

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrPatternNotFound is returned by a Detector when the image does not show the whole pattern.
var ErrPatternNotFound = errors.New("calibration pattern not found")

// A Detector finds the interior corners of a chessboard. On success it returns exactly
// pattern.Corners() points in the same row major order as pattern.WorldPoints().
type Detector interface {
	Detect(img image.Image, pattern *PatternGeometry) ([]r2.Point, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(img image.Image, pattern *PatternGeometry) ([]r2.Point, error)

// Detect calls f.
func (f DetectorFunc) Detect(img image.Image, pattern *PatternGeometry) ([]r2.Point, error) {
	return f(img, pattern)
}
