package calibrate

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
)

const (
	testWidth  = 640
	testHeight = 480
)

func trueModel(t *testing.T) *transform.PinholeCameraModel {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{
		800, 0, 320,
		0, 780, 240,
		0, 0, 1,
	})
	model, err := transform.NewPinholeCameraModel(testWidth, testHeight, k, nil)
	test.That(t, err, test.ShouldBeNil)
	return model
}

// syntheticPoses looks at the board center from n directions tilted about 17 degrees off axis.
func syntheticPoses(pattern *PatternGeometry, n int) []transform.Extrinsics {
	cx := float64(pattern.Width-1) * pattern.CellSize / 2
	cy := float64(pattern.Height-1) * pattern.CellSize / 2
	poses := make([]transform.Extrinsics, n)
	for i := range poses {
		a := 2 * math.Pi * float64(i) / float64(n)
		poses[i] = transform.Extrinsics{
			Rotation: r3.Vector{X: 0.3 * math.Cos(a), Y: 0.3 * math.Sin(a), Z: 0.1 * float64(i%3-1)},
			Translation: r3.Vector{
				X: -cx + 0.01*float64(i%3-1),
				Y: -cy + 0.005*float64(i%2),
				Z: 0.45 + 0.01*float64(i),
			},
		}
	}
	return poses
}

func projectBoard(t *testing.T, model *transform.PinholeCameraModel, pattern *PatternGeometry, pose transform.Extrinsics) []r2.Point {
	t.Helper()
	projected, err := transform.ProjectPoints(transform.ProjectionDistorted, pattern.WorldPoints(), model, pose)
	test.That(t, err, test.ShouldBeNil)
	out := make([]r2.Point, len(projected))
	for i, p := range projected {
		test.That(t, p.Valid, test.ShouldBeTrue)
		out[i] = p.Pixel
	}
	return out
}

// renderBoard draws a chessboard of squaresX by squaresY squares, each square pixels wide, starting
// at (offset, offset) on a white background. The top left square is black.
func renderBoard(squaresX, squaresY, square, offset int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, squaresX*square+2*offset, squaresY*square+2*offset))
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
			bx, by := x-offset, y-offset
			if bx < 0 || by < 0 || bx >= squaresX*square || by >= squaresY*square {
				continue
			}
			if (bx/square+by/square)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func blankImages(n int) []CalibrationImage {
	images := make([]CalibrationImage, n)
	for i := range images {
		images[i] = CalibrationImage{
			Index: i + 1,
			Path:  "synthetic",
			Image: image.NewGray(image.Rect(0, 0, testWidth, testHeight)),
		}
	}
	return images
}

// lookupDetector returns the corners registered for an image and ErrPatternNotFound for the rest.
func lookupDetector(corners map[image.Image][]r2.Point) Detector {
	return DetectorFunc(func(img image.Image, _ *PatternGeometry) ([]r2.Point, error) {
		found, ok := corners[img]
		if !ok {
			return nil, ErrPatternNotFound
		}
		return found, nil
	})
}
