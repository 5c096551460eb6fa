//go:build opencv

package calibrate

import (
	"image"
	"image/draw"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// NewDefaultDetector returns the OpenCV chessboard detector.
func NewDefaultDetector() Detector {
	return &OpenCVDetector{}
}

// OpenCVDetector finds chessboard corners with cv::findChessboardCorners and refines them with
// cv::cornerSubPix.
type OpenCVDetector struct{}

// Detect implements Detector.
func (d *OpenCVDetector) Detect(img image.Image, pattern *PatternGeometry) ([]r2.Point, error) {
	gray, err := imageToGrayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close() //nolint:errcheck

	corners := gocv.NewMat()
	defer corners.Close() //nolint:errcheck

	size := image.Pt(pattern.Width, pattern.Height)
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage | gocv.CalibCBFastCheck
	if !gocv.FindChessboardCorners(gray, size, &corners, flags) {
		return nil, ErrPatternNotFound
	}
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 0.1)
	gocv.CornerSubPix(gray, &corners, image.Pt(11, 11), image.Pt(-1, -1), criteria)

	if corners.Rows() != pattern.Corners() {
		return nil, ErrPatternNotFound
	}
	out := make([]r2.Point, corners.Rows())
	for i := range out {
		v := corners.GetVecfAt(i, 0)
		out[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return out, nil
}

func imageToGrayMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	mat, err := gocv.NewMatFromBytes(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "could not convert image for OpenCV")
	}
	defer mat.Close() //nolint:errcheck

	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}
