// Package transform provides camera models and the projections that rely on them.
package transform

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// ErrShapeMismatch is returned when a matrix or vector does not have the dimensions its consumer needs.
var ErrShapeMismatch = errors.New("matrix has the wrong shape")

// NewShapeMismatchError wraps ErrShapeMismatch with the expected and actual shapes.
func NewShapeMismatchError(what string, wantRows, wantCols, gotRows, gotCols int) error {
	return errors.Wrapf(ErrShapeMismatch, "%s: expected %dx%d, got %dx%d", what, wantRows, wantCols, gotRows, gotCols)
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// NewPinholeCameraModel builds a model from a 3x3 camera matrix and OpenCV ordered distortion
// coefficients. A nil or empty distortion slice gives a distortion free model.
func NewPinholeCameraModel(width, height int, cameraMatrix mat.Matrix, distortion []float64) (*PinholeCameraModel, error) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromMatrix(width, height, cameraMatrix)
	if err != nil {
		return nil, err
	}
	distorter, err := NewDistorter(BrownConradyDistortionType, distortion)
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distorter}, nil
}

// CheckValid checks both the intrinsics and the distortion model, if one is present.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// DistortionCoefficients returns the distortion as the OpenCV ordered vector
// [k1 k2 p1 p2 k3 k4 k5 k6]. A model without distortion returns all zeros.
func (params *PinholeCameraModel) DistortionCoefficients() []float64 {
	if params == nil || params.Distortion == nil {
		return make([]float64, BrownConradyParameterCount)
	}
	return params.Distortion.Parameters()
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		if params.Distortion == nil {
			return u, v
		}
		if bc, ok := params.Distortion.(*BrownConrady); ok && bc.IsZero() {
			return u, v
		}
		x, y, _ := params.PixelToPoint(u, v, 1)
		x, y = params.Distortion.Transform(x, y)
		x, y, _ = params.PointToPixel(x, y, 1)
		return x, y
	}
}

// UndistortImage takes an input image and creates a new image the same size with the same camera parameters
// as the original image, but undistorted according to the distortion model in PinholeCameraModel. A bilinear
// interpolation is used to interpolate values between image pixels. Pixels that map outside the source are black.
func (params *PinholeCameraModel) UndistortImage(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	// Check dimensions, they should be equal between the color image and what the intrinsics expect
	if params.Width != bounds.Dx() || params.Height != bounds.Dy() {
		return nil, errors.Errorf("img dimension and intrinsics don't match Image(%d,%d) != Intrinsics(%d,%d)",
			bounds.Dx(), bounds.Dy(), params.Width, params.Height)
	}
	undistortedImg := image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))
	distortionMap := params.DistortionMap()
	for v := 0; v < params.Height; v++ {
		for u := 0; u < params.Width; u++ {
			x, y := distortionMap(float64(u), float64(v))
			undistortedImg.Set(u, v, bilinearColor(img, x, y))
		}
	}
	return undistortedImg, nil
}

// bilinearColor samples img at a sub pixel location relative to its bounds.
func bilinearColor(img image.Image, x, y float64) color.Color {
	bounds := img.Bounds()
	if x < 0 || y < 0 || x > float64(bounds.Dx()-1) || y > float64(bounds.Dy()-1) {
		return color.Black
	}
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, bounds.Dx()-1), min(y0+1, bounds.Dy()-1)
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) [4]float64 {
		r, g, b, a := img.At(bounds.Min.X+px, bounds.Min.Y+py).RGBA()
		return [4]float64{float64(r), float64(g), float64(b), float64(a)}
	}
	c00, c10, c01, c11 := at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1)
	var out [4]uint16
	for i := range out {
		top := c00[i]*(1-fx) + c10[i]*fx
		bottom := c01[i]*(1-fx) + c11[i]*fx
		out[i] = uint16(math.Round(top*(1-fy) + bottom*fy))
	}
	return color.RGBA64{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx and ppy out of a 3x3 camera matrix. Skew is
// not modelled and is ignored.
func NewPinholeCameraIntrinsicsFromMatrix(width, height int, cameraMatrix mat.Matrix) (*PinholeCameraIntrinsics, error) {
	if cameraMatrix == nil {
		return nil, NewShapeMismatchError("camera matrix", 3, 3, 0, 0)
	}
	if r, c := cameraMatrix.Dims(); r != 3 || c != 3 {
		return nil, NewShapeMismatchError("camera matrix", 3, 3, r, c)
	}
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     cameraMatrix.At(0, 0),
		Fy:     cameraMatrix.At(1, 1),
		Ppx:    cameraMatrix.At(0, 2),
		Ppy:    cameraMatrix.At(1, 2),
	}, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 || math.IsNaN(params.Fx) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 || math.IsNaN(params.Fy) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 || math.IsNaN(params.Ppx) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 || math.IsNaN(params.Ppy) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	byteValue, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON file")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point in the camera frame to a sub pixel location in the image plane.
// ok is false when the point is not in front of the camera.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64, bool) {
	if z <= MinProjectionDepth {
		return 0, 0, false
	}
	return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy, true
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}
