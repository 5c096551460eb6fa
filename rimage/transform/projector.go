package transform

import (
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MinProjectionDepth is the smallest camera frame depth that is projected. Points at or behind it are
// reported as invalid rather than divided.
const MinProjectionDepth = 1e-9

// ProjectionMode selects how world points are mapped into the image.
type ProjectionMode int

const (
	// ProjectionDistorted maps points into the camera frame, normalizes, applies the lens distortion
	// model and then the camera matrix.
	ProjectionDistorted ProjectionMode = iota
	// ProjectionManual forms P = K·[R|t] and applies it to homogeneous points, ignoring distortion.
	ProjectionManual
)

func (m ProjectionMode) String() string {
	switch m {
	case ProjectionDistorted:
		return "distorted"
	case ProjectionManual:
		return "manual"
	}
	return "unknown"
}

// ParseProjectionMode reads "manual" or "distorted". The empty string is "distorted".
func ParseProjectionMode(s string) (ProjectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "distorted":
		return ProjectionDistorted, nil
	case "manual":
		return ProjectionManual, nil
	}
	return ProjectionDistorted, errors.Errorf("unknown projection mode %q, expected \"manual\" or \"distorted\"", s)
}

// ProjectedPoint is the image of one world point. Depth is the camera frame depth; when it is not
// above MinProjectionDepth the point is not Valid and Pixel is left at zero.
type ProjectedPoint struct {
	Pixel r2.Point
	Depth float64
	Valid bool
}

// ProjectPoints projects board points into the image using the given pose and camera model. The
// result has one entry per input point, in order.
func ProjectPoints(
	mode ProjectionMode,
	points []r3.Vector,
	model *PinholeCameraModel,
	pose Extrinsics,
) ([]ProjectedPoint, error) {
	if model == nil {
		return nil, NewNoIntrinsicsError("camera model is nil")
	}
	if err := model.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return nil, err
	}
	switch mode {
	case ProjectionManual:
		return projectManual(points, model.PinholeCameraIntrinsics, pose)
	case ProjectionDistorted:
		return projectDistorted(points, model, pose), nil
	default:
		return nil, errors.Errorf("unsupported projection mode %d", int(mode))
	}
}

// projectManual builds the 3x4 projection matrix and divides every homogeneous result by its own
// third component.
func projectManual(points []r3.Vector, intrinsics *PinholeCameraIntrinsics, pose Extrinsics) ([]ProjectedPoint, error) {
	var projection mat.Dense
	projection.Mul(intrinsics.GetCameraMatrix(), pose.Matrix().Dense())
	if r, c := projection.Dims(); r != 3 || c != 4 {
		return nil, NewShapeMismatchError("projection matrix", 3, 4, r, c)
	}

	out := make([]ProjectedPoint, len(points))
	homogeneous := mat.NewVecDense(4, nil)
	var image mat.VecDense
	for i, pt := range points {
		homogeneous.SetVec(0, pt.X)
		homogeneous.SetVec(1, pt.Y)
		homogeneous.SetVec(2, pt.Z)
		homogeneous.SetVec(3, 1)
		image.MulVec(&projection, homogeneous)

		// K has [0 0 1] as its last row so the third component is the camera frame depth
		depth := image.AtVec(2)
		out[i].Depth = depth
		if depth <= MinProjectionDepth {
			continue
		}
		out[i].Pixel = r2.Point{X: image.AtVec(0) / depth, Y: image.AtVec(1) / depth}
		out[i].Valid = true
	}
	return out, nil
}

func projectDistorted(points []r3.Vector, model *PinholeCameraModel, pose Extrinsics) []ProjectedPoint {
	extrinsic := pose.Matrix()
	out := make([]ProjectedPoint, len(points))
	for i, pt := range points {
		cam := extrinsic.Apply(pt)
		out[i].Depth = cam.Z
		if cam.Z <= MinProjectionDepth {
			continue
		}
		x, y := cam.X/cam.Z, cam.Y/cam.Z
		if model.Distortion != nil {
			x, y = model.Distortion.Transform(x, y)
		}
		u, v, _ := model.PointToPixel(x, y, 1)
		out[i].Pixel = r2.Point{X: u, Y: v}
		out[i].Valid = true
	}
	return out
}
