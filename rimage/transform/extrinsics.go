package transform

import (
	"github.com/golang/geo/r3"

	"go.viam.com/camcalib/spatialmath"
)

// Extrinsics is the pose of a calibration board relative to the camera: a rotation vector (axis times
// angle, radians) and a translation, both taking board coordinates into the camera frame.
type Extrinsics struct {
	Rotation    r3.Vector `json:"rotation"`
	Translation r3.Vector `json:"translation"`
}

// RotationMatrix returns the 3x3 rotation for the pose.
func (e Extrinsics) RotationMatrix() *spatialmath.RotationMatrix {
	return spatialmath.RotationVectorToMatrix(e.Rotation)
}

// Matrix returns the 3x4 extrinsic matrix [R | t].
func (e Extrinsics) Matrix() *spatialmath.ExtrinsicMatrix {
	return spatialmath.NewExtrinsicMatrix(e.RotationMatrix(), e.Translation)
}
