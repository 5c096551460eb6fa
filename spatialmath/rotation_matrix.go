// Package spatialmath defines the rotation and pose math used by calibration.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// rotationVectorEpsilon is the angle below which a rotation is treated as the identity.
const rotationVectorEpsilon = 1e-12

// RotationMatrix is a 3x3 matrix in row major order.
// m[3*r + c] is the element in the r'th row and c'th column.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates the rotation matrix from a slice of 9 values in row major order.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	mat := [9]float64{}
	copy(mat[:], m)
	return &RotationMatrix{mat}, nil
}

// NewIdentityRotationMatrix returns the 3x3 identity.
func NewIdentityRotationMatrix() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// RotationVectorToMatrix converts a rotation vector (axis times angle, in radians) into a rotation
// matrix using the Rodrigues formula R = I cos(θ) + (1 - cos(θ)) u uᵀ + sin(θ) [u]×.
// The zero vector yields the identity.
func RotationVectorToMatrix(r r3.Vector) *RotationMatrix {
	theta := r.Norm()
	if theta == 0 {
		return NewIdentityRotationMatrix()
	}

	x, y, z := r.X/theta, r.Y/theta, r.Z/theta
	c := math.Cos(theta)
	s := math.Sin(theta)
	c1 := 1 - c

	return &RotationMatrix{[9]float64{
		c + x*x*c1, x*y*c1 - z*s, x*z*c1 + y*s,
		y*x*c1 + z*s, c + y*y*c1, y*z*c1 - x*s,
		z*x*c1 - y*s, z*y*c1 + x*s, c + z*z*c1,
	}}
}

// RotationMatrixToVector is the inverse of RotationVectorToMatrix. The returned vector has a norm
// in [0, π]. The input is assumed to be orthonormal.
func RotationMatrixToVector(rm *RotationMatrix) r3.Vector {
	m := rm.mat
	cosTheta := (m[0] + m[4] + m[8] - 1) / 2

	// the skew symmetric part is 2 sin(θ) u
	skew := r3.Vector{X: m[7] - m[5], Y: m[2] - m[6], Z: m[3] - m[1]}
	sinTheta := skew.Norm() / 2
	theta := math.Atan2(sinTheta, cosTheta)

	switch {
	case theta < rotationVectorEpsilon:
		// first order: R ≈ I + [r]×
		return skew.Mul(0.5)
	case math.Pi-theta < 1e-6:
		// near π the skew part vanishes; recover u from the symmetric part R = 2uuᵀ - I
		xx := math.Sqrt(math.Max(0, (m[0]+1)/2))
		yy := math.Sqrt(math.Max(0, (m[4]+1)/2))
		zz := math.Sqrt(math.Max(0, (m[8]+1)/2))
		var u r3.Vector
		switch {
		case xx >= yy && xx >= zz:
			u = r3.Vector{X: xx, Y: (m[1] + m[3]) / (4 * xx), Z: (m[2] + m[6]) / (4 * xx)}
		case yy >= zz:
			u = r3.Vector{X: (m[1] + m[3]) / (4 * yy), Y: yy, Z: (m[5] + m[7]) / (4 * yy)}
		default:
			u = r3.Vector{X: (m[2] + m[6]) / (4 * zz), Y: (m[5] + m[7]) / (4 * zz), Z: zz}
		}
		// keep the sign consistent with whatever skew part remains
		if u.Dot(skew) < 0 {
			u = u.Mul(-1)
		}
		return u.Normalize().Mul(theta)
	default:
		return skew.Mul(theta / (2 * sinTheta))
	}
}

// At returns the value in the rotation matrix at the row,col position.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the row of the rotation matrix as a r3.Vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns the column of the rotation matrix as a r3.Vector.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[col+3], Z: rm.mat[col+6]}
}

// Values returns a copy of the 9 entries in row major order.
func (rm *RotationMatrix) Values() []float64 {
	out := make([]float64, 9)
	copy(out, rm.mat[:])
	return out
}

// Mul returns the product of the rotation matrix with a column vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// MulByRotationMatrix returns the product rm * other.
func (rm *RotationMatrix) MulByRotationMatrix(other *RotationMatrix) *RotationMatrix {
	out := [9]float64{}
	for r := 0; r < 3; r++ {
		row := rm.Row(r)
		for c := 0; c < 3; c++ {
			out[3*r+c] = row.Dot(other.Col(c))
		}
	}
	return &RotationMatrix{out}
}

// Transpose returns the transposed matrix, which is also the inverse rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	m := rm.mat
	return &RotationMatrix{[9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}}
}

// Determinant of the 3x3 matrix. A proper rotation has determinant 1.
func (rm *RotationMatrix) Determinant() float64 {
	return rm.Row(0).Dot(rm.Row(1).Cross(rm.Row(2)))
}

func (rm *RotationMatrix) String() string {
	return fmt.Sprintf("[%.6g %.6g %.6g; %.6g %.6g %.6g; %.6g %.6g %.6g]",
		rm.mat[0], rm.mat[1], rm.mat[2], rm.mat[3], rm.mat[4], rm.mat[5], rm.mat[6], rm.mat[7], rm.mat[8])
}
