package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ExtrinsicMatrix is the 3x4 rigid transform [R | t] taking world coordinates into the camera
// frame, stored in row major order.
type ExtrinsicMatrix struct {
	mat [12]float64
}

// NewExtrinsicMatrix concatenates a rotation and a translation column into [R | t].
func NewExtrinsicMatrix(rot *RotationMatrix, t r3.Vector) *ExtrinsicMatrix {
	tc := [3]float64{t.X, t.Y, t.Z}
	var m [12]float64
	for r := 0; r < 3; r++ {
		m[4*r] = rot.At(r, 0)
		m[4*r+1] = rot.At(r, 1)
		m[4*r+2] = rot.At(r, 2)
		m[4*r+3] = tc[r]
	}
	return &ExtrinsicMatrix{m}
}

// NewExtrinsicMatrixFromVectors builds [R | t] from a rotation vector and a translation.
func NewExtrinsicMatrixFromVectors(rvec, tvec r3.Vector) *ExtrinsicMatrix {
	return NewExtrinsicMatrix(RotationVectorToMatrix(rvec), tvec)
}

// At returns the element at row, col. col 3 is the translation.
func (em *ExtrinsicMatrix) At(row, col int) float64 {
	return em.mat[4*row+col]
}

// Rotation returns the left 3x3 block.
func (em *ExtrinsicMatrix) Rotation() *RotationMatrix {
	m := em.mat
	return &RotationMatrix{[9]float64{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}}
}

// Translation returns the last column.
func (em *ExtrinsicMatrix) Translation() r3.Vector {
	return r3.Vector{X: em.mat[3], Y: em.mat[7], Z: em.mat[11]}
}

// Apply maps a world point into the camera frame: R·p + t.
func (em *ExtrinsicMatrix) Apply(p r3.Vector) r3.Vector {
	m := em.mat
	return r3.Vector{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// Values returns a copy of the 12 entries in row major order.
func (em *ExtrinsicMatrix) Values() []float64 {
	out := make([]float64, 12)
	copy(out, em.mat[:])
	return out
}

// Dense returns the matrix as a new 3x4 gonum matrix.
func (em *ExtrinsicMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 4, em.Values())
}
