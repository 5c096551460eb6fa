package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRotationVectorToMatrixIdentity(t *testing.T) {
	rm := RotationVectorToMatrix(r3.Vector{})
	test.That(t, rm, test.ShouldResemble, NewIdentityRotationMatrix())
	test.That(t, rm.Values(), test.ShouldResemble, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func TestRotationVectorToMatrixQuarterTurn(t *testing.T) {
	rm := RotationVectorToMatrix(r3.Vector{Z: math.Pi / 2})
	x := rm.Mul(r3.Vector{X: 1})
	test.That(t, x.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, x.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, x.Z, test.ShouldAlmostEqual, 0, 1e-12)

	rm = RotationVectorToMatrix(r3.Vector{X: math.Pi / 2})
	y := rm.Mul(r3.Vector{Y: 1})
	test.That(t, y.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, y.Y, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, y.Z, test.ShouldAlmostEqual, 1, 1e-12)
}

var rotationVectors = []r3.Vector{
	{X: 0.1, Y: -0.2, Z: 0.3},
	{X: 1.2, Y: 0.4, Z: -0.7},
	{X: -2, Y: 0.5, Z: 1},
	{Y: 3},
	{X: 1e-9, Y: 2e-9},
}

func TestRotationMatrixIsProperRotation(t *testing.T) {
	for _, rvec := range rotationVectors {
		rm := RotationVectorToMatrix(rvec)
		test.That(t, rm.Determinant(), test.ShouldAlmostEqual, 1, 1e-9)

		product := rm.MulByRotationMatrix(rm.Transpose())
		identity := NewIdentityRotationMatrix()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, product.At(i, j), test.ShouldAlmostEqual, identity.At(i, j), 1e-9)
			}
		}
	}
}

func TestRotationVectorRoundTrip(t *testing.T) {
	for _, rvec := range rotationVectors {
		back := RotationMatrixToVector(RotationVectorToMatrix(rvec))
		test.That(t, back.X, test.ShouldAlmostEqual, rvec.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, rvec.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, rvec.Z, 1e-9)
	}

	// a half turn has two valid vectors; both rotate the same way
	half := r3.Vector{X: math.Pi / math.Sqrt2, Y: math.Pi / math.Sqrt2}
	back := RotationMatrixToVector(RotationVectorToMatrix(half))
	test.That(t, back.Norm(), test.ShouldAlmostEqual, math.Pi, 1e-9)
	test.That(t, math.Abs(back.Normalize().Dot(half.Normalize())), test.ShouldAlmostEqual, 1, 1e-9)
}

func TestRodriguesMatchesQuaternion(t *testing.T) {
	for _, rvec := range rotationVectors {
		rodrigues := RotationVectorToMatrix(rvec)
		viaQuat := R3ToR4(rvec).RotationMatrix()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, rodrigues.At(i, j), test.ShouldAlmostEqual, viaQuat.At(i, j), 1e-9)
			}
		}
	}
}

func TestR3ToR4Zero(t *testing.T) {
	test.That(t, R3ToR4(r3.Vector{}), test.ShouldResemble, NewR4AA())
	test.That(t, R3ToR4(r3.Vector{X: 1}), test.ShouldResemble, &R4AA{1, 1, 0, 0})
	back := R3ToR4(r3.Vector{X: 0.5, Z: 0.5}).ToR3()
	test.That(t, back.X, test.ShouldAlmostEqual, 0.5, 1e-12)
	test.That(t, back.Y, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, back.Z, test.ShouldAlmostEqual, 0.5, 1e-12)
}

func TestNewRotationMatrix(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0})
	test.That(t, err, test.ShouldBeError, "input slice has 6 elements, need exactly 9")

	rm, err := NewRotationMatrix([]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.Row(0), test.ShouldResemble, r3.Vector{X: 0, Y: -1, Z: 0})
	test.That(t, rm.Col(0), test.ShouldResemble, r3.Vector{X: 0, Y: 1, Z: 0})
	test.That(t, rm.At(1, 0), test.ShouldEqual, 1.)
}
