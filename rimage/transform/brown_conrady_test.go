package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, -0.2, 0.003, 0.004, 0.05})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0.05)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.003)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.2, 0.003, 0.004, 0.05, 0, 0, 0})
	test.That(t, bc.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	_, err = NewBrownConrady(make([]float64, 9))
	test.That(t, err, test.ShouldBeError, "list of parameters too long, expected max 8, got 9")

	empty, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.IsZero(), test.ShouldBeTrue)
	x, y := empty.Transform(0.25, -0.5)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.5)

	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters()[0], test.ShouldEqual, 0.1)
	_, err = NewDistorter("fisheye", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBrownConradyRational(t *testing.T) {
	plain := &BrownConrady{RadialK1: 0.1}
	rational := &BrownConrady{RadialK1: 0.1, RadialK4: 0.1}

	// equal numerator and denominator terms cancel
	x, y := rational.Transform(0.4, 0.3)
	test.That(t, x, test.ShouldAlmostEqual, 0.4, 1e-15)
	test.That(t, y, test.ShouldAlmostEqual, 0.3, 1e-15)

	x, y = plain.Transform(0.4, 0.3)
	test.That(t, x, test.ShouldAlmostEqual, 0.4*1.025, 1e-15)
	test.That(t, y, test.ShouldAlmostEqual, 0.3*1.025, 1e-15)
}

func TestBrownConradyUndistort(t *testing.T) {
	bc, err := NewBrownConrady([]float64{-0.28, 0.07, 0.0008, -0.0012, 0.01, 0.02, -0.01, 0.005})
	test.That(t, err, test.ShouldBeNil)

	for _, pt := range []r2.Point{{X: 0, Y: 0}, {X: 0.1, Y: -0.2}, {X: -0.35, Y: 0.25}, {X: 0.4, Y: 0.3}} {
		xd, yd := bc.Transform(pt.X, pt.Y)
		xu, yu := bc.Undistort(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, pt.X, 1e-9)
		test.That(t, yu, test.ShouldAlmostEqual, pt.Y, 1e-9)
	}

	model := testModel(t, bc.Parameters())
	u, v := model.DistortionMap()(100, 80)
	uu, vv := model.UndistortPixel(u, v)
	test.That(t, uu, test.ShouldAlmostEqual, 100, 1e-6)
	test.That(t, vv, test.ShouldAlmostEqual, 80, 1e-6)
}
