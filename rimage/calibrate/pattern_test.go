package calibrate

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewPatternGeometry(t *testing.T) {
	pattern, err := NewPatternGeometry(9, 6, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pattern.Corners(), test.ShouldEqual, 54)

	world := pattern.WorldPoints()
	test.That(t, world, test.ShouldHaveLength, 54)
	test.That(t, world[0], test.ShouldResemble, r3.Vector{})
	test.That(t, world[8], test.ShouldResemble, r3.Vector{X: 4})
	test.That(t, world[9], test.ShouldResemble, r3.Vector{Y: 0.5})
	test.That(t, world[53], test.ShouldResemble, r3.Vector{X: 4, Y: 2.5})

	for _, tc := range []struct {
		name          string
		width, height int
		cellSize      float64
	}{
		{"narrow", 1, 6, 1},
		{"short", 9, 1, 1},
		{"zero cell", 9, 6, 0},
		{"negative cell", 9, 6, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPatternGeometry(tc.width, tc.height, tc.cellSize)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestPatternGeometryLiteral(t *testing.T) {
	pattern := &PatternGeometry{Width: 3, Height: 2, CellSize: 2}
	test.That(t, pattern.Validate(), test.ShouldBeNil)
	world := pattern.WorldPoints()
	test.That(t, world, test.ShouldHaveLength, pattern.Corners())
	test.That(t, world[4], test.ShouldResemble, r3.Vector{X: 2, Y: 2})

	world[0].X = 100
	test.That(t, pattern.WorldPoints()[0].X, test.ShouldEqual, 0)

	test.That(t, (&PatternGeometry{}).Validate(), test.ShouldNotBeNil)
	test.That(t, (&PatternGeometry{}).WorldPoints(), test.ShouldBeEmpty)
	test.That(t, (&PatternGeometry{Width: -2, Height: 3}).WorldPoints(), test.ShouldBeEmpty)
}
