package rimage

import (
	"testing"

	"go.viam.com/test"
)

func TestRowColor(t *testing.T) {
	seen := map[[3]uint8]bool{}
	for row := 0; row < 6; row++ {
		c := RowColor(row, 6)
		test.That(t, c.A, test.ShouldEqual, 255)
		key := [3]uint8{c.R, c.G, c.B}
		test.That(t, seen[key], test.ShouldBeFalse)
		seen[key] = true
	}
	test.That(t, RowColor(0, 6), test.ShouldResemble, Red)
	test.That(t, RowColor(7, 6), test.ShouldResemble, RowColor(1, 6))
	test.That(t, RowColor(0, 0), test.ShouldResemble, Red)
}
