package calibrate

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestChessDetectorOnRenderedBoard(t *testing.T) {
	const (
		square = 20
		offset = 40
	)
	// 10x7 squares have 9x6 interior corners
	board := renderBoard(10, 7, square, offset)
	pattern, err := NewPatternGeometry(9, 6, 1)
	test.That(t, err, test.ShouldBeNil)

	corners, err := NewChessDetector(ChessDetectorOptions{}).Detect(board, pattern)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, corners, test.ShouldHaveLength, 54)
	for row := 0; row < 6; row++ {
		for col := 0; col < 9; col++ {
			c := corners[row*9+col]
			// the edge between pixel 59 and 60 sits at 59.5
			test.That(t, c.X, test.ShouldAlmostEqual, float64(offset+(col+1)*square)-0.5, 1)
			test.That(t, c.Y, test.ShouldAlmostEqual, float64(offset+(row+1)*square)-0.5, 1)
		}
	}
}

func TestChessDetectorQuarterTurn(t *testing.T) {
	// a 9x6 board turned on its side: the first row runs down the image
	board := imaging.Rotate90(renderBoard(10, 7, 20, 40))
	pattern, err := NewPatternGeometry(9, 6, 1)
	test.That(t, err, test.ShouldBeNil)

	corners, err := NewChessDetector(ChessDetectorOptions{}).Detect(board, pattern)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, corners, test.ShouldHaveLength, 54)
	// consecutive corners in a row are one square apart
	for row := 0; row < 6; row++ {
		for col := 1; col < 9; col++ {
			step := corners[row*9+col].Sub(corners[row*9+col-1])
			test.That(t, step.X, test.ShouldAlmostEqual, 0, 1)
			test.That(t, step.Y, test.ShouldAlmostEqual, 20, 1)
		}
	}
}

func TestChessDetectorNotFound(t *testing.T) {
	pattern, err := NewPatternGeometry(9, 6, 1)
	test.That(t, err, test.ShouldBeNil)
	detector := NewChessDetector(ChessDetectorOptions{})

	blank := image.NewGray(image.Rect(0, 0, 200, 150))
	for i := range blank.Pix {
		blank.Pix[i] = 128
	}
	_, err = detector.Detect(blank, pattern)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)

	// a board with fewer corners than asked for
	small := renderBoard(4, 4, 20, 40)
	_, err = detector.Detect(small, pattern)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)

	noise := image.NewGray(image.Rect(0, 0, 200, 150))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < 150; y++ {
		for x := 0; x < 200; x++ {
			noise.SetGray(x, y, color.Gray{Y: uint8(rng.Intn(256))})
		}
	}
	_, err = detector.Detect(noise, pattern)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)
}

func TestTopNCorners(t *testing.T) {
	list := []Corner{
		{X: 10, Y: 10, R: 5},
		{X: 11, Y: 10, R: 9},
		{X: 30, Y: 30, R: 7},
		{X: 50, Y: 50, R: 1},
	}
	got := topNCorners(list, 3, 5)
	test.That(t, got, test.ShouldResemble, []Corner{
		{X: 11, Y: 10, R: 9},
		{X: 30, Y: 30, R: 7},
		{X: 50, Y: 50, R: 1},
	})
	test.That(t, topNCorners(list, 1, 5), test.ShouldHaveLength, 1)
}

func TestNewPatternGeometryBasic(t *testing.T) {
	pattern, err := NewPatternGeometry(3, 2, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pattern.Corners(), test.ShouldEqual, 6)
	pts := pattern.WorldPoints()
	test.That(t, pts, test.ShouldHaveLength, 6)
	test.That(t, pts[1].X, test.ShouldEqual, 0.5)
	test.That(t, pts[3].Y, test.ShouldEqual, 0.5)
	test.That(t, pts[5].X, test.ShouldEqual, 1)
	pts[0].X = 7
	test.That(t, pattern.WorldPoints()[0].X, test.ShouldEqual, 0)

	_, err = NewPatternGeometry(1, 5, 1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPatternGeometry(5, 5, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
