// Package calibrate estimates camera intrinsics and per-view board poses from images of a planar
// chessboard.
package calibrate

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PatternGeometry is a chessboard described by its interior corner grid. Width corners run along a
// row (board X) and Height rows run down the board (board Y).
type PatternGeometry struct {
	Width    int
	Height   int
	CellSize float64
}

// NewPatternGeometry returns a validated board description.
func NewPatternGeometry(width, height int, cellSize float64) (*PatternGeometry, error) {
	pg := &PatternGeometry{Width: width, Height: height, CellSize: cellSize}
	if err := pg.Validate(); err != nil {
		return nil, err
	}
	return pg, nil
}

// Validate checks that the grid has at least 2x2 corners and a positive cell size.
func (pg *PatternGeometry) Validate() error {
	if pg.Width < 2 || pg.Height < 2 {
		return errors.Errorf("pattern needs at least 2x2 interior corners, got %dx%d", pg.Width, pg.Height)
	}
	if pg.CellSize <= 0 {
		return errors.Errorf("cell size must be positive, got %v", pg.CellSize)
	}
	return nil
}

// Corners is the number of interior corners.
func (pg *PatternGeometry) Corners() int {
	return pg.Width * pg.Height
}

// WorldPoints returns a fresh slice of the board corners in row major order: index row*Width+col is
// (col*CellSize, row*CellSize, 0). Detected corner sets use the same order.
func (pg *PatternGeometry) WorldPoints() []r3.Vector {
	if pg.Width <= 0 || pg.Height <= 0 {
		return nil
	}
	out := make([]r3.Vector, 0, pg.Corners())
	for row := 0; row < pg.Height; row++ {
		for col := 0; col < pg.Width; col++ {
			out = append(out, r3.Vector{
				X: float64(col) * pg.CellSize,
				Y: float64(row) * pg.CellSize,
			})
		}
	}
	return out
}
