package rimage

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
)

const cornerRadius = 5.

// DrawCorners renders detected chessboard corners onto a copy of img. When found is true the corners
// are taken as a row major grid `patternWidth` wide: each row gets its own color and consecutive
// corners are joined, so a mis-ordered detection is easy to spot, and the grid is framed in white.
// Otherwise every corner is circled in red.
func DrawCorners(img image.Image, patternWidth int, corners []r2.Point, found bool) image.Image {
	dc := gg.NewContextForImage(img)
	if !found || patternWidth <= 0 {
		for _, c := range corners {
			DrawCircleEmpty(dc, c, cornerRadius, Red, 1)
		}
		return dc.Image()
	}

	DrawRectangleEmpty(dc, cornerBounds(corners).Inset(-2*cornerRadius), White, 1)
	rows := (len(corners) + patternWidth - 1) / patternWidth
	for i, c := range corners {
		rowColor := RowColor(i/patternWidth, rows)
		DrawCircleEmpty(dc, c, cornerRadius, rowColor, 1)
		if i > 0 {
			DrawLine(dc, corners[i-1], c, rowColor, 1)
		}
	}
	return dc.Image()
}

func cornerBounds(corners []r2.Point) image.Rectangle {
	if len(corners) == 0 {
		return image.Rectangle{}
	}
	r := r2.RectFromPoints(corners...)
	return image.Rect(int(math.Floor(r.X.Lo)), int(math.Floor(r.Y.Lo)), int(math.Ceil(r.X.Hi)), int(math.Ceil(r.Y.Hi)))
}
