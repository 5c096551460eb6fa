package rimage

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Named colors used by the overlays.
var (
	Red    = color.NRGBA{R: 255, A: 255}
	Green  = color.NRGBA{G: 255, A: 255}
	Blue   = color.NRGBA{B: 255, A: 255}
	Yellow = color.NRGBA{R: 255, G: 255, A: 255}
	Cyan   = color.NRGBA{G: 255, B: 255, A: 255}
	White  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// RowColor returns a distinct, fully saturated color for row `row` out of `rows`, walking the hue
// circle so adjacent rows of a detected grid are easy to tell apart.
func RowColor(row, rows int) color.NRGBA {
	if rows <= 0 {
		rows = 1
	}
	// stop short of 360 so the first and last rows differ
	hue := 300 * float64(row%rows) / float64(rows)
	r, g, b := colorful.Hsv(hue, 1, 1).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
