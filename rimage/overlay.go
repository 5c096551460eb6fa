package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

const (
	defaultLineWidth = 3.
	labelSize        = 18.
)

// OverlayOptions configures DrawAxes and DrawCube.
type OverlayOptions struct {
	// Mode picks the projection path used for the overlay points.
	Mode transform.ProjectionMode
	// AxisLength is the length of each drawn axis in board units. Zero means 1.
	AxisLength float64
	// LineWidth in pixels. Zero means 3.
	LineWidth float64
	// Labels draws the axis names next to the axis tips.
	Labels bool
	// Logger receives a debug line per skipped segment. May be nil.
	Logger logging.Logger
}

func (opts OverlayOptions) lineWidth() float64 {
	if opts.LineWidth <= 0 {
		return defaultLineWidth
	}
	return opts.LineWidth
}

// Segment is a line that was drawn on an overlay, in pixel coordinates.
type Segment struct {
	From  r2.Point
	To    r2.Point
	Color color.Color
	Label string
}

// Overlay is an annotated copy of a source image plus the segments that were drawn on it.
type Overlay struct {
	Image    image.Image
	Segments []Segment
}

// cubeEdges indexes the corners returned by cubeCorners: bottom face, top face, then verticals.
var cubeEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// cubeCorners returns the 8 corners of a cube resting on the board at the origin. The board faces
// the camera along -Z, so the top face sits at z = -dimension.
func cubeCorners(dimension float64) []r3.Vector {
	d := dimension
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: d, Y: 0, Z: 0}, {X: d, Y: d, Z: 0}, {X: 0, Y: d, Z: 0},
		{X: 0, Y: 0, Z: -d}, {X: d, Y: 0, Z: -d}, {X: d, Y: d, Z: -d}, {X: 0, Y: d, Z: -d},
	}
}

// DrawAxes projects the board origin and the tips of its X, Y and Z axes, and draws the three axes
// from the projected origin in red, green and blue. The source image is not modified.
func DrawAxes(
	img image.Image,
	model *transform.PinholeCameraModel,
	pose transform.Extrinsics,
	opts OverlayOptions,
) (*Overlay, error) {
	length := opts.AxisLength
	if length == 0 {
		length = 1
	}
	points := []r3.Vector{
		{},
		{X: length},
		{Y: length},
		{Z: length},
	}
	projected, err := transform.ProjectPoints(opts.Mode, points, model, pose)
	if err != nil {
		return nil, errors.Wrap(err, "could not project axes")
	}

	axes := []struct {
		tip   int
		color color.Color
		label string
	}{
		{1, Red, "X"},
		{2, Green, "Y"},
		{3, Blue, "Z"},
	}
	var segments []Segment
	for _, axis := range axes {
		segments = appendSegment(segments, opts.Logger, projected[0], projected[axis.tip], axis.color, axis.label)
	}
	return render(img, segments, opts), nil
}

// DrawCube projects a cube with edge `dimension` (board units) sitting on the board origin and
// draws its 12 edges. The source image is not modified.
func DrawCube(
	img image.Image,
	dimension float64,
	model *transform.PinholeCameraModel,
	pose transform.Extrinsics,
	opts OverlayOptions,
) (*Overlay, error) {
	if dimension <= 0 {
		return nil, errors.Errorf("cube dimension must be positive, got %v", dimension)
	}
	projected, err := transform.ProjectPoints(opts.Mode, cubeCorners(dimension), model, pose)
	if err != nil {
		return nil, errors.Wrap(err, "could not project cube")
	}

	var segments []Segment
	for i, edge := range cubeEdges {
		c := Yellow
		if i >= 8 {
			c = Cyan
		}
		segments = appendSegment(segments, opts.Logger, projected[edge[0]], projected[edge[1]], c, "")
	}
	return render(img, segments, opts), nil
}

func appendSegment(
	segments []Segment,
	logger logging.Logger,
	from, to transform.ProjectedPoint,
	c color.Color,
	label string,
) []Segment {
	if !from.Valid || !to.Valid {
		if logger != nil {
			logger.Debugw("skipping segment with an endpoint behind the camera",
				"label", label, "from_depth", from.Depth, "to_depth", to.Depth)
		}
		return segments
	}
	return append(segments, Segment{From: from.Pixel, To: to.Pixel, Color: c, Label: label})
}

func render(img image.Image, segments []Segment, opts OverlayOptions) *Overlay {
	dc := gg.NewContextForImage(img)
	for _, s := range segments {
		DrawLine(dc, s.From, s.To, s.Color, opts.lineWidth())
		if opts.Labels && s.Label != "" {
			DrawString(dc, s.Label, image.Point{X: int(s.To.X) + 4, Y: int(s.To.Y) - 4}, s.Color, labelSize)
		}
	}
	return &Overlay{Image: dc.Image(), Segments: segments}
}
