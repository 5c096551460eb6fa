package calibrate

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"

	"go.viam.com/camcalib/rimage/transform"
)

const (
	chessRingRadius   = 5.
	chessRingSamples  = 16
	defaultBlurSigma  = 0.8
	defaultThreshold  = 0.1
	defaultAssignTol  = 0.3
	minCornerResponse = 1e-6
)

// Corner refers to a point on an image with a corner value=R (ChESS response).
type Corner struct {
	X float64
	Y float64
	R float64 // Cornerness
}

// Point returns the corner location.
func (c Corner) Point() r2.Point {
	return r2.Point{X: c.X, Y: c.Y}
}

// SortCornerListByR sorts corners such that the highest R value (most corner-y) is first and the
// lowest R value is last. Ties keep their input order.
func SortCornerListByR(list []Corner) []Corner {
	sort.SliceStable(list, func(i, j int) bool { return list[i].R > list[j].R })
	return list
}

// ChessDetectorOptions tunes the ChESS detector. Zero values pick the defaults.
type ChessDetectorOptions struct {
	// BlurSigma is the Gaussian blur applied before computing the response.
	BlurSigma float64
	// Threshold is the fraction of the strongest response a candidate needs to be kept.
	Threshold float64
	// AssignTolerance is the allowed distance between a predicted grid position and its detected
	// corner, as a fraction of the local grid spacing.
	AssignTolerance float64
}

// ChessDetector finds X-junctions with the ChESS response (a 16 sample ring around each pixel),
// keeps the strongest Width*Height of them and orders them into the board grid via a homography
// fitted to the four outermost corners.
type ChessDetector struct {
	opts ChessDetectorOptions
}

// NewChessDetector returns a detector with the given options.
func NewChessDetector(opts ChessDetectorOptions) *ChessDetector {
	if opts.BlurSigma <= 0 {
		opts.BlurSigma = defaultBlurSigma
	}
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	if opts.AssignTolerance <= 0 {
		opts.AssignTolerance = defaultAssignTol
	}
	return &ChessDetector{opts: opts}
}

// Detect implements Detector.
func (d *ChessDetector) Detect(img image.Image, pattern *PatternGeometry) ([]r2.Point, error) {
	gray := newGrayField(imaging.Blur(imaging.Grayscale(img), d.opts.BlurSigma))
	response := gray.chessResponse()

	candidates := response.localMaxima(d.opts.Threshold)
	n := pattern.Corners()
	if len(candidates) < n {
		return nil, ErrPatternNotFound
	}
	corners := topNCorners(candidates, n, chessRingRadius)
	if len(corners) < n {
		return nil, ErrPatternNotFound
	}
	for i := range corners {
		corners[i] = response.refine(corners[i])
	}
	if !plausibleSpread(corners) {
		return nil, ErrPatternNotFound
	}

	ordered, ok := orderGrid(corners, pattern, d.opts.AssignTolerance)
	if !ok {
		return nil, ErrPatternNotFound
	}
	return ordered, nil
}

// field is a dense float image in row major order.
type field struct {
	w, h int
	v    []float64
}

func newGrayField(img *image.NRGBA) *field {
	b := img.Bounds()
	f := &field{w: b.Dx(), h: b.Dy(), v: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < f.h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < f.w; x++ {
			// grayscale images carry the same value in every channel
			f.v[y*f.w+x] = float64(row[4*x])
		}
	}
	return f
}

func (f *field) at(x, y int) float64 {
	return f.v[y*f.w+x]
}

// bilinear samples the field at a sub pixel location. The caller keeps it in bounds.
func (f *field) bilinear(x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)
	x1, y1 := min(x0+1, f.w-1), min(y0+1, f.h-1)
	top := f.at(x0, y0)*(1-fx) + f.at(x1, y0)*fx
	bottom := f.at(x0, y1)*(1-fx) + f.at(x1, y1)*fx
	return top*(1-fy) + bottom*fy
}

var ringOffsets = func() [chessRingSamples]r2.Point {
	var out [chessRingSamples]r2.Point
	for i := range out {
		a := 2 * math.Pi * float64(i) / chessRingSamples
		out[i] = r2.Point{X: chessRingRadius * math.Cos(a), Y: chessRingRadius * math.Sin(a)}
	}
	return out
}()

// chessResponse computes R = SR - DR - 16·MR at every pixel at least one ring radius from the border.
// SR is large where opposite quadrants agree and neighbouring quadrants differ, DR penalises edges and
// MR penalises rings whose mean differs from the center.
func (f *field) chessResponse() *field {
	out := &field{w: f.w, h: f.h, v: make([]float64, len(f.v))}
	margin := int(math.Ceil(chessRingRadius)) + 1
	var ring [chessRingSamples]float64
	for y := margin; y < f.h-margin; y++ {
		for x := margin; x < f.w-margin; x++ {
			ringSum := 0.
			for i, o := range ringOffsets {
				ring[i] = f.bilinear(float64(x)+o.X, float64(y)+o.Y)
				ringSum += ring[i]
			}
			sr, dr := 0., 0.
			for i := 0; i < 4; i++ {
				sr += math.Abs(ring[i] + ring[i+8] - ring[i+4] - ring[i+12])
			}
			for i := 0; i < 8; i++ {
				dr += math.Abs(ring[i] - ring[i+8])
			}
			local := (f.at(x, y) + f.at(x-1, y) + f.at(x+1, y) + f.at(x, y-1) + f.at(x, y+1)) / 5
			mr := math.Abs(ringSum/chessRingSamples - local)
			out.v[y*f.w+x] = sr - dr - chessRingSamples*mr
		}
	}
	return out
}

// localMaxima returns 8-connected local maxima whose response is above threshold times the strongest
// response.
func (f *field) localMaxima(threshold float64) []Corner {
	maxR := 0.
	for _, r := range f.v {
		maxR = math.Max(maxR, r)
	}
	if maxR < minCornerResponse {
		return nil
	}
	cut := threshold * maxR

	var out []Corner
	for y := 1; y < f.h-1; y++ {
		for x := 1; x < f.w-1; x++ {
			r := f.at(x, y)
			if r <= cut {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if (dx != 0 || dy != 0) && f.at(x+dx, y+dy) > r {
						isMax = false
						break
					}
				}
			}
			if isMax {
				out = append(out, Corner{X: float64(x), Y: float64(y), R: r})
			}
		}
	}
	return out
}

// refine fits a parabola through the response on each axis to place the corner between pixels.
func (f *field) refine(c Corner) Corner {
	x, y := int(c.X), int(c.Y)
	offset := func(minus, center, plus float64) float64 {
		denom := minus - 2*center + plus
		if denom >= 0 {
			return 0
		}
		return math.Max(-0.5, math.Min(0.5, 0.5*(minus-plus)/denom))
	}
	dx := offset(f.at(x-1, y), f.at(x, y), f.at(x+1, y))
	dy := offset(f.at(x, y-1), f.at(x, y), f.at(x, y+1))
	return Corner{X: c.X + dx, Y: c.Y + dy, R: c.R}
}

// topNCorners returns up to n corners, strongest first, such that no two are within dist pixels of
// each other.
func topNCorners(list []Corner, n int, dist float64) []Corner {
	sorted := SortCornerListByR(list)
	out := make([]Corner, 0, n)
	for _, c := range sorted {
		if len(out) == n {
			break
		}
		tooClose := false
		for _, kept := range out {
			if math.Abs(c.X-kept.X) <= dist && math.Abs(c.Y-kept.Y) <= dist {
				tooClose = true
				break
			}
		}
		if !tooClose {
			out = append(out, c)
		}
	}
	return out
}

// plausibleSpread rejects candidate sets that collapse onto a line, which happens on textured
// images with no board in view.
func plausibleSpread(corners []Corner) bool {
	xs := make([]float64, len(corners))
	ys := make([]float64, len(corners))
	for i, c := range corners {
		xs[i], ys[i] = c.X, c.Y
	}
	sdX, err := stats.StandardDeviation(xs)
	if err != nil {
		return false
	}
	sdY, err := stats.StandardDeviation(ys)
	if err != nil {
		return false
	}
	return sdX > 1 && sdY > 1
}

// orderGrid assigns every corner to a grid cell. The four extreme corners are matched to the grid
// corners, a homography from grid to image predicts each cell and the nearest corner is taken. The
// board may appear rotated by a quarter turn, so both assignments are tried.
func orderGrid(corners []Corner, pattern *PatternGeometry, tol float64) ([]r2.Point, bool) {
	pts := make([]r2.Point, len(corners))
	for i, c := range corners {
		pts[i] = c.Point()
	}

	var tl, tr, br, bl r2.Point
	tl, tr, br, bl = pts[0], pts[0], pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.X-p.Y > tr.X-tr.Y {
			tr = p
		}
		if p.X-p.Y < bl.X-bl.Y {
			bl = p
		}
	}

	w, h := float64(pattern.Width-1), float64(pattern.Height-1)
	grid := []r2.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	for _, quad := range [][]r2.Point{
		{tl, tr, br, bl},
		// a quarter turn: the board's first row runs down the right side of the image
		{tr, br, bl, tl},
	} {
		hom, err := transform.EstimateHomography(grid, quad)
		if err != nil {
			continue
		}
		if ordered, ok := assignToGrid(pts, hom, pattern, tol); ok {
			return ordered, true
		}
	}
	return nil, false
}

func assignToGrid(pts []r2.Point, hom *transform.Homography, pattern *PatternGeometry, tol float64) ([]r2.Point, bool) {
	used := make([]bool, len(pts))
	out := make([]r2.Point, 0, pattern.Corners())
	for row := 0; row < pattern.Height; row++ {
		for col := 0; col < pattern.Width; col++ {
			cell := r2.Point{X: float64(col), Y: float64(row)}
			predicted := hom.Apply(cell)
			// local spacing to the nearest neighbouring cell
			neighbor := r2.Point{X: cell.X + 1, Y: cell.Y}
			if col == pattern.Width-1 {
				neighbor.X = cell.X - 1
			}
			spacing := hom.Apply(neighbor).Sub(predicted).Norm()
			vertical := r2.Point{X: cell.X, Y: cell.Y + 1}
			if row == pattern.Height-1 {
				vertical.Y = cell.Y - 1
			}
			spacing = math.Min(spacing, hom.Apply(vertical).Sub(predicted).Norm())

			best, bestDist := -1, math.Inf(1)
			for i, p := range pts {
				if used[i] {
					continue
				}
				if d := p.Sub(predicted).Norm(); d < bestDist {
					best, bestDist = i, d
				}
			}
			if best < 0 || !(bestDist <= tol*spacing) {
				return nil, false
			}
			used[best] = true
			out = append(out, pts[best])
		}
	}
	return out, true
}
