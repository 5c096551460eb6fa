package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) mapping one plane onto another in
// homogeneous coordinates. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a homography from 9 values in row major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = vals[3*i+j]
		}
	}
	return &h, nil
}

// At returns the value at row, col.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a point through the homography, including the homogeneous divide.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// EstimateHomography solves for H with dst ~ H·src from at least 4 correspondences using the
// normalized direct linear transform. The result is scaled so H[2][2] is 1 when possible.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point sets have different lengths %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 point pairs to estimate a homography, got %d", len(src))
	}

	tSrc, nSrc := normalizePoints(src)
	tDst, nDst := normalizePoints(dst)

	rows := 2 * len(src)
	if rows < 9 {
		// pad with a zero row so the SVD has a full null space column
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := range nSrc {
		x, y := nSrc[i].X, nSrc[i].Y
		u, v := nDst[i].X, nDst[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize homography system")
	}
	var vt mat.Dense
	svd.VTo(&vt)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, vt.At(i, 8))
	}

	// H = Tdst⁻¹ · Hn · Tsrc
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, errors.Wrap(err, "degenerate destination points")
	}
	var tmp, full mat.Dense
	tmp.Mul(&tDstInv, hn)
	full.Mul(&tmp, tSrc)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-15 {
		scale = 1
	}
	vals := make([]float64, 9)
	for i := range vals {
		vals[i] = full.At(i/3, i%3) / scale
	}
	return NewHomography(vals)
}

// normalizePoints translates the centroid to the origin and scales the mean distance to √2.
func normalizePoints(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var centroid r2.Point
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))

	meanDist := 0.
	for _, p := range pts {
		meanDist += p.Sub(centroid).Norm()
	}
	meanDist /= float64(len(pts))
	s := 1.
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}

	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * centroid.X,
		0, s, -s * centroid.Y,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(centroid).Mul(s)
	}
	return t, out
}
