package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConradyParameterCount is the length of the OpenCV ordered coefficient vector
// [k1 k2 p1 p2 k3 k4 k5 k6].
const BrownConradyParameterCount = 8

// BrownConrady is the radial and tangential distortion model with the rational radial term:
//
//	radial = (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶)
//	x_d = x*radial + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y*radial + p1*(r² + 2*y²) + 2*p2*x*y
//
// With k4 = k5 = k6 = 0 this is the classic five parameter model.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	RadialK4     float64 `json:"rk4"`
	RadialK5     float64 `json:"rk5"`
	RadialK6     float64 `json:"rk6"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes OpenCV ordered coefficients [k1 k2 p1 p2 k3 k4 k5 k6]. Shorter inputs
// (4, 5 or 8 long in practice) are zero filled.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > BrownConradyParameterCount {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", BrownConradyParameterCount, len(inp))
	}
	padded := make([]float64, BrownConradyParameterCount)
	copy(padded, inp)
	bc := &BrownConrady{
		RadialK1:     padded[0],
		RadialK2:     padded[1],
		TangentialP1: padded[2],
		TangentialP2: padded[3],
		RadialK3:     padded[4],
		RadialK4:     padded[5],
		RadialK5:     padded[6],
		RadialK6:     padded[7],
	}
	if err := bc.CheckValid(); err != nil {
		return nil, err
	}
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady parameters must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in OpenCV order [k1 k2 p1 p2 k3 k4 k5 k6].
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return make([]float64, BrownConradyParameterCount)
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RadialK4, bc.RadialK5, bc.RadialK6,
	}
}

// IsZero is true when the model leaves every point where it is.
func (bc *BrownConrady) IsZero() bool {
	return bc == nil || *bc == BrownConrady{}
}

// Transform distorts a point in normalized image coordinates.
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6) /
		(1 + bc.RadialK4*r2 + bc.RadialK5*r4 + bc.RadialK6*r6)
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + bc.TangentialP1*(r2+2*y*y) + 2*bc.TangentialP2*x*y
	return xd, yd
}
