package calibrate

import (
	"image"
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/spatialmath"
)

// Seed is the starting point handed to a Solver.
type Seed struct {
	CameraMatrix *mat.Dense
	Distortion   []float64
}

// DefaultSeed is the identity camera matrix with no distortion. Solvers that estimate their own
// starting point ignore it.
func DefaultSeed() Seed {
	k := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		k.Set(i, i, 1)
	}
	return Seed{CameraMatrix: k, Distortion: make([]float64, transform.BrownConradyParameterCount)}
}

// SeedFromIntrinsics seeds a solve with known intrinsics and no distortion.
func SeedFromIntrinsics(intrinsics *transform.PinholeCameraIntrinsics) (Seed, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return Seed{}, errors.Wrap(err, "invalid intrinsic guess")
	}
	return Seed{
		CameraMatrix: intrinsics.GetCameraMatrix(),
		Distortion:   make([]float64, transform.BrownConradyParameterCount),
	}, nil
}

// Solution is what a Solver returns: shared intrinsics, one pose per view in input order, and the
// RMS reprojection error in pixels.
type Solution struct {
	CameraMatrix       *mat.Dense
	Distortion         []float64
	RotationVectors    []r3.Vector
	TranslationVectors []r3.Vector
	ReprojectionError  float64
}

// A Solver fits camera intrinsics and per-view poses to point correspondences. world and image must
// be non-empty, of equal length, and index aligned.
type Solver interface {
	Solve(world [][]r3.Vector, image [][]r2.Point, size image.Point, seed Seed) (*Solution, error)
}

// LMSolverOptions select which parameters are refined.
type LMSolverOptions struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
	// RationalModel also fits k4, k5 and k6.
	RationalModel bool `json:"rational_model"`
	// ZeroTangentDist keeps p1 and p2 at zero.
	ZeroTangentDist bool `json:"zero_tangent_dist"`
	// FixPrincipalPoint keeps the principal point at its starting value.
	FixPrincipalPoint bool `json:"fix_principal_point"`
	// UseIntrinsicGuess starts from the seed instead of the closed form estimate.
	UseIntrinsicGuess bool `json:"use_intrinsic_guess"`
}

const (
	defaultMaxIterations = 100
	defaultTolerance     = 1e-12
	behindCameraPenalty  = 1e3
	maxDamping           = 1e16
)

// LMSolverOptionsFromAttributes decodes solver options from a free form attribute map, as found in
// the "solver" section of a config file.
func LMSolverOptionsFromAttributes(attrs map[string]interface{}) (LMSolverOptions, error) {
	var opts LMSolverOptions
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &opts,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return opts, errors.Wrap(err, "could not decode solver options")
	}
	if len(md.Unused) > 0 {
		return opts, errors.Errorf("unknown solver options %v", md.Unused)
	}
	return opts, nil
}

// LMSolver is a Levenberg-Marquardt bundle adjustment over intrinsics, distortion and poses, started
// from Zhang's closed form estimate. Calibration targets must be planar (Z = 0).
type LMSolver struct {
	opts LMSolverOptions
}

// NewLMSolver returns a solver. Zero options pick the defaults.
func NewLMSolver(opts LMSolverOptions) *LMSolver {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}
	return &LMSolver{opts: opts}
}

// the intrinsic block of the parameter vector: fx fy cx cy followed by OpenCV ordered distortion.
const (
	paramFx = iota
	paramFy
	paramCx
	paramCy
	paramK1
	paramK2
	paramP1
	paramP2
	paramK3
	paramK4
	paramK5
	paramK6
	intrinsicParams
	poseParams = 6
)

// Solve implements Solver.
func (s *LMSolver) Solve(world [][]r3.Vector, img [][]r2.Point, size image.Point, seed Seed) (*Solution, error) {
	if len(world) == 0 {
		return nil, ErrEmptyCorrespondenceSet
	}
	if len(world) != len(img) {
		return nil, errors.Errorf("got %d world point sets but %d image point sets", len(world), len(img))
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", size)
	}
	for i := range world {
		if len(world[i]) != len(img[i]) {
			return nil, errors.Wrapf(
				transform.NewShapeMismatchError("correspondence set", len(world[i]), 2, len(img[i]), 2),
				"view %d", i)
		}
		if len(world[i]) < 4 {
			return nil, errors.Errorf("view %d has %d points, need at least 4", i, len(world[i]))
		}
		for _, p := range world[i] {
			if math.Abs(p.Z) > 1e-9 {
				return nil, errors.Errorf("view %d: only planar targets with Z = 0 are supported", i)
			}
		}
	}

	intrinsics, err := s.initialIntrinsics(world, img, size, seed)
	if err != nil {
		return nil, err
	}
	params := make([]float64, intrinsicParams+poseParams*len(world))
	copy(params, intrinsics)
	for i := range world {
		pose, err := initialPose(world[i], img[i], intrinsics)
		if err != nil {
			return nil, errors.Wrapf(err, "could not estimate initial pose of view %d", i)
		}
		copy(params[intrinsicParams+poseParams*i:], []float64{
			pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z,
			pose.Translation.X, pose.Translation.Y, pose.Translation.Z,
		})
	}

	p := &problem{world: world, image: img, free: s.freeParams(len(world)), base: params}
	x := p.pack(params)
	x, err = s.minimize(p, x)
	if err != nil {
		return nil, err
	}
	params = p.unpack(x)

	residuals := make([]float64, p.residualCount())
	p.residuals(residuals, params)
	points := p.residualCount() / 2

	sol := &Solution{
		CameraMatrix: mat.NewDense(3, 3, []float64{
			params[paramFx], 0, params[paramCx],
			0, params[paramFy], params[paramCy],
			0, 0, 1,
		}),
		Distortion:        append([]float64(nil), params[paramK1:intrinsicParams]...),
		ReprojectionError: math.Sqrt(floats.Dot(residuals, residuals) / float64(points)),
	}
	for i := range world {
		v := params[intrinsicParams+poseParams*i:]
		sol.RotationVectors = append(sol.RotationVectors, r3.Vector{X: v[0], Y: v[1], Z: v[2]})
		sol.TranslationVectors = append(sol.TranslationVectors, r3.Vector{X: v[3], Y: v[4], Z: v[5]})
	}
	return sol, nil
}

func (s *LMSolver) freeParams(views int) []bool {
	free := make([]bool, intrinsicParams+poseParams*views)
	for i := range free {
		free[i] = true
	}
	if s.opts.FixPrincipalPoint {
		free[paramCx], free[paramCy] = false, false
	}
	if s.opts.ZeroTangentDist {
		free[paramP1], free[paramP2] = false, false
	}
	if !s.opts.RationalModel {
		free[paramK4], free[paramK5], free[paramK6] = false, false, false
	}
	return free
}

func (s *LMSolver) initialIntrinsics(world [][]r3.Vector, img [][]r2.Point, size image.Point, seed Seed) ([]float64, error) {
	out := make([]float64, intrinsicParams)
	if s.opts.UseIntrinsicGuess {
		if seed.CameraMatrix == nil {
			return nil, errors.New("intrinsic guess requested without a seed camera matrix")
		}
		if r, c := seed.CameraMatrix.Dims(); r != 3 || c != 3 {
			return nil, transform.NewShapeMismatchError("seed camera matrix", 3, 3, r, c)
		}
		if len(seed.Distortion) > transform.BrownConradyParameterCount {
			return nil, errors.Errorf("seed has %d distortion coefficients, max is %d",
				len(seed.Distortion), transform.BrownConradyParameterCount)
		}
		out[paramFx], out[paramFy] = seed.CameraMatrix.At(0, 0), seed.CameraMatrix.At(1, 1)
		out[paramCx], out[paramCy] = seed.CameraMatrix.At(0, 2), seed.CameraMatrix.At(1, 2)
		copy(out[paramK1:], seed.Distortion)
		if out[paramFx] <= 0 || out[paramFy] <= 0 {
			return nil, errors.New("seed camera matrix has non positive focal lengths")
		}
		return out, nil
	}

	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	fx, fy, err := focalFromHomographies(world, img, cx, cy)
	if err != nil {
		return nil, err
	}
	out[paramFx], out[paramFy], out[paramCx], out[paramCy] = fx, fy, cx, cy
	return out, nil
}

// focalFromHomographies estimates the focal lengths from the orthogonality of the board axes as seen
// through each view's homography, with the principal point held at (cx, cy).
func focalFromHomographies(world [][]r3.Vector, img [][]r2.Point, cx, cy float64) (float64, float64, error) {
	a := mat.NewDense(2*len(world), 2, nil)
	b := mat.NewVecDense(2*len(world), nil)
	for i := range world {
		hom, err := boardHomography(world[i], img[i])
		if err != nil {
			return 0, 0, errors.Wrapf(err, "view %d", i)
		}
		var h, v [3]float64
		for row := 0; row < 3; row++ {
			h[row], v[row] = hom.At(row, 0), hom.At(row, 1)
		}
		// move the principal point to the origin
		h[0], h[1] = h[0]-cx*h[2], h[1]-cy*h[2]
		v[0], v[1] = v[0]-cx*v[2], v[1]-cy*v[2]

		var d1, d2 [3]float64
		for j := 0; j < 3; j++ {
			d1[j], d2[j] = (h[j]+v[j])/2, (h[j]-v[j])/2
		}
		normalize := func(u *[3]float64) {
			n := math.Sqrt(u[0]*u[0] + u[1]*u[1] + u[2]*u[2])
			for j := range u {
				u[j] /= n
			}
		}
		normalize(&h)
		normalize(&v)
		normalize(&d1)
		normalize(&d2)

		a.Set(2*i, 0, h[0]*v[0])
		a.Set(2*i, 1, h[1]*v[1])
		b.SetVec(2*i, -h[2]*v[2])
		a.Set(2*i+1, 0, d1[0]*d2[0])
		a.Set(2*i+1, 1, d1[1]*d2[1])
		b.SetVec(2*i+1, -d1[2]*d2[2])
	}

	var f mat.VecDense
	if err := f.SolveVec(a, b); err != nil {
		return 0, 0, errors.Wrap(err, "could not estimate focal length")
	}
	fx, fy := math.Sqrt(math.Abs(1/f.AtVec(0))), math.Sqrt(math.Abs(1/f.AtVec(1)))
	if math.IsNaN(fx) || math.IsInf(fx, 0) || math.IsNaN(fy) || math.IsInf(fy, 0) {
		return 0, 0, errors.New("views are degenerate, focal length is unconstrained")
	}
	return fx, fy, nil
}

func boardHomography(world []r3.Vector, img []r2.Point) (*transform.Homography, error) {
	src := make([]r2.Point, len(world))
	for i, p := range world {
		src[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return transform.EstimateHomography(src, img)
}

// initialPose decomposes K⁻¹·H into a rotation and translation, projecting the rotation onto SO(3).
func initialPose(world []r3.Vector, img []r2.Point, intrinsics []float64) (transform.Extrinsics, error) {
	// undo the initial distortion guess so the homography is between undistorted points
	bc, err := transform.NewBrownConrady(intrinsics[paramK1:intrinsicParams])
	if err != nil {
		return transform.Extrinsics{}, err
	}
	model := &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Fx:  intrinsics[paramFx],
			Fy:  intrinsics[paramFy],
			Ppx: intrinsics[paramCx],
			Ppy: intrinsics[paramCy],
		},
		Distortion: bc,
	}
	normalized := make([]r2.Point, len(img))
	for i, p := range img {
		u, v := model.UndistortPixel(p.X, p.Y)
		x, y, _ := model.PixelToPoint(u, v, 1)
		normalized[i] = r2.Point{X: x, Y: y}
	}
	hom, err := boardHomography(world, normalized)
	if err != nil {
		return transform.Extrinsics{}, err
	}

	col := func(c int) r3.Vector { return r3.Vector{X: hom.At(0, c), Y: hom.At(1, c), Z: hom.At(2, c)} }
	h1, h2, h3 := col(0), col(1), col(2)
	lambda := 1 / h1.Norm()
	if h3.Z*lambda < 0 {
		lambda = -lambda
	}
	r1, r2 := h1.Mul(lambda), h2.Mul(lambda)
	r3v := r1.Cross(r2)
	t := h3.Mul(lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	var svd mat.SVD
	if !svd.Factorize(approx, mat.SVDFull) {
		return transform.Extrinsics{}, errors.New("could not orthogonalize rotation")
	}
	var u, v, rot mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		return transform.Extrinsics{}, errors.New("homography gives a reflection, not a rotation")
	}
	rm, err := spatialmath.NewRotationMatrix(rot.RawMatrix().Data)
	if err != nil {
		return transform.Extrinsics{}, err
	}
	return transform.Extrinsics{Rotation: spatialmath.RotationMatrixToVector(rm), Translation: t}, nil
}

// problem is the reprojection least squares problem over a subset of the full parameter vector.
type problem struct {
	world [][]r3.Vector
	image [][]r2.Point
	free  []bool
	base  []float64
}

func (p *problem) residualCount() int {
	n := 0
	for _, view := range p.world {
		n += 2 * len(view)
	}
	return n
}

func (p *problem) pack(params []float64) []float64 {
	var x []float64
	for i, v := range params {
		if p.free[i] {
			x = append(x, v)
		}
	}
	return x
}

func (p *problem) unpack(x []float64) []float64 {
	params := append([]float64(nil), p.base...)
	j := 0
	for i := range params {
		if p.free[i] {
			params[i] = x[j]
			j++
		}
	}
	return params
}

// residuals writes projected minus observed pixel coordinates, x then y for every point of every view.
func (p *problem) residuals(dst, params []float64) {
	bc := transform.BrownConrady{
		RadialK1:     params[paramK1],
		RadialK2:     params[paramK2],
		TangentialP1: params[paramP1],
		TangentialP2: params[paramP2],
		RadialK3:     params[paramK3],
		RadialK4:     params[paramK4],
		RadialK5:     params[paramK5],
		RadialK6:     params[paramK6],
	}
	fx, fy, cx, cy := params[paramFx], params[paramFy], params[paramCx], params[paramCy]
	k := 0
	for v, view := range p.world {
		pv := params[intrinsicParams+poseParams*v:]
		rot := spatialmath.RotationVectorToMatrix(r3.Vector{X: pv[0], Y: pv[1], Z: pv[2]})
		t := r3.Vector{X: pv[3], Y: pv[4], Z: pv[5]}
		for i, w := range view {
			cam := rot.Mul(w).Add(t)
			if cam.Z <= transform.MinProjectionDepth {
				dst[k], dst[k+1] = behindCameraPenalty, behindCameraPenalty
				k += 2
				continue
			}
			x, y := bc.Transform(cam.X/cam.Z, cam.Y/cam.Z)
			obs := p.image[v][i]
			dst[k] = x*fx + cx - obs.X
			dst[k+1] = y*fy + cy - obs.Y
			k += 2
		}
	}
}

func (p *problem) cost(x []float64, scratch []float64) float64 {
	p.residuals(scratch, p.unpack(x))
	return floats.Dot(scratch, scratch)
}

// minimize runs damped Gauss-Newton steps with Marquardt's diagonal scaling until the step or the
// relative decrease in cost falls below the tolerance.
func (s *LMSolver) minimize(p *problem, x []float64) ([]float64, error) {
	m, n := p.residualCount(), len(x)
	if m < n {
		return nil, errors.Errorf("%d residuals cannot constrain %d parameters, add more views", m, n)
	}
	settings := &fd.JacobianSettings{Formula: fd.Central, Concurrent: true}
	f := func(y, x []float64) { p.residuals(y, p.unpack(x)) }

	r := make([]float64, m)
	scratch := make([]float64, m)
	cost := p.cost(x, r)
	if math.IsNaN(cost) {
		return nil, errors.New("initial estimate gives a NaN reprojection error")
	}
	jac := mat.NewDense(m, n, nil)
	var jtj mat.SymDense
	var grad, step mat.VecDense
	damping := 1e-3

	for iter := 0; iter < s.opts.MaxIterations && cost > 0; iter++ {
		p.residuals(r, p.unpack(x))
		fd.Jacobian(jac, f, x, settings)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		improved := false
		for damping < maxDamping {
			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)*(1+damping)+1e-12)
			}
			var chol mat.Cholesky
			if !chol.Factorize(a) {
				damping *= 10
				continue
			}
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				damping *= 10
				continue
			}
			candidate := make([]float64, n)
			for i := range candidate {
				candidate[i] = x[i] - step.AtVec(i)
			}
			newCost := p.cost(candidate, scratch)
			if newCost < cost {
				decrease := (cost - newCost) / cost
				stepNorm := floats.Norm(step.RawVector().Data, 2)
				x, cost = candidate, newCost
				damping = math.Max(damping/10, 1e-12)
				improved = true
				if decrease < s.opts.Tolerance || stepNorm < s.opts.Tolerance*(floats.Norm(x, 2)+s.opts.Tolerance) {
					return x, nil
				}
				break
			}
			damping *= 10
		}
		if !improved {
			break
		}
	}
	return x, nil
}
