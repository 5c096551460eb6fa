package calibrate

import (
	"context"
	"image"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

// ErrEmptyCorrespondenceSet is returned when no image showed the pattern, so there is nothing to
// calibrate from.
var ErrEmptyCorrespondenceSet = errors.New("no image produced a correspondence set")

// Options configures a Calibrator. Zero values pick the defaults.
type Options struct {
	// Detector finds the board corners. Nil means NewDefaultDetector.
	Detector Detector
	// Solver fits the camera. Nil means an LMSolver with default options.
	Solver Solver
	// Collector controls parallelism and corner diagnostics.
	Collector CollectorOptions
	// Seed is handed to the solver. Nil means DefaultSeed.
	Seed *Seed
	// Clock times the run. Nil means the wall clock.
	Clock clock.Clock
}

// Result is the outcome of one calibration run. Extrinsics, ImageIndices and PerViewErrors are
// index aligned, one entry per image that showed the pattern, in image order.
type Result struct {
	Model             *transform.PinholeCameraModel
	Extrinsics        []transform.Extrinsics
	ImageIndices      []int
	Skipped           []int
	ReprojectionError float64
	PerViewErrors     []float64
	ImageSize         image.Point
}

// Calibrator runs corner collection followed by one solve.
type Calibrator struct {
	collector *Collector
	solver    Solver
	seed      Seed
	clock     clock.Clock
	logger    logging.Logger
}

// NewCalibrator returns a Calibrator.
func NewCalibrator(logger logging.Logger, opts Options) *Calibrator {
	solver := opts.Solver
	if solver == nil {
		solver = NewLMSolver(LMSolverOptions{})
	}
	seed := DefaultSeed()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Calibrator{
		collector: NewCollector(opts.Detector, logger.Sublogger("collector"), opts.Collector),
		solver:    solver,
		seed:      seed,
		clock:     clk,
		logger:    logger,
	}
}

// Progress reports how many images corner collection has processed and how many showed the pattern.
func (c *Calibrator) Progress() (processed, found int64) {
	return c.collector.Progress()
}

// Calibrate estimates the camera from every image that shows the pattern. All images must have the
// same size. The solve itself is not cancelable; ctx only stops corner collection.
func (c *Calibrator) Calibrate(ctx context.Context, images []CalibrationImage, pattern *PatternGeometry) (*Result, error) {
	start := c.clock.Now()
	size, err := commonSize(images)
	if err != nil {
		return nil, err
	}

	corr, err := c.collector.Collect(ctx, images, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "could not collect correspondences")
	}
	if corr.Len() == 0 {
		return nil, errors.Wrapf(ErrEmptyCorrespondenceSet, "none of %d images showed a %dx%d pattern",
			len(images), pattern.Width, pattern.Height)
	}
	collected := c.clock.Now()

	sol, err := c.solver.Solve(corr.WorldPoints, corr.ImagePoints, size, c.seed)
	if err != nil {
		return nil, errors.Wrap(err, "calibration solver failed")
	}
	if len(sol.RotationVectors) != corr.Len() || len(sol.TranslationVectors) != corr.Len() {
		return nil, errors.Errorf("solver returned %d rotations and %d translations for %d views",
			len(sol.RotationVectors), len(sol.TranslationVectors), corr.Len())
	}
	model, err := transform.NewPinholeCameraModel(size.X, size.Y, sol.CameraMatrix, sol.Distortion)
	if err != nil {
		return nil, errors.Wrap(err, "solver returned an invalid camera")
	}
	if err := model.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "solver returned an invalid camera")
	}

	res := &Result{
		Model:             model,
		ImageIndices:      corr.ImageIndices,
		Skipped:           corr.Skipped,
		ReprojectionError: sol.ReprojectionError,
		ImageSize:         size,
		Extrinsics: lo.Map(sol.RotationVectors, func(r r3.Vector, i int) transform.Extrinsics {
			return transform.Extrinsics{Rotation: r, Translation: sol.TranslationVectors[i]}
		}),
	}
	res.PerViewErrors, err = perViewErrors(model, res.Extrinsics, corr)
	if err != nil {
		return nil, err
	}

	c.logger.Infow("calibration done",
		"views", corr.Len(),
		"skipped", len(corr.Skipped),
		"rms_px", sol.ReprojectionError,
		"fx", model.Fx, "fy", model.Fy, "cx", model.Ppx, "cy", model.Ppy,
		"detect_time", collected.Sub(start),
		"solve_time", c.clock.Since(collected),
	)
	return res, nil
}

func commonSize(images []CalibrationImage) (image.Point, error) {
	if len(images) == 0 {
		return image.Point{}, errors.Wrap(ErrEmptyCorrespondenceSet, "no images given")
	}
	size := images[0].Image.Bounds().Size()
	for _, img := range images[1:] {
		if s := img.Image.Bounds().Size(); s != size {
			return image.Point{}, errors.Errorf("image %q is %v but %q is %v, all images must share one size",
				img.Path, s, images[0].Path, size)
		}
	}
	return size, nil
}

// perViewErrors is the RMS reprojection error of each view in pixels.
func perViewErrors(model *transform.PinholeCameraModel, poses []transform.Extrinsics, corr *Correspondences) ([]float64, error) {
	out := make([]float64, len(poses))
	for v, pose := range poses {
		projected, err := transform.ProjectPoints(transform.ProjectionDistorted, corr.WorldPoints[v], model, pose)
		if err != nil {
			return nil, err
		}
		sum := 0.
		for i, p := range projected {
			if !p.Valid {
				return nil, errors.Errorf("view %d: board point %d is behind the camera", corr.ImageIndices[v], i)
			}
			d := p.Pixel.Sub(corr.ImagePoints[v][i])
			sum += d.X*d.X + d.Y*d.Y
		}
		out[v] = math.Sqrt(sum / float64(len(projected)))
	}
	return out, nil
}
