package calibrate

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/transform"
)

// CalibrationImage is an input image and its position in the numbered sequence it came from.
type CalibrationImage = rimage.IndexedImage

// Correspondences are the per-image point pairs handed to a Solver. WorldPoints, ImagePoints and
// ImageIndices are index aligned and ordered by image index. Skipped lists the indices of images
// where no pattern was found.
type Correspondences struct {
	WorldPoints  [][]r3.Vector
	ImagePoints  [][]r2.Point
	ImageIndices []int
	Skipped      []int
}

// Len is the number of images that contributed a correspondence set.
func (c *Correspondences) Len() int {
	return len(c.ImagePoints)
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	// Workers bounds the number of images processed at once. Zero means GOMAXPROCS.
	Workers int
	// DiagnosticsDir, when set, receives a corners_<index>.png per image showing what the detector saw.
	DiagnosticsDir string
}

// Collector runs a Detector over a batch of images and pairs the detected corners with the known
// board points.
type Collector struct {
	detector Detector
	logger   logging.Logger
	opts     CollectorOptions

	processed atomic.Int64
	found     atomic.Int64
}

// NewCollector returns a Collector. A nil detector selects NewDefaultDetector.
func NewCollector(detector Detector, logger logging.Logger, opts CollectorOptions) *Collector {
	if detector == nil {
		detector = NewDefaultDetector()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Collector{detector: detector, logger: logger, opts: opts}
}

// Progress returns how many images have been processed and how many of them showed the pattern,
// across every Collect call on this Collector.
func (c *Collector) Progress() (processed, found int64) {
	return c.processed.Load(), c.found.Load()
}

type detection struct {
	found   bool
	corners []r2.Point
}

// Collect detects the pattern in every image. Images without the pattern are left out entirely. Any
// other detector failure aborts the batch.
func (c *Collector) Collect(ctx context.Context, images []CalibrationImage, pattern *PatternGeometry) (*Correspondences, error) {
	if pattern == nil {
		return nil, errors.New("no calibration pattern given")
	}
	if err := pattern.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid calibration pattern")
	}
	if n := len(pattern.WorldPoints()); n != pattern.Corners() {
		return nil, transform.NewShapeMismatchError("world points", pattern.Corners(), 3, n, 3)
	}
	slots := make([]detection, len(images))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i := range images {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := c.detectOne(images[i], pattern)
			if err != nil {
				return err
			}
			slots[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Correspondences{}
	for i, d := range slots {
		if !d.found {
			out.Skipped = append(out.Skipped, images[i].Index)
			continue
		}
		out.WorldPoints = append(out.WorldPoints, pattern.WorldPoints())
		out.ImagePoints = append(out.ImagePoints, d.corners)
		out.ImageIndices = append(out.ImageIndices, images[i].Index)
	}
	c.logger.Infow("corner detection done",
		"images", len(images), "found", out.Len(), "skipped", len(out.Skipped))
	return out, nil
}

func (c *Collector) detectOne(img CalibrationImage, pattern *PatternGeometry) (detection, error) {
	defer c.processed.Inc()
	logger := c.logger.Sublogger(fmt.Sprintf("image_%d", img.Index))

	corners, err := c.detector.Detect(img.Image, pattern)
	switch {
	case errors.Is(err, ErrPatternNotFound):
		logger.Debugw("pattern not found", "path", img.Path)
		c.writeDiagnostics(logger, img, pattern, nil, false)
		return detection{}, nil
	case err != nil:
		return detection{}, errors.Wrapf(err, "corner detection failed on %q", img.Path)
	}
	if len(corners) != pattern.Corners() {
		return detection{}, errors.Wrapf(
			transform.NewShapeMismatchError("corner set", pattern.Corners(), 2, len(corners), 2),
			"detector returned a partial corner set for %q", img.Path)
	}

	c.found.Inc()
	logger.Debugw("pattern found", "path", img.Path, "corners", len(corners))
	c.writeDiagnostics(logger, img, pattern, corners, true)
	return detection{found: true, corners: corners}, nil
}

// writeDiagnostics failures are logged and otherwise ignored.
func (c *Collector) writeDiagnostics(
	logger logging.Logger,
	img CalibrationImage,
	pattern *PatternGeometry,
	corners []r2.Point,
	found bool,
) {
	if c.opts.DiagnosticsDir == "" {
		return
	}
	path := filepath.Join(c.opts.DiagnosticsDir, fmt.Sprintf("corners_%d.png", img.Index))
	if err := rimage.WriteImage(path, rimage.DrawCorners(img.Image, pattern.Width, corners, found)); err != nil {
		logger.Warnw("could not write corner diagnostics", "path", path, "error", err)
	}
}
