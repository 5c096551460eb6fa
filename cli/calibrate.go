package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/camcalib/config"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/calibrate"
	"go.viam.com/camcalib/rimage/transform"
)

const (
	calibrationFileName = "calibration.json"
	errorPlotFileName   = "reprojection_errors.png"
	overlayDirName      = "overlays"
	undistortDirName    = "undistorted"
)

// CalibrateAction runs the full pipeline described by the config file: load the images, collect
// corners, solve, then write the calibration file, the error plot and the overlays.
func CalibrateAction(c *cli.Context) error {
	logger, closeLog := loggerFromContext(c)
	defer closeLog()
	cfg, err := config.Read(c.String(configFlag), logger)
	if err != nil {
		return err
	}
	pattern, err := cfg.Board.Pattern()
	if err != nil {
		return err
	}
	images, err := rimage.ReadImageRange(cfg.ImagePattern, cfg.IndexStart, cfg.IndexEnd)
	if err != nil {
		return err
	}

	opts := calibrate.Options{
		Solver: calibrate.NewLMSolver(cfg.SolverOptions()),
		Collector: calibrate.CollectorOptions{
			Workers:        cfg.Workers,
			DiagnosticsDir: cfg.DiagnosticsDir,
		},
	}
	if cfg.IntrinsicsGuess != "" {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(cfg.IntrinsicsGuess)
		if err != nil {
			return errors.Wrapf(err, "could not read intrinsics guess %q", cfg.IntrinsicsGuess)
		}
		seed, err := calibrate.SeedFromIntrinsics(intrinsics)
		if err != nil {
			return err
		}
		opts.Seed = &seed
	}
	calibrator := calibrate.NewCalibrator(logger, opts)
	progress := startDetectionProgress(c.App.ErrWriter, !color.NoColor && !c.Bool(debugFlag),
		len(images), calibrator.Progress, clock.New(), defaultSpinnerFactory)
	res, err := calibrator.Calibrate(c.Context, images, pattern)
	progress.finish(err)
	if err != nil {
		return errors.Wrap(err, "calibration failed")
	}

	out := c.App.Writer
	calibPath := filepath.Join(cfg.OutputDir, calibrationFileName)
	if err := calibrate.WriteCalibrationFile(calibPath, res); err != nil {
		return err
	}
	if err := res.SaveErrorPlot(filepath.Join(cfg.OutputDir, errorPlotFileName)); err != nil {
		return err
	}

	printResult(out, res)
	if len(res.PerViewErrors) > 1 {
		printf(out, "\nPer view error histogram:")
		if err := res.WriteErrorHistogram(out); err != nil {
			return err
		}
	}
	if len(res.Skipped) > 0 {
		warningf(c.App.ErrWriter, "no chessboard found in images %s", joinInts(res.Skipped))
	}

	if !c.Bool(noOverlaysFlag) {
		byIndex := make(map[int]rimage.IndexedImage, len(images))
		for _, img := range images {
			byIndex[img.Index] = img
		}
		if err := writeOverlays(logger, cfg, res.Model, byIndex, res.ImageIndices, res.Extrinsics, c.Bool(labelsFlag)); err != nil {
			return err
		}
	}
	successf(out, "Wrote calibration to %s", calibPath)
	return nil
}

// OverlayAction redraws the overlays from a calibration file without solving again.
func OverlayAction(c *cli.Context) error {
	logger, closeLog := loggerFromContext(c)
	defer closeLog()
	cfg, model, calib, err := loadCalibration(c, logger)
	if err != nil {
		return err
	}
	indices, poses := calib.Poses()
	images, err := readIndexed(cfg, indices)
	if err != nil {
		return err
	}
	if err := writeOverlays(logger, cfg, model, images, indices, poses, c.Bool(labelsFlag)); err != nil {
		return err
	}
	successf(c.App.Writer, "Wrote %d overlays to %s", 2*len(indices), filepath.Join(cfg.OutputDir, overlayDirName))
	return nil
}

// UndistortAction writes an undistorted copy of every configured image.
func UndistortAction(c *cli.Context) error {
	logger, closeLog := loggerFromContext(c)
	defer closeLog()
	cfg, model, _, err := loadCalibration(c, logger)
	if err != nil {
		return err
	}
	images, err := rimage.ReadImageRange(cfg.ImagePattern, cfg.IndexStart, cfg.IndexEnd)
	if err != nil {
		return err
	}

	dir := filepath.Join(cfg.OutputDir, undistortDirName)
	var errs error
	for _, img := range images {
		if c.Context.Err() != nil {
			return c.Context.Err()
		}
		undistorted, err := model.UndistortImage(img.Image)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "could not undistort %q", img.Path))
			continue
		}
		path := filepath.Join(dir, filepath.Base(img.Path))
		errs = multierr.Append(errs, rimage.WriteImage(path, undistorted))
		logger.Debugw("undistorted", "index", img.Index, "path", path)
	}
	if errs != nil {
		return errs
	}
	successf(c.App.Writer, "Wrote %d undistorted images to %s", len(images), dir)
	return nil
}

func loadCalibration(
	c *cli.Context,
	logger logging.Logger,
) (*config.Config, *transform.PinholeCameraModel, *calibrate.CalibrationFile, error) {
	cfg, err := config.Read(c.String(configFlag), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	path := c.String(calibrationFlag)
	if path == "" {
		path = filepath.Join(cfg.OutputDir, calibrationFileName)
	}
	calib, err := calibrate.ReadCalibrationFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	model, err := calib.Model()
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "invalid calibration file %q", path)
	}
	return cfg, model, calib, nil
}

// readIndexed loads only the images a calibration has poses for.
func readIndexed(cfg *config.Config, indices []int) (map[int]rimage.IndexedImage, error) {
	images := make(map[int]rimage.IndexedImage, len(indices))
	for _, idx := range indices {
		if idx < cfg.IndexStart || idx > cfg.IndexEnd {
			return nil, errors.Errorf("calibration has a pose for image %d outside the configured range [%d, %d]",
				idx, cfg.IndexStart, cfg.IndexEnd)
		}
		path := fmt.Sprintf(cfg.ImagePattern, idx)
		img, err := rimage.ReadImage(path)
		if err != nil {
			return nil, err
		}
		images[idx] = rimage.IndexedImage{Index: idx, Path: path, Image: img}
	}
	return images, nil
}

// writeOverlays draws the axes and the cube for every pose into <output>/overlays.
func writeOverlays(
	logger logging.Logger,
	cfg *config.Config,
	model *transform.PinholeCameraModel,
	images map[int]rimage.IndexedImage,
	indices []int,
	poses []transform.Extrinsics,
	labels bool,
) error {
	if len(indices) != len(poses) {
		return errors.Errorf("have %d image indices but %d poses", len(indices), len(poses))
	}
	opts := rimage.OverlayOptions{
		Mode:       cfg.ProjectionMode(),
		AxisLength: cfg.AxisLength,
		Labels:     labels,
		Logger:     logger,
	}
	dir := filepath.Join(cfg.OutputDir, overlayDirName)

	var errs error
	for i, idx := range indices {
		img, ok := images[idx]
		if !ok {
			errs = multierr.Append(errs, errors.Errorf("no image loaded for index %d", idx))
			continue
		}
		axes, err := rimage.DrawAxes(img.Image, model, poses[i], opts)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "image %d", idx))
			continue
		}
		errs = multierr.Append(errs, rimage.WriteImage(filepath.Join(dir, fmt.Sprintf("axes_%d.png", idx)), axes.Image))

		cube, err := rimage.DrawCube(img.Image, cfg.CubeSize, model, poses[i], opts)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "image %d", idx))
			continue
		}
		errs = multierr.Append(errs, rimage.WriteImage(filepath.Join(dir, fmt.Sprintf("cube_%d.png", idx)), cube.Image))
		logger.Debugw("overlays written", "index", idx, "axes_segments", len(axes.Segments), "cube_segments", len(cube.Segments))
	}
	return errs
}

// SchemaAction prints the JSON schema of the config file.
func SchemaAction(c *cli.Context) error {
	schema, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode config schema")
	}
	printf(c.App.Writer, "%s", schema)
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
