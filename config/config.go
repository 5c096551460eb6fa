// Package config defines the calibration pipeline configuration and how it is read from disk.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/calibrate"
	"go.viam.com/camcalib/rimage/transform"
)

// Board describes the chessboard by its interior corners.
type Board struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	CellSize float64 `json:"cell_size"`
}

// Pattern builds the board geometry.
func (b Board) Pattern() (*calibrate.PatternGeometry, error) {
	return calibrate.NewPatternGeometry(b.Width, b.Height, b.CellSize)
}

// Config drives one calibration pipeline: which images to load, what board they show, how to solve
// and what to draw afterwards.
type Config struct {
	// ImagePattern is a printf template with one integer verb, e.g. "images/left%02d.jpg".
	ImagePattern string `json:"image_pattern"`
	IndexStart   int    `json:"index_start"`
	IndexEnd     int    `json:"index_end"`
	Board        Board  `json:"board"`

	// Projection is "distorted" (default) or "manual".
	Projection string `json:"projection,omitempty"`
	// AxisLength in board units. Defaults to three cells.
	AxisLength float64 `json:"axis_length,omitempty"`
	// CubeSize in board units. Defaults to two cells.
	CubeSize float64 `json:"cube_size,omitempty"`

	Workers        int    `json:"workers,omitempty"`
	DiagnosticsDir string `json:"diagnostics_dir,omitempty"`
	OutputDir      string `json:"output_dir,omitempty"`

	// Solver holds LMSolverOptions attributes.
	Solver map[string]interface{} `json:"solver,omitempty"`
	// IntrinsicsGuess is a pinhole intrinsics JSON file used to seed the solver. Needs
	// solver.use_intrinsic_guess.
	IntrinsicsGuess string `json:"intrinsics_guess,omitempty"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`

	projection    transform.ProjectionMode
	solverOptions calibrate.LMSolverOptions
}

const defaultOutputDir = "calibration_output"

// NewConfigValidationError wraps a validation failure with the path of the offending field.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewConfigValidationFieldRequiredError is returned when a required field is missing.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.ImagePattern == "" {
		return NewConfigValidationFieldRequiredError("config", "image_pattern")
	}
	if path := fmt.Sprintf(c.ImagePattern, c.IndexStart); strings.Contains(path, "%!") {
		return NewConfigValidationError("image_pattern",
			errors.Errorf("%q must hold exactly one integer verb such as %%d, got %q for index %d",
				c.ImagePattern, path, c.IndexStart))
	}
	if c.IndexEnd < c.IndexStart {
		return NewConfigValidationError("index_end",
			errors.Errorf("index_end %d is before index_start %d", c.IndexEnd, c.IndexStart))
	}
	if _, err := c.Board.Pattern(); err != nil {
		return NewConfigValidationError("board", err)
	}

	mode, err := transform.ParseProjectionMode(c.Projection)
	if err != nil {
		return NewConfigValidationError("projection", err)
	}
	c.projection = mode
	c.Projection = mode.String()

	if c.AxisLength < 0 {
		return NewConfigValidationError("axis_length", errors.New("must not be negative"))
	}
	if c.AxisLength == 0 {
		c.AxisLength = 3 * c.Board.CellSize
	}
	if c.CubeSize < 0 {
		return NewConfigValidationError("cube_size", errors.New("must not be negative"))
	}
	if c.CubeSize == 0 {
		c.CubeSize = 2 * c.Board.CellSize
	}
	if c.Workers < 0 {
		return NewConfigValidationError("workers", errors.New("must not be negative"))
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}

	opts, err := calibrate.LMSolverOptionsFromAttributes(c.Solver)
	if err != nil {
		return NewConfigValidationError("solver", err)
	}
	c.solverOptions = opts
	if c.IntrinsicsGuess != "" && !opts.UseIntrinsicGuess {
		return NewConfigValidationError("intrinsics_guess",
			errors.New("is only used when solver.use_intrinsic_guess is set"))
	}
	return nil
}

// ProjectionMode is the parsed projection. Only meaningful after Validate.
func (c *Config) ProjectionMode() transform.ProjectionMode {
	return c.projection
}

// SolverOptions are the decoded solver attributes. Only meaningful after Validate.
func (c *Config) SolverOptions() calibrate.LMSolverOptions {
	return c.solverOptions
}

// Read reads a config from the given file, expanding $VARIABLES from the environment.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config %q", filePath)
	}
	cfg, err := FromReader(filePath, bytes.NewReader(buf), logger)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromReader reads a config from r. originalPath is only used for messages and may be empty.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := &Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "could not parse config %s", describe(originalPath))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded",
		"path", originalPath,
		"images", fmt.Sprintf(cfg.ImagePattern, cfg.IndexStart),
		"count", cfg.IndexEnd-cfg.IndexStart+1,
		"board", fmt.Sprintf("%dx%d", cfg.Board.Width, cfg.Board.Height),
		"projection", cfg.Projection,
	)
	return cfg, nil
}

func describe(path string) string {
	if path == "" {
		return "from reader"
	}
	return fmt.Sprintf("%q", path)
}
