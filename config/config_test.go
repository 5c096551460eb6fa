package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/calibrate"
	"go.viam.com/camcalib/rimage/transform"
)

const sampleConfig = `{
	"image_pattern": "$IMAGE_DIR/left%02d.jpg",
	"index_start": 1,
	"index_end": 17,
	"board": {"width": 9, "height": 6, "cell_size": 0.022833},
	"projection": "manual",
	"solver": {"max_iterations": 40, "zero_tangent_dist": true}
}`

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("IMAGE_DIR", "/data/chess")
	path := filepath.Join(t.TempDir(), "calib.json")
	test.That(t, os.WriteFile(path, []byte(sampleConfig), 0o600), test.ShouldBeNil)

	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.ImagePattern, test.ShouldEqual, "/data/chess/left%02d.jpg")
	test.That(t, cfg.IndexStart, test.ShouldEqual, 1)
	test.That(t, cfg.IndexEnd, test.ShouldEqual, 17)
	test.That(t, cfg.Board, test.ShouldResemble, Board{Width: 9, Height: 6, CellSize: 0.022833})
	test.That(t, cfg.ProjectionMode(), test.ShouldEqual, transform.ProjectionManual)
	test.That(t, cfg.SolverOptions(), test.ShouldResemble, calibrate.LMSolverOptions{MaxIterations: 40, ZeroTangentDist: true})

	// defaults
	test.That(t, cfg.AxisLength, test.ShouldAlmostEqual, 3*0.022833)
	test.That(t, cfg.CubeSize, test.ShouldAlmostEqual, 2*0.022833)
	test.That(t, cfg.Workers, test.ShouldEqual, runtime.GOMAXPROCS(0))
	test.That(t, cfg.OutputDir, test.ShouldEqual, defaultOutputDir)

	pattern, err := cfg.Board.Pattern()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pattern.Corners(), test.ShouldEqual, 54)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaultProjection(t *testing.T) {
	cfg, err := FromReader("", strings.NewReader(`{
		"image_pattern": "img%d.png", "index_start": 0, "index_end": 0,
		"board": {"width": 2, "height": 2, "cell_size": 1}
	}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ProjectionMode(), test.ShouldEqual, transform.ProjectionDistorted)
	test.That(t, cfg.Projection, test.ShouldEqual, "distorted")
}

func TestValidateErrors(t *testing.T) {
	valid := func() Config {
		return Config{
			ImagePattern: "img%d.png",
			IndexStart:   1,
			IndexEnd:     3,
			Board:        Board{Width: 9, Height: 6, CellSize: 0.02},
		}
	}
	for _, tc := range []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{"missing pattern", func(c *Config) { c.ImagePattern = "" }, `"image_pattern" is required`},
		{"pattern without verb", func(c *Config) { c.ImagePattern = "img.png" }, "image_pattern"},
		{"pattern with string verb", func(c *Config) { c.ImagePattern = "img%s.png" }, "image_pattern"},
		{"pattern with two verbs", func(c *Config) { c.ImagePattern = "img%d_%d.png" }, "image_pattern"},
		{"reversed range", func(c *Config) { c.IndexEnd = 0 }, "index_end"},
		{"tiny board", func(c *Config) { c.Board.Width = 1 }, "board"},
		{"no cell size", func(c *Config) { c.Board.CellSize = 0 }, "board"},
		{"unknown projection", func(c *Config) { c.Projection = "opencv" }, "projection"},
		{"negative axis", func(c *Config) { c.AxisLength = -1 }, "axis_length"},
		{"negative cube", func(c *Config) { c.CubeSize = -1 }, "cube_size"},
		{"negative workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"unknown solver option", func(c *Config) { c.Solver = map[string]interface{}{"iterations": 3} }, "solver"},
		{"unused guess", func(c *Config) { c.IntrinsicsGuess = "guess.json" }, "intrinsics_guess"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(&cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}

	cfg := valid()
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	cfg = valid()
	cfg.ImagePattern = "left%02d.jpg"
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	cfg = valid()
	cfg.IntrinsicsGuess = "guess.json"
	cfg.Solver = map[string]interface{}{"use_intrinsic_guess": true}
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.SolverOptions().UseIntrinsicGuess, test.ShouldBeTrue)
}

func TestFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := FromReader("", strings.NewReader(`{"image_pattern": "a%d.png", "bord": {}}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bord")
}

func TestSchema(t *testing.T) {
	raw, err := json.Marshal(Schema())
	test.That(t, err, test.ShouldBeNil)
	for _, field := range []string{"image_pattern", "index_end", "board", "cell_size", "projection", "solver"} {
		test.That(t, string(raw), test.ShouldContainSubstring, `"`+field+`"`)
	}
	test.That(t, string(raw), test.ShouldNotContainSubstring, "ConfigFilePath")
}
