package cli

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/calibrate"
	"go.viam.com/camcalib/rimage/transform"
)

type workspace struct {
	dir        string
	configPath string
	outputDir  string
}

// setupWorkspace writes two plain images and a config pointing at them.
func setupWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	for i := 1; i <= 2; i++ {
		img := image.NewGray(image.Rect(0, 0, 320, 240))
		for p := range img.Pix {
			img.Pix[p] = 90
		}
		test.That(t, rimage.WriteImage(filepath.Join(dir, fmt.Sprintf("img_%d.png", i)), img), test.ShouldBeNil)
	}
	outputDir := filepath.Join(dir, "out")
	cfg := fmt.Sprintf(`{
		"image_pattern": %q,
		"index_start": 1,
		"index_end": 2,
		"board": {"width": 9, "height": 6, "cell_size": 0.025},
		"output_dir": %q
	}`, filepath.Join(dir, "img_%d.png"), outputDir)
	configPath := filepath.Join(dir, "calib.json")
	test.That(t, os.WriteFile(configPath, []byte(cfg), 0o600), test.ShouldBeNil)
	return workspace{dir: dir, configPath: configPath, outputDir: outputDir}
}

func writeCalibration(t *testing.T, path string) {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{500, 0, 160, 0, 500, 120, 0, 0, 1})
	model, err := transform.NewPinholeCameraModel(320, 240, k, []float64{-0.1, 0.01, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	res := &calibrate.Result{
		Model: model,
		Extrinsics: []transform.Extrinsics{
			{Translation: r3.Vector{X: -0.05, Y: -0.05, Z: 0.6}},
			{Rotation: r3.Vector{X: 0.2}, Translation: r3.Vector{X: -0.05, Y: -0.04, Z: 0.7}},
		},
		ImageIndices:      []int{1, 2},
		ReprojectionError: 0.2,
		PerViewErrors:     []float64{0.2, 0.2},
		ImageSize:         image.Pt(320, 240),
	}
	test.That(t, calibrate.WriteCalibrationFile(path, res), test.ShouldBeNil)
}

func runApp(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"camcalib"}, args...))
	return out.String(), errOut.String(), err
}

func TestOverlayAction(t *testing.T) {
	ws := setupWorkspace(t)
	writeCalibration(t, filepath.Join(ws.outputDir, calibrationFileName))

	out, _, err := runApp("overlay", "--config", ws.configPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Wrote 4 overlays")
	for _, name := range []string{"axes_1.png", "cube_1.png", "axes_2.png", "cube_2.png"} {
		img, err := rimage.ReadImage(filepath.Join(ws.outputDir, overlayDirName, name))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 320)
	}
}

func TestOverlayActionExplicitCalibration(t *testing.T) {
	ws := setupWorkspace(t)
	path := filepath.Join(ws.dir, "elsewhere.json")
	writeCalibration(t, path)

	_, _, err := runApp("overlay", "--config", ws.configPath, "--labels", "--calibration", path)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(ws.outputDir, overlayDirName, "axes_2.png"))
	test.That(t, err, test.ShouldBeNil)

	_, _, err = runApp("overlay", "--config", ws.configPath, "--calibration", filepath.Join(ws.dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUndistortAction(t *testing.T) {
	ws := setupWorkspace(t)
	writeCalibration(t, filepath.Join(ws.outputDir, calibrationFileName))

	out, _, err := runApp("--debug", "undistort", "--config", ws.configPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Wrote 2 undistorted images")
	img, err := rimage.ReadImage(filepath.Join(ws.outputDir, undistortDirName, "img_1.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 320, 240))
}

func TestCalibrateActionWithoutBoard(t *testing.T) {
	ws := setupWorkspace(t)
	_, _, err := runApp("calibrate", "--config", ws.configPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "calibration failed")
	_, err = os.Stat(filepath.Join(ws.outputDir, calibrationFileName))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestActionsRequireConfig(t *testing.T) {
	for _, cmd := range []string{"calibrate", "overlay", "undistort"} {
		_, _, err := runApp(cmd)
		test.That(t, err, test.ShouldNotBeNil)
	}
	ws := setupWorkspace(t)
	_, _, err := runApp("calibrate", "--config", filepath.Join(ws.dir, "nope.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestJoinInts(t *testing.T) {
	test.That(t, joinInts(nil), test.ShouldEqual, "")
	test.That(t, joinInts([]int{4, 11}), test.ShouldEqual, "4, 11")
}

func TestSchemaAction(t *testing.T) {
	out, _, err := runApp("schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "image_pattern")
}

func TestLogFile(t *testing.T) {
	ws := setupWorkspace(t)
	writeCalibration(t, filepath.Join(ws.outputDir, calibrationFileName))
	logPath := filepath.Join(ws.dir, "logs", "camcalib.log")

	_, _, err := runApp("--debug", "--log-file", logPath, "overlay", "--config", ws.configPath)
	test.That(t, err, test.ShouldBeNil)
	contents, err := os.ReadFile(logPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "overlays written")
}

func TestLogLevel(t *testing.T) {
	ws := setupWorkspace(t)
	writeCalibration(t, filepath.Join(ws.outputDir, calibrationFileName))

	debugLog := filepath.Join(ws.dir, "debug.log")
	_, _, err := runApp("--log-level", "debug", "--log-file", debugLog, "overlay", "--config", ws.configPath)
	test.That(t, err, test.ShouldBeNil)
	contents, err := os.ReadFile(debugLog)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "overlays written")

	warnLog := filepath.Join(ws.dir, "warn.log")
	_, _, err = runApp("--log-level", "warn", "--log-file", warnLog, "overlay", "--config", ws.configPath)
	test.That(t, err, test.ShouldBeNil)
	// lumberjack only creates the file on the first write
	contents, _ = os.ReadFile(warnLog)
	test.That(t, string(contents), test.ShouldNotContainSubstring, "overlays written")

	_, _, err = runApp("--log-level", "loud", "overlay", "--config", ws.configPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestCalibrateActionMissingGuess(t *testing.T) {
	ws := setupWorkspace(t)
	cfg := fmt.Sprintf(`{
		"image_pattern": %q,
		"index_start": 1,
		"index_end": 2,
		"board": {"width": 9, "height": 6, "cell_size": 0.025},
		"solver": {"use_intrinsic_guess": true},
		"intrinsics_guess": %q
	}`, filepath.Join(ws.dir, "img_%d.png"), filepath.Join(ws.dir, "guess.json"))
	test.That(t, os.WriteFile(ws.configPath, []byte(cfg), 0o600), test.ShouldBeNil)

	_, _, err := runApp("calibrate", "--config", ws.configPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "intrinsics guess")
}
