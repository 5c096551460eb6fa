package calibrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/spatialmath"
)

// Shape is a matrix size.
type Shape struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MatrixInfo is a row major matrix as stored in a calibration file.
type MatrixInfo struct {
	Shape Shape     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewMatrixInfo copies m.
func NewMatrixInfo(m mat.Matrix) MatrixInfo {
	r, c := m.Dims()
	info := MatrixInfo{Shape: Shape{Row: r, Col: c}, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			info.Data = append(info.Data, m.At(i, j))
		}
	}
	return info
}

// Dense checks the stored shape against the data and, if want is non zero, against want.
func (mi MatrixInfo) Dense(what string, want Shape) (*mat.Dense, error) {
	if len(mi.Data) != mi.Shape.Row*mi.Shape.Col || len(mi.Data) == 0 {
		return nil, errors.Wrapf(transform.ErrShapeMismatch, "%s: %d values do not fill a %dx%d matrix",
			what, len(mi.Data), mi.Shape.Row, mi.Shape.Col)
	}
	if want != (Shape{}) && mi.Shape != want {
		return nil, transform.NewShapeMismatchError(what, want.Row, want.Col, mi.Shape.Row, mi.Shape.Col)
	}
	return mat.NewDense(mi.Shape.Row, mi.Shape.Col, append([]float64(nil), mi.Data...)), nil
}

// IntrinsicsInfo is the camera section of a calibration file.
type IntrinsicsInfo struct {
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	CameraMatrix     MatrixInfo `json:"camera_matrix"`
	DistortionMatrix MatrixInfo `json:"distortion_matrix"`
}

// ExtrinsicsInfo is one view's pose: the 3x4 [R|t] matrix plus the vectors it was built from.
type ExtrinsicsInfo struct {
	Index             int               `json:"index"`
	Matrix            MatrixInfo        `json:"matrix"`
	Rotation          r3.Vector         `json:"rotation"`
	AxisAngle         *spatialmath.R4AA `json:"axis_angle"`
	Translation       r3.Vector         `json:"translation"`
	ReprojectionError float64           `json:"reprojection_error"`
}

// CalibrationFile is the on disk form of a Result. Extrinsics are keyed by image index.
type CalibrationFile struct {
	Intrinsics        IntrinsicsInfo            `json:"intrinsics"`
	Extrinsics        map[string]ExtrinsicsInfo `json:"extrinsics"`
	ReprojectionError float64                   `json:"reprojection_error"`
	Skipped           []int                     `json:"skipped,omitempty"`
}

// NewCalibrationFile converts a result for storage.
func NewCalibrationFile(res *Result) *CalibrationFile {
	f := &CalibrationFile{
		Intrinsics: IntrinsicsInfo{
			Width:            res.ImageSize.X,
			Height:           res.ImageSize.Y,
			CameraMatrix:     NewMatrixInfo(res.Model.GetCameraMatrix()),
			DistortionMatrix: NewMatrixInfo(mat.NewDense(1, transform.BrownConradyParameterCount, res.Model.DistortionCoefficients())),
		},
		Extrinsics:        make(map[string]ExtrinsicsInfo, len(res.Extrinsics)),
		ReprojectionError: res.ReprojectionError,
		Skipped:           res.Skipped,
	}
	for i, pose := range res.Extrinsics {
		info := ExtrinsicsInfo{
			Index:       res.ImageIndices[i],
			Matrix:      MatrixInfo{Shape: Shape{Row: 3, Col: 4}, Data: pose.Matrix().Values()},
			Rotation:    pose.Rotation,
			AxisAngle:   spatialmath.R3ToR4(pose.Rotation),
			Translation: pose.Translation,
		}
		if i < len(res.PerViewErrors) {
			info.ReprojectionError = res.PerViewErrors[i]
		}
		f.Extrinsics[fmt.Sprint(info.Index)] = info
	}
	return f
}

// Model rebuilds the camera model.
func (f *CalibrationFile) Model() (*transform.PinholeCameraModel, error) {
	k, err := f.Intrinsics.CameraMatrix.Dense("camera_matrix", Shape{Row: 3, Col: 3})
	if err != nil {
		return nil, err
	}
	d, err := f.Intrinsics.DistortionMatrix.Dense("distortion_matrix", Shape{})
	if err != nil {
		return nil, err
	}
	if r, c := d.Dims(); r != 1 && c != 1 {
		return nil, errors.Wrapf(transform.ErrShapeMismatch, "distortion_matrix: expected a vector, got %dx%d", r, c)
	}
	model, err := transform.NewPinholeCameraModel(f.Intrinsics.Width, f.Intrinsics.Height, k, f.Intrinsics.DistortionMatrix.Data)
	if err != nil {
		return nil, err
	}
	return model, model.CheckValid()
}

// Poses returns the stored poses ordered by image index.
func (f *CalibrationFile) Poses() ([]int, []transform.Extrinsics) {
	entries := lo.Values(f.Extrinsics)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return lo.Map(entries, func(e ExtrinsicsInfo, _ int) int { return e.Index }),
		lo.Map(entries, func(e ExtrinsicsInfo, _ int) transform.Extrinsics {
			return transform.Extrinsics{Rotation: e.Rotation, Translation: e.Translation}
		})
}

// WriteCalibrationFile stores res as indented JSON.
func WriteCalibrationFile(path string, res *Result) error {
	data, err := json.MarshalIndent(NewCalibrationFile(res), "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode calibration")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "could not create directory for %q", path)
	}
	//nolint:gosec
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "could not write calibration %q", path)
	}
	return nil
}

// ReadCalibrationFile loads a file written by WriteCalibrationFile.
func ReadCalibrationFile(path string) (*CalibrationFile, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read calibration %q", path)
	}
	f := &CalibrationFile{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.Wrapf(err, "could not parse calibration %q", path)
	}
	return f, nil
}
