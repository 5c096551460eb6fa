//go:build !opencv

package calibrate

// NewDefaultDetector returns the pure Go ChESS detector. Build with the opencv tag to use OpenCV.
func NewDefaultDetector() Detector {
	return NewChessDetector(ChessDetectorOptions{})
}
