// Package rimage holds image loading, drawing and calibration overlay helpers.
package rimage

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	// register additional decoders with image.Decode.
	_ "github.com/lmittmann/ppm"
	_ "github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// IndexedImage is an image together with where it came from. Index is the position in the
// numbered sequence it was loaded from.
type IndexedImage struct {
	Index int
	Path  string
	Image image.Image
}

// ReadImage decodes the image at path. EXIF orientation is applied.
func ReadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read image %q", path)
	}
	return img, nil
}

// ReadImageRange loads the numbered sequence pattern%start .. pattern%end (inclusive). pattern is a
// printf template with a single integer verb, e.g. "images/img_%02d.png".
func ReadImageRange(pattern string, start, end int) ([]IndexedImage, error) {
	if end < start {
		return nil, errors.Errorf("image range is empty: start %d is after end %d", start, end)
	}
	images := make([]IndexedImage, 0, end-start+1)
	for i := start; i <= end; i++ {
		path := fmt.Sprintf(pattern, i)
		img, err := ReadImage(path)
		if err != nil {
			return nil, err
		}
		images = append(images, IndexedImage{Index: i, Path: path, Image: img})
	}
	return images, nil
}

// WriteImage encodes img to path, choosing the format from the file extension, and creates the
// parent directory if needed.
func WriteImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "could not create directory for %q", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "could not write image %q", path)
	}
	return nil
}
