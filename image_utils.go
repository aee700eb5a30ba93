package coco2yolo

import (
	"context"
	"image"
	"image/color"
	_ "image/jpeg" // Register decoders for image.DecodeConfig.
	_ "image/png"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// PadToSquare places img at the top-left corner of a black size x size canvas. The pixel
// coordinates of the original content do not change, so bounding boxes remain valid.
func PadToSquare(img image.Image, size int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() > size || b.Dy() > size {
		return nil, errors.Wrapf(ErrImageTooLarge, "%dx%d does not fit in %dx%d",
			b.Dx(), b.Dy(), size, size)
	}

	canvas := imaging.New(size, size, color.Black)
	return imaging.Paste(canvas, img, image.Pt(0, 0)), nil
}

// PadImageFile pads the image at path to size x size in place, keeping its encoding. Images that
// already have the target size are left untouched.
//
// Returns true if the file was rewritten.
func PadImageFile(fs afero.Fs, path string, size, jpegQuality int) (bool, error) {
	img, err := loadImage(fs, path)
	if err != nil {
		return false, errors.Wrapf(err, "cannot decode %q", path)
	}
	if b := img.Bounds(); b.Dx() == size && b.Dy() == size {
		return false, nil
	}

	padded, err := PadToSquare(img, size)
	if err != nil {
		return false, errors.Wrapf(err, "cannot pad %q", path)
	}
	if err := saveImage(fs, path, padded, jpegQuality); err != nil {
		return false, err
	}
	return true, nil
}

// PadImages pads all images in dir to size x size using up to numWorkers goroutines.
func PadImages(ctx context.Context, fs afero.Fs, dir string, size, jpegQuality, numWorkers int,
	newProgress ProgressFactory) (int, error) {

	files, err := imageFilesInDir(fs, dir)
	if err != nil {
		return 0, err
	}
	log.Printf("Padding %d images in %s to %dx%d", len(files), dir, size, size)

	progress := newProgress.start(len(files), "Padding images")
	padded := make(chan bool, len(files))
	err = runWorkers(ctx, numWorkers, len(files), func(_ context.Context, i int) error {
		changed, err := PadImageFile(fs, filepath.Join(dir, files[i]), size, jpegQuality)
		if err != nil {
			return err
		}
		padded <- changed
		_ = progress.Add(1)
		return nil
	})
	_ = progress.Finish()
	close(padded)

	count := 0
	for changed := range padded {
		if changed {
			count++
		}
	}
	if err != nil {
		return count, err
	}

	log.Printf("Padded %d images, %d already had the target size", count, len(files)-count)
	return count, nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(fs afero.Fs, path string) (config image.Config, format string, err error) {
	file, err := fs.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path.
func loadImage(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return imaging.Decode(f)
}

// saveImage atomically replaces path with img, encoded as PNG or JPEG depending on the file
// extension of path.
func saveImage(fs afero.Fs, path string, img image.Image, jpegQuality int) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return errors.Wrapf(err, "unsupported image format for %q", path)
	}

	return writeAtomic(fs, path, func(w io.Writer) error {
		return imaging.Encode(w, img, format, imaging.JPEGQuality(jpegQuality))
	})
}
