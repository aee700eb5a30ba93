package coco2yolo

// YOLO specific functionality.

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultCanonicalSize is the side length that images are padded to and labels are normalised by.
const DefaultCanonicalSize = 640

// CategoryRemap numbers the target categories densely from zero.
type CategoryRemap struct {
	ids   map[int64]int // COCO category id to YOLO class id.
	Names []string      // Category names, indexed by YOLO class id.
}

// NewCategoryRemap keeps the categories whose name is in targets, in the order of categories, and
// assigns them the class ids 0..k-1.
func NewCategoryRemap(categories []Category, targets []string) CategoryRemap {
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}

	remap := CategoryRemap{ids: make(map[int64]int, len(targets))}
	for _, c := range categories {
		if !wanted[c.Name] {
			continue
		}
		if _, dup := remap.ids[c.ID]; dup {
			continue
		}
		remap.ids[c.ID] = len(remap.Names)
		remap.Names = append(remap.Names, c.Name)
	}
	return remap
}

// ClassID returns the YOLO class id for the COCO category id.
func (r CategoryRemap) ClassID(categoryID int64) (int, bool) {
	id, ok := r.ids[categoryID]
	return id, ok
}

// Len is the number of remapped categories.
func (r CategoryRemap) Len() int {
	return len(r.Names)
}

// LabelRow is a YOLO bounding box in pixels, before normalisation.
type LabelRow struct {
	FileName   string
	ImageID    int64
	CategoryID int // Remapped.
	CenterX    float64
	CenterY    float64
	Width      float64
	Height     float64
}

// LabelRows converts the annotations of subset with a remapped category to center based boxes.
// Rows are returned in annotation order.
func LabelRows(subset *Dataset, remap CategoryRemap) []LabelRow {
	fileNames := make(map[int64]string, len(subset.Images))
	for _, img := range subset.Images {
		fileNames[img.ID] = img.FileName
	}

	rows := make([]LabelRow, 0, len(subset.Annotations))
	for _, a := range subset.Annotations {
		classID, ok := remap.ClassID(a.CategoryID)
		if !ok {
			continue
		}
		fileName, ok := fileNames[a.ImageID]
		if !ok {
			continue
		}
		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		rows = append(rows, LabelRow{
			FileName:   fileName,
			ImageID:    a.ImageID,
			CategoryID: classID,
			CenterX:    x + w/2,
			CenterY:    y + h/2,
			Width:      w,
			Height:     h,
		})
	}
	return rows
}

// Normalized returns the box coordinates divided by size.
func (r LabelRow) Normalized(size float64) (xCenter, yCenter, width, height float64) {
	return r.CenterX / size, r.CenterY / size, r.Width / size, r.Height / size
}

// formatLabelLine formats a row as "<class> <x_center> <y_center> <width> <height>\n".
func formatLabelLine(r LabelRow, size float64) string {
	xc, yc, w, h := r.Normalized(size)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("%d %s %s %s %s\n", r.CategoryID, f(xc), f(yc), f(w), f(h))
}

// LabelOptions configures GenerateLabels.
type LabelOptions struct {
	Categories      []string // Target category names.
	CanonicalSize   int      // Side length all images were padded to. Zero selects the default.
	VerifyImageSize bool     // Fail unless every image is CanonicalSize x CanonicalSize.
}

// LabelStats summarises a GenerateLabels run.
type LabelStats struct {
	Files   int // Label files written.
	Rows    int // Label lines written.
	Skipped int // Images without any annotation in the target categories.
}

// GenerateLabels writes one YOLO label file to labelDir for every image file in imageDir that has
// annotations in subset. Label files are named after the image, with a ".txt" extension.
//
// Coordinates are normalised by the canonical size, not by the size of each image. This is only
// correct for images that were padded with PadImages beforehand, which opts.VerifyImageSize checks.
func GenerateLabels(fs afero.Fs, subset *Dataset, imageDir, labelDir string, opts LabelOptions) (
	CategoryRemap, LabelStats, error) {

	size := opts.CanonicalSize
	if size <= 0 {
		size = DefaultCanonicalSize
	}

	remap := NewCategoryRemap(subset.Categories, opts.Categories)
	rowsByFile := make(map[string][]LabelRow)
	for _, r := range LabelRows(subset, remap) {
		rowsByFile[r.FileName] = append(rowsByFile[r.FileName], r)
	}

	files, err := imageFilesInDir(fs, imageDir)
	if err != nil {
		return remap, LabelStats{}, err
	}
	log.Printf("Generating labels for %d files", len(files))

	var stats LabelStats
	for _, file := range files {
		rows := rowsByFile[file]
		if len(rows) == 0 {
			log.Printf("No annotations, skipping %q", file)
			stats.Skipped++
			continue
		}

		imagePath := filepath.Join(imageDir, file)
		if opts.VerifyImageSize {
			if err := checkImageSize(fs, imagePath, size); err != nil {
				return remap, stats, err
			}
		}

		var buf bytes.Buffer
		for _, r := range rows {
			buf.WriteString(formatLabelLine(r, float64(size)))
		}

		_, baseNoExt, _, err := splitPath(file)
		if err != nil {
			return remap, stats, err
		}
		if err := writeFileAtomic(fs, filepath.Join(labelDir, baseNoExt+".txt"), buf.Bytes()); err != nil {
			return remap, stats, err
		}
		stats.Files++
		stats.Rows += len(rows)
	}

	log.Printf("Wrote %d labels to %d files in %s, %d files skipped",
		stats.Rows, stats.Files, labelDir, stats.Skipped)
	return remap, stats, nil
}

// checkImageSize returns ErrImageNotPadded unless the image at path is size x size.
func checkImageSize(fs afero.Fs, path string, size int) error {
	config, _, err := decodeImageConfig(fs, path)
	if err != nil {
		return errors.Wrapf(err, "cannot read the image header of %q", path)
	}
	if config.Width != size || config.Height != size {
		return errors.Wrapf(ErrImageNotPadded, "%q is %dx%d, want %dx%d",
			path, config.Width, config.Height, size, size)
	}
	return nil
}

// YOLODataset is the dataset description read by YOLO trainers.
type YOLODataset struct {
	Path       string   `yaml:"path,omitempty"`
	Train      string   `yaml:"train"`
	Valid      string   `yaml:"val"`
	Test       string   `yaml:"test,omitempty"`
	NamesCount int      `yaml:"nc"`
	Names      []string `yaml:"names"`
}

// NewYOLODataset describes a dataset with the given class names and split image directories,
// relative to root.
func NewYOLODataset(root string, remap CategoryRemap, train, valid, test string) YOLODataset {
	return YOLODataset{
		Path:       root,
		Train:      train,
		Valid:      valid,
		Test:       test,
		NamesCount: remap.Len(),
		Names:      remap.Names,
	}
}

// WriteYOLODataset writes the dataset description as YAML to path.
func WriteYOLODataset(fs afero.Fs, path string, d YOLODataset) error {
	enc, err := yaml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "failed to encode the dataset description")
	}
	return writeFileAtomic(fs, path, enc)
}
