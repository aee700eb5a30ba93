package coco2yolo

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ImageResolver maps the image files found in a directory to image ids.
type ImageResolver interface {
	resolve(data *Dataset, files []string) ([]int64, error)
}

// MatchFileNames resolves files by comparing them with the file names in the dataset. Files that
// are not part of the dataset are ignored.
type MatchFileNames struct{}

func (MatchFileNames) resolve(data *Dataset, files []string) ([]int64, error) {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}

	ids := make([]int64, 0, len(files))
	for _, img := range data.Images {
		if present[img.FileName] {
			ids = append(ids, img.ID)
		}
	}
	return ids, nil
}

// FileMapping resolves files through an explicit file name to image id mapping, such as the one
// returned by FilterCategories. Every file must be mapped.
type FileMapping map[string]int64

func (m FileMapping) resolve(_ *Dataset, files []string) ([]int64, error) {
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		id, ok := m[f]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownFile, "%q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Subset returns a dataset with the images in ids and all of their annotations. Info, licenses and
// categories are shared with data.
func (data *Dataset) Subset(ids []int64) *Dataset {
	keep := newIDSet(ids...)

	subset := &Dataset{
		Info:        data.Info,
		Licenses:    data.Licenses,
		Images:      make([]Image, 0, len(keep)),
		Annotations: make([]Annotation, 0, len(keep)),
		Categories:  data.Categories,
	}
	for _, img := range data.Images {
		if keep.has(img.ID) {
			subset.Images = append(subset.Images, img)
		}
	}
	for _, a := range data.Annotations {
		if keep.has(a.ImageID) {
			subset.Annotations = append(subset.Annotations, a)
		}
	}
	return subset
}

// CreateSubset returns the part of data that covers the image files present in imageDir.
//
// Since it is derived from the directory listing, calling it again after images were added or
// removed yields a subset that is consistent with the new directory contents.
func CreateSubset(fs afero.Fs, data *Dataset, imageDir string, resolver ImageResolver) (
	*Dataset, error) {

	files, err := filesInDir(fs, imageDir)
	if err != nil {
		return nil, err
	}

	ids, err := resolver.resolve(data, files)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve the images in %q", imageDir)
	}

	subset := data.Subset(ids)
	log.Printf("Subset of %d files in %s has %d images and %d annotations",
		len(files), imageDir, len(subset.Images), len(subset.Annotations))
	return subset, nil
}

// WriteSubset writes the subset as a COCO document to path.
func WriteSubset(fs afero.Fs, path string, subset *Dataset) error {
	enc, err := json.Marshal(subset)
	if err != nil {
		return errors.Wrap(err, "failed to encode the subset")
	}
	return writeFileAtomic(fs, path, enc)
}
