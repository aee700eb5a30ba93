package coco2yolo

// COCO detection format specific functionality.

import (
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Category is a COCO object category.
type Category struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// Image is the COCO metadata for a single image file.
type Image struct {
	ID           int64  `json:"id"`
	License      int    `json:"license,omitempty"`
	FileName     string `json:"file_name"`
	COCOURL      string `json:"coco_url,omitempty"`
	Height       int    `json:"height"`
	Width        int    `json:"width"`
	DateCaptured string `json:"date_captured,omitempty"`
	FlickrURL    string `json:"flickr_url,omitempty"`
}

// Annotation is a single COCO object instance.
type Annotation struct {
	ID           int64           `json:"id"`
	ImageID      int64           `json:"image_id"`
	CategoryID   int64           `json:"category_id"`
	BBox         [4]float64      `json:"bbox"` // x, y (top-left), width, height in pixels.
	Area         float64         `json:"area"`
	IsCrowd      int             `json:"iscrowd"`
	Segmentation json.RawMessage `json:"segmentation,omitempty"` // Polygons or RLE, carried verbatim.
}

// Dataset is a COCO detection document. Info and Licenses are not interpreted and are written back
// unchanged.
type Dataset struct {
	Info        json.RawMessage `json:"info"`
	Licenses    json.RawMessage `json:"licenses"`
	Images      []Image         `json:"images"`
	Annotations []Annotation    `json:"annotations"`
	Categories  []Category      `json:"categories"`
}

// ReadDataset decodes a COCO document from r.
func ReadDataset(r io.Reader) (*Dataset, error) {
	var data Dataset
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "failed to decode COCO annotations")
	}
	if data.Info == nil {
		data.Info = json.RawMessage("{}")
	}
	if data.Licenses == nil {
		data.Licenses = json.RawMessage("[]")
	}
	return &data, nil
}

// LoadDataset reads and parses the COCO annotation file at path.
func LoadDataset(fs afero.Fs, path string) (data *Dataset, err error) {
	f, err := fs.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrMissingInput, "annotation file %q", path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	defer closeWithErrCheck(f, &err)

	data, err = ReadDataset(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}

	log.Printf("Loaded %d images, %d annotations and %d categories from %s",
		len(data.Images), len(data.Annotations), len(data.Categories), path)
	return data, nil
}

// CategoryIDs resolves category names to ids, in the order of data.Categories.
func (data *Dataset) CategoryIDs(names []string) []int64 {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	ids := make([]int64, 0, len(names))
	for _, c := range data.Categories {
		if wanted[c.Name] {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// CategoryNames maps category ids to names.
func (data *Dataset) CategoryNames() map[int64]string {
	names := make(map[int64]string, len(data.Categories))
	for _, c := range data.Categories {
		names[c.ID] = c.Name
	}
	return names
}

// ImagesByID indexes data.Images by id.
func (data *Dataset) ImagesByID() map[int64]Image {
	images := make(map[int64]Image, len(data.Images))
	for _, img := range data.Images {
		images[img.ID] = img
	}
	return images
}

// annotationsByImage groups the indexes of data.Annotations by image id. The indexes of each group
// are in increasing order.
func (data *Dataset) annotationsByImage() map[int64][]int {
	groups := make(map[int64][]int)
	for i, a := range data.Annotations {
		groups[a.ImageID] = append(groups[a.ImageID], i)
	}
	return groups
}

// idSet is a set of image or category ids.
type idSet map[int64]struct{}

func newIDSet(ids ...int64) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) add(id int64) {
	s[id] = struct{}{}
}
