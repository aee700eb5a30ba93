package coco2yolo

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// testCategories mirrors a few COCO categories, with their original non-dense ids.
var testCategories = []Category{
	{ID: 1, Name: "person", Supercategory: "person"},
	{ID: 2, Name: "bicycle", Supercategory: "vehicle"},
	{ID: 3, Name: "car", Supercategory: "vehicle"},
	{ID: 18, Name: "dog", Supercategory: "animal"},
}

// datasetBuilder assembles small COCO datasets for tests.
type datasetBuilder struct {
	data   Dataset
	nextID int64
}

func newDatasetBuilder() *datasetBuilder {
	return &datasetBuilder{
		data: Dataset{
			Info:       json.RawMessage(`{"description":"test"}`),
			Licenses:   json.RawMessage(`[]`),
			Categories: append([]Category(nil), testCategories...),
		},
		nextID: 100,
	}
}

func (b *datasetBuilder) image(id int64) *datasetBuilder {
	b.data.Images = append(b.data.Images, Image{
		ID:       id,
		FileName: fmt.Sprintf("%012d.png", id),
		COCOURL:  fmt.Sprintf("/images/%012d.png", id),
		Width:    64,
		Height:   48,
	})
	return b
}

func (b *datasetBuilder) box(imageID, categoryID int64, area float64) *datasetBuilder {
	return b.annotation(imageID, categoryID, [4]float64{1, 2, 3, 4}, area, 0)
}

func (b *datasetBuilder) crowd(imageID, categoryID int64) *datasetBuilder {
	return b.annotation(imageID, categoryID, [4]float64{0, 0, 10, 10}, 100, 1)
}

func (b *datasetBuilder) annotation(imageID, categoryID int64, bbox [4]float64, area float64,
	crowd int) *datasetBuilder {

	b.nextID++
	b.data.Annotations = append(b.data.Annotations, Annotation{
		ID:         b.nextID,
		ImageID:    imageID,
		CategoryID: categoryID,
		BBox:       bbox,
		Area:       area,
		IsCrowd:    crowd,
	})
	return b
}

func (b *datasetBuilder) build() *Dataset {
	data := b.data
	return &data
}

// encodeTestImage returns a w x h image with a white pixel at (0, 0), encoded in the format implied
// by name.
func encodeTestImage(t *testing.T, name string, w, h int) []byte {
	t.Helper()

	img := imaging.New(w, h, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(0, 0, color.White)

	format, err := imaging.FormatFromFilename(name)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

// writeTestImage writes a w x h image to path on fs.
func writeTestImage(t *testing.T, fs afero.Fs, path string, w, h int) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, encodeTestImage(t, path, w, h), 0644))
}

// imageSize decodes the header of the image at path.
func imageSize(t *testing.T, fs afero.Fs, path string) image.Point {
	t.Helper()
	config, _, err := decodeImageConfig(fs, path)
	require.NoError(t, err)
	return image.Pt(config.Width, config.Height)
}

func imageIDs(images []Image) []int64 {
	ids := make([]int64, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	return ids
}
