package coco2yolo

// TFRecord object detection specific functionality.

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	tfexample "github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	tensorflow "github.com/ryszard/tfutils/proto/tensorflow/core/example"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures builds the object detection features for one image. Boxes are normalised by size,
// like the YOLO labels, and class ids are the remapped ids plus one, as zero is reserved for the
// background class.
func toTFFeatures(img Image, encoded []byte, format string, rows []LabelRow, remap CategoryRemap,
	size int) TFFeatureMap {

	s := float32(size)
	n := len(rows)
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	for i, r := range rows {
		xmins[i] = float32(r.CenterX-r.Width/2) / s
		ymins[i] = float32(r.CenterY-r.Height/2) / s
		xmaxs[i] = float32(r.CenterX+r.Width/2) / s
		ymaxs[i] = float32(r.CenterY+r.Height/2) / s
		classes[i] = remap.Names[r.CategoryID]
		classIDs[i] = int64(r.CategoryID + 1)
	}

	return TFFeatureMap{
		"image/height":             size,
		"image/width":              size,
		"image/filename":           img.FileName,
		"image/source_id":          fmt.Sprint(img.ID),
		"image/encoded":            encoded,
		"image/format":             format,
		"image/object/bbox/xmin":   xmins,
		"image/object/bbox/ymin":   ymins,
		"image/object/bbox/xmax":   xmaxs,
		"image/object/bbox/ymax":   ymaxs,
		"image/object/class/text":  classes,
		"image/object/class/label": classIDs,
	}
}

// WriteTFRecord writes one TensorFlow Example per image in imageDir that has labels in subset to
// recordPath, and the label map for remap to labelMapPath.
//
// The images must have been padded to size x size.
func WriteTFRecord(fs afero.Fs, recordPath, labelMapPath string, subset *Dataset, imageDir string,
	remap CategoryRemap, size int) (count int, err error) {

	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	rowsByImage := make(map[int64][]LabelRow)
	for _, r := range LabelRows(subset, remap) {
		rowsByImage[r.ImageID] = append(rowsByImage[r.ImageID], r)
	}
	byName := make(map[string]Image, len(subset.Images))
	for _, img := range subset.Images {
		byName[img.FileName] = img
	}

	files, err := imageFilesInDir(fs, imageDir)
	if err != nil {
		return 0, err
	}

	// Convert and serialise one image at a time.
	err = writeAtomic(fs, recordPath, func(w io.Writer) error {
		for _, file := range files {
			img, ok := byName[file]
			if !ok || len(rowsByImage[img.ID]) == 0 {
				continue
			}

			path := filepath.Join(imageDir, file)
			encoded, err := afero.ReadFile(fs, path)
			if err != nil {
				return errors.Wrapf(err, "failed to read the image %q", path)
			}
			features := toTFFeatures(img, encoded, imageFormat(file), rowsByImage[img.ID], remap, size)
			if err := writeTFRecordExample(w, tfexample.New(features)); err != nil {
				return errors.Wrapf(err, "failed to write the example for %q", file)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	if err := writeFileAtomic(fs, labelMapPath, formatTFRecordLabelMap(remap)); err != nil {
		return count, err
	}

	log.Printf("Wrote %d examples to %s", count, recordPath)
	return count, nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// formatTFRecordLabelMap formats remap as a StringIntLabelMap in prototxt format. Ids start at 1.
func formatTFRecordLabelMap(remap CategoryRemap) []byte {
	var buf bytes.Buffer
	for i, name := range remap.Names {
		fmt.Fprintf(&buf, "item {\n  name: %q\n  id: %d\n}\n", name, i+1)
	}
	return buf.Bytes()
}

// imageFormat returns the "image/format" value for the file name, e.g. "jpeg" or "png".
func imageFormat(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}
