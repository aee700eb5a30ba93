package coco2yolo

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Names of the split directories.
const (
	TrainingSplit   = "training"
	ValidationSplit = "validation"
	TestSplit       = "test"
)

// Layout is the directory structure under a data root:
//
//	<root>/coco2017/
//	<root>/{training,validation,test}/{images,data,labels}/
type Layout struct {
	Root string
}

// SplitDirs are the directories of a single split.
type SplitDirs struct {
	Images string // Downloaded and padded images.
	Data   string // The subset COCO document.
	Labels string // YOLO label files.
}

// Annotations is the directory for the downloaded COCO annotation files.
func (l Layout) Annotations() string {
	return filepath.Join(l.Root, "coco2017")
}

// Split returns the directories for the named split.
func (l Layout) Split(name string) SplitDirs {
	base := filepath.Join(l.Root, name)
	return SplitDirs{
		Images: filepath.Join(base, "images"),
		Data:   filepath.Join(base, "data"),
		Labels: filepath.Join(base, "labels"),
	}
}

// dirs lists all directories of the layout.
func (l Layout) dirs(splits []string) []string {
	dirs := []string{l.Root, l.Annotations()}
	for _, s := range splits {
		d := l.Split(s)
		dirs = append(dirs, filepath.Join(l.Root, s), d.Images, d.Data, d.Labels)
	}
	return dirs
}

// Create creates all directories for the given splits that do not exist yet.
func (l Layout) Create(fs afero.Fs, splits ...string) error {
	for _, dir := range l.dirs(splits) {
		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return errors.Wrapf(err, "cannot access %q", dir)
		} else if exists {
			continue
		}
		log.Printf("Creating %s", dir)
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "cannot create %q", dir)
		}
	}
	return nil
}

// Reset removes the generated files of a split: the subset document and the labels and, unless
// keepImages is set, the downloaded images. The directories themselves are kept.
func (l Layout) Reset(fs afero.Fs, split string, keepImages bool) error {
	d := l.Split(split)
	dirs := []string{d.Data, d.Labels}
	if !keepImages {
		dirs = append(dirs, d.Images)
	}

	for _, dir := range dirs {
		files, err := filesInDir(fs, dir)
		if os.IsNotExist(errors.Cause(err)) {
			continue
		} else if err != nil {
			return err
		}
		for _, f := range files {
			if err := fs.Remove(filepath.Join(dir, f)); err != nil {
				return errors.Wrapf(err, "cannot remove %q", f)
			}
		}
		log.Printf("Removed %d files from %s", len(files), dir)
	}
	return nil
}
