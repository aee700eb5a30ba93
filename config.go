package coco2yolo

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultCategories are the target classes of a traffic scene detector.
var DefaultCategories = []string{"traffic light", "bus", "train", "truck", "car", "bicycle", "person"}

// DefaultAnnotationBaseURL hosts a mirror of the COCO2017 annotation files.
const DefaultAnnotationBaseURL = "https://huggingface.co/datasets/merve/coco/resolve/main/annotations/"

// SplitConfig configures one output split.
type SplitConfig struct {
	Name           string `yaml:"name"`            // Directory name under the root, e.g. "training".
	SubsetName     string `yaml:"subset_name"`     // Base name of the subset document, e.g. "train".
	AnnotationFile string `yaml:"annotation_file"` // File name under the annotations directory.
	AnnotationURL  string `yaml:"annotation_url"`  // Where to fetch AnnotationFile if missing.
	SampleSize     int    `yaml:"sample_size"`     // Requested number of images.
}

// Config is the configuration of a pipeline run.
type Config struct {
	Root               string        `yaml:"root"`                 // The data root directory.
	Categories         []string      `yaml:"categories"`           // Target category names.
	IncludeCrowds      bool          `yaml:"include_crowds"`       // Keep images with crowd annotations.
	MaxImageCategories int           `yaml:"max_image_categories"` // Zero disables the filter.
	Splits             []SplitConfig `yaml:"splits"`
	CanonicalSize      int           `yaml:"canonical_size"`    // Images are padded to this square size.
	VerifyImageSize    bool          `yaml:"verify_image_size"` // Check image sizes before labelling.
	JPEGQuality        int           `yaml:"jpeg_quality"`
	Workers            int           `yaml:"workers"` // Zero selects 2*NumCPU.
	Retry              RetryConfig   `yaml:"retry"`
	TFRecord           bool          `yaml:"tfrecord"`     // Also write TFRecord files.
	MetricsFile        string        `yaml:"metrics_file"` // Prometheus textfile output, optional.
}

// DefaultConfig returns the configuration for the COCO2017 traffic subset.
func DefaultConfig() Config {
	return Config{
		Root:               "yolo_data",
		Categories:         append([]string(nil), DefaultCategories...),
		MaxImageCategories: 3,
		Splits: []SplitConfig{
			{
				Name:           TrainingSplit,
				SubsetName:     "train",
				AnnotationFile: "instances_train2017.json",
				AnnotationURL:  DefaultAnnotationBaseURL + "instances_train2017.json",
				SampleSize:     2500,
			},
			{
				Name:           ValidationSplit,
				SubsetName:     "validation",
				AnnotationFile: "instances_val2017.json",
				AnnotationURL:  DefaultAnnotationBaseURL + "instances_val2017.json",
				SampleSize:     500,
			},
		},
		CanonicalSize:   DefaultCanonicalSize,
		VerifyImageSize: true,
		JPEGQuality:     95,
		Retry: RetryConfig{
			Timeout:     5 * time.Minute,
			Count:       3,
			WaitTime:    time.Second,
			MaxWaitTime: 30 * time.Second,
		},
	}
}

// LoadConfig reads a YAML configuration from path. Values missing from the file keep their
// defaults.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()

	enc, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return cfg, errors.Wrapf(ErrMissingInput, "config file %q", path)
	} else if err != nil {
		return cfg, errors.Wrapf(err, "cannot read %q", path)
	}

	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse the config %q", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values that would make a run meaningless.
func (c Config) Validate() error {
	switch {
	case c.Root == "":
		return errors.New("missing root directory")
	case len(c.Categories) == 0:
		return errors.Wrap(ErrInvalidQuota, "no categories configured")
	case len(c.Splits) == 0:
		return errors.New("no splits configured")
	case c.CanonicalSize <= 0:
		return errors.Errorf("invalid canonical size %d", c.CanonicalSize)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return errors.Errorf("invalid JPEG quality %d, must be in [1, 100]", c.JPEGQuality)
	case c.MaxImageCategories < 0:
		return errors.Errorf("invalid max image categories %d", c.MaxImageCategories)
	case c.Retry.Count < 0:
		return errors.Errorf("invalid retry count %d", c.Retry.Count)
	}

	seen := make(map[string]bool, len(c.Splits))
	for _, s := range c.Splits {
		switch {
		case s.Name == "" || s.SubsetName == "" || s.AnnotationFile == "":
			return errors.Errorf("incomplete split %+v", s)
		case seen[s.Name]:
			return errors.Errorf("duplicate split %q", s.Name)
		case s.SampleSize < 0:
			return errors.Wrapf(ErrInvalidQuota, "negative sample size for split %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Split returns the configuration of the named split.
func (c Config) Split(name string) (SplitConfig, bool) {
	for _, s := range c.Splits {
		if s.Name == name {
			return s, true
		}
	}
	return SplitConfig{}, false
}
