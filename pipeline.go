package coco2yolo

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const numSteps = 8

// Pipeline prepares the YOLO dataset described by a Config.
type Pipeline struct {
	cfg         Config
	fs          afero.Fs
	layout      Layout
	fetcher     Fetcher
	metrics     *Metrics
	newProgress ProgressFactory
}

// NewPipeline creates a pipeline that works on fs and downloads with fetcher. Metrics and progress
// reporting are optional and may be nil.
func NewPipeline(cfg Config, fs afero.Fs, fetcher Fetcher, metrics *Metrics,
	newProgress ProgressFactory) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Pipeline{
		cfg:         cfg,
		fs:          fs,
		layout:      Layout{Root: cfg.Root},
		fetcher:     fetcher,
		metrics:     metrics,
		newProgress: newProgress,
	}, nil
}

// SplitReport summarises the work done for one split.
type SplitReport struct {
	Name      string
	Eligible  int
	Sample    *Sample
	Download  DownloadStats
	Subset    *Dataset
	Padded    int
	Remap     CategoryRemap
	Labels    LabelStats
	TFRecords int
}

func step(n int, format string, args ...interface{}) {
	log.Printf("(%d/%d) "+format, append([]interface{}{n, numSteps}, args...)...)
}

// Run executes all steps for every configured split. Splits are processed one after the other, so
// that only one full annotation file is held in memory. The first error aborts the run.
func (p *Pipeline) Run(ctx context.Context) ([]SplitReport, error) {
	splitNames := make([]string, 0, len(p.cfg.Splits)+1)
	for _, s := range p.cfg.Splits {
		splitNames = append(splitNames, s.Name)
	}
	if _, ok := p.cfg.Split(TestSplit); !ok {
		splitNames = append(splitNames, TestSplit)
	}

	step(1, "Creating the directory structure")
	if err := p.layout.Create(p.fs, splitNames...); err != nil {
		return nil, err
	}

	reports := make([]SplitReport, 0, len(p.cfg.Splits))
	for _, split := range p.cfg.Splits {
		report, err := p.runSplit(ctx, split)
		if err != nil {
			return reports, errors.Wrapf(err, "split %q", split.Name)
		}
		reports = append(reports, report)
	}

	if err := p.writeDatasetDescription(reports); err != nil {
		return reports, err
	}
	if p.cfg.MetricsFile != "" {
		if err := p.metrics.WriteTextfile(p.fs, p.cfg.MetricsFile); err != nil {
			return reports, err
		}
	}

	log.Print("Done")
	return reports, nil
}

func (p *Pipeline) runSplit(ctx context.Context, split SplitConfig) (SplitReport, error) {
	report := SplitReport{Name: split.Name}
	dirs := p.layout.Split(split.Name)
	annotationPath := filepath.Join(p.layout.Annotations(), split.AnnotationFile)

	step(2, "Fetching the %s annotations", split.Name)
	if split.AnnotationURL != "" {
		if _, err := DownloadIfMissing(ctx, p.fs, p.fetcher, split.AnnotationURL, annotationPath); err != nil {
			return report, err
		}
	}

	step(3, "Filtering the %s annotations", split.Name)
	data, err := LoadDataset(p.fs, annotationPath)
	if err != nil {
		return report, err
	}
	files := data.FilterCategories(FilterOptions{
		Labels:             p.cfg.Categories,
		IncludeCrowds:      p.cfg.IncludeCrowds,
		MaxImageCategories: p.cfg.MaxImageCategories,
	})
	report.Eligible = len(files)
	p.metrics.EligibleImages.WithLabelValues(split.Name).Set(float64(len(files)))

	step(4, "Sampling %d %s images across %d categories",
		split.SampleSize, split.Name, len(p.cfg.Categories))
	sample, err := data.SampleBalanced(files, SampleOptions{
		Size:       split.SampleSize,
		Categories: p.cfg.Categories,
	})
	if err != nil {
		return report, err
	}
	report.Sample = sample
	p.metrics.observeSample(split.Name, sample, data.CategoryNames())

	step(5, "Downloading the %s images", split.Name)
	report.Download, err = DownloadImages(ctx, p.fs, p.fetcher, sample.Images, dirs.Images,
		p.cfg.Workers, p.newProgress)
	p.metrics.DownloadedImages.WithLabelValues(split.Name).Add(float64(report.Download.Downloaded))
	p.metrics.DownloadedBytes.WithLabelValues(split.Name).Add(float64(report.Download.Bytes))
	if err != nil {
		return report, err
	}

	step(6, "Writing the %s subset", split.Name)
	subset, err := CreateSubset(p.fs, data, dirs.Images, MatchFileNames{})
	if err != nil {
		return report, err
	}
	subsetPath := filepath.Join(dirs.Data, split.SubsetName+".json")
	if err := WriteSubset(p.fs, subsetPath, subset); err != nil {
		return report, err
	}
	report.Subset = subset

	step(7, "Padding the %s images", split.Name)
	report.Padded, err = PadImages(ctx, p.fs, dirs.Images, p.cfg.CanonicalSize, p.cfg.JPEGQuality,
		p.cfg.Workers, p.newProgress)
	p.metrics.PaddedImages.WithLabelValues(split.Name).Add(float64(report.Padded))
	if err != nil {
		return report, err
	}

	step(8, "Creating the %s labels", split.Name)
	// Labels are generated from the document on disk, so that they match what was written.
	written, err := LoadDataset(p.fs, subsetPath)
	if err != nil {
		return report, err
	}
	report.Remap, report.Labels, err = GenerateLabels(p.fs, written, dirs.Images, dirs.Labels,
		LabelOptions{
			Categories:      p.cfg.Categories,
			CanonicalSize:   p.cfg.CanonicalSize,
			VerifyImageSize: p.cfg.VerifyImageSize,
		})
	p.metrics.LabelFiles.WithLabelValues(split.Name).Add(float64(report.Labels.Files))
	p.metrics.LabelRows.WithLabelValues(split.Name).Add(float64(report.Labels.Rows))
	p.metrics.SkippedFiles.WithLabelValues(split.Name).Add(float64(report.Labels.Skipped))
	if err != nil {
		return report, err
	}

	if p.cfg.TFRecord {
		recordPath := filepath.Join(dirs.Data, split.SubsetName+".tfrecord")
		labelMapPath := filepath.Join(dirs.Data, "label_map.pbtxt")
		report.TFRecords, err = WriteTFRecord(p.fs, recordPath, labelMapPath, written, dirs.Images,
			report.Remap, p.cfg.CanonicalSize)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// writeDatasetDescription writes <root>/dataset.yaml with the image directories of the training,
// validation and test splits.
func (p *Pipeline) writeDatasetDescription(reports []SplitReport) error {
	if len(reports) == 0 {
		return nil
	}

	rel := func(split string) string {
		if _, ok := p.cfg.Split(split); !ok && split != TestSplit {
			return ""
		}
		return filepath.Join(split, "images")
	}
	d := NewYOLODataset(p.cfg.Root, reports[0].Remap, rel(TrainingSplit), rel(ValidationSplit),
		rel(TestSplit))

	path := filepath.Join(p.cfg.Root, "dataset.yaml")
	if err := WriteYOLODataset(p.fs, path, d); err != nil {
		return err
	}
	log.Printf("Wrote the dataset description with %d classes to %s", d.NamesCount, path)
	return nil
}
