// Prepares a class balanced, padded subset of COCO2017 with YOLO labels.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sensorable/coco2yolo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	cfg = coco2yolo.DefaultConfig() // The effective configuration.

	configFilePath string // Optional YAML configuration file.
	resetOnly      bool   // Remove generated files instead of running the pipeline.
	keepImages     bool   // Keep downloaded images when resetting.
	verbose        bool   // Debug logging.
	noProgress     bool   // Disable progress bars.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  run:\t\t[-config <file>] [-root <dir>] [options]")
		_, _ = fmt.Fprintln(os.Stderr, "  reset:\t-reset [-keep-images] [-root <dir>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	defaults := coco2yolo.DefaultConfig()
	trainDefault, _ := defaults.Split(coco2yolo.TrainingSplit)
	valDefault, _ := defaults.Split(coco2yolo.ValidationSplit)

	flag.StringVar(&configFilePath, "config", "", "The YAML configuration `file` (flags override it)")

	// Arguments that override the configuration.
	root := flag.String("root", defaults.Root, "The data root `directory`")
	categories := flag.String("categories", strings.Join(defaults.Categories, ","),
		"Comma-separated list of COCO category names to keep")
	trainSize := flag.Int("train-size", trainDefault.SampleSize,
		"The number of training images to sample")
	valSize := flag.Int("val-size", valDefault.SampleSize,
		"The number of validation images to sample")
	maxImageCategories := flag.Int("max-image-categories", defaults.MaxImageCategories,
		"Drop images with more annotations than this (zero disables the filter)")
	includeCrowds := flag.Bool("include-crowds", defaults.IncludeCrowds,
		"Keep images that contain crowd annotations")
	size := flag.Int("size", defaults.CanonicalSize,
		"The side `length` in pixels that images are padded to")
	workers := flag.Int("workers", defaults.Workers,
		"The number of concurrent downloads and image operations (zero for 2*NumCPU)")
	jpegQuality := flag.Int("jpeg-quality", defaults.JPEGQuality,
		"The quality to use when encoding padded JPEGs [1, 100]")
	tfRecord := flag.Bool("tfrecord", defaults.TFRecord, "Also write TFRecord files for each split")
	metricsFile := flag.String("metrics-file", defaults.MetricsFile,
		"Write Prometheus metrics for the run to this `file`")

	flag.BoolVar(&resetOnly, "reset", false,
		"Remove the generated subsets, labels and images of all splits, then exit")
	flag.BoolVar(&keepImages, "keep-images", false, "Keep the downloaded images with -reset")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&noProgress, "no-progress", false, "Disable progress bars")

	// Parse and validate flags.
	flag.Parse()
	if flag.NArg() > 0 {
		printUsageAndExit("Unexpected arguments: ", flag.Args())
	}

	if configFilePath != "" {
		var err error
		if cfg, err = coco2yolo.LoadConfig(afero.NewOsFs(), configFilePath); err != nil {
			printUsageAndExit("Invalid configuration: ", err)
		}
	}

	// Apply the flags that were set explicitly.
	setSplitSize := func(name string, n int) {
		for i := range cfg.Splits {
			if cfg.Splits[i].Name == name {
				cfg.Splits[i].SampleSize = n
			}
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = *root
		case "categories":
			cfg.Categories = splitList(*categories)
		case "train-size":
			setSplitSize(coco2yolo.TrainingSplit, *trainSize)
		case "val-size":
			setSplitSize(coco2yolo.ValidationSplit, *valSize)
		case "max-image-categories":
			cfg.MaxImageCategories = *maxImageCategories
		case "include-crowds":
			cfg.IncludeCrowds = *includeCrowds
		case "size":
			cfg.CanonicalSize = *size
		case "workers":
			cfg.Workers = *workers
		case "jpeg-quality":
			cfg.JPEGQuality = *jpegQuality
		case "tfrecord":
			cfg.TFRecord = *tfRecord
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		}
	})

	cfg.Root = filepath.Clean(cfg.Root)
	if err := cfg.Validate(); err != nil {
		printUsageAndExit("Invalid configuration: ", err)
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var list []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func main() {
	fs := afero.NewOsFs()

	if resetOnly {
		layout := coco2yolo.Layout{Root: cfg.Root}
		for _, s := range cfg.Splits {
			if err := layout.Reset(fs, s.Name, keepImages); err != nil {
				log.Fatal("Reset failed: ", err)
			}
		}
		return
	}

	var newProgress coco2yolo.ProgressFactory
	if !noProgress {
		newProgress = func(max int, description string) coco2yolo.Progress {
			return coco2yolo.NewProgressBar(os.Stderr, max, description)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := coco2yolo.NewPipeline(cfg, fs, coco2yolo.NewHTTPFetcher(cfg.Retry), nil, newProgress)
	if err != nil {
		log.Fatal("Failed to set up the pipeline: ", err)
	}

	reports, err := p.Run(ctx)
	if err != nil {
		log.Fatal("Pipeline failed: ", err)
	}

	for _, r := range reports {
		log.Printf("%s: %d eligible, %d selected, %d labelled images", r.Name, r.Eligible,
			len(r.Sample.Images), r.Labels.Files)
	}
}
