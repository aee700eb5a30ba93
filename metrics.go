package coco2yolo

import (
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
)

const metricsNamespace = "coco2yolo"

// Metrics counts the work done by a pipeline run, per split.
type Metrics struct {
	registry *prometheus.Registry

	EligibleImages   *prometheus.GaugeVec
	SelectedImages   *prometheus.GaugeVec // Also labelled by category.
	Shortfall        *prometheus.GaugeVec // Quota minus selected images, by category.
	DownloadedImages *prometheus.CounterVec
	DownloadedBytes  *prometheus.CounterVec
	PaddedImages     *prometheus.CounterVec
	LabelFiles       *prometheus.CounterVec
	LabelRows        *prometheus.CounterVec
	SkippedFiles     *prometheus.CounterVec
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() *Metrics {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: name, Help: help,
		}, labels)
	}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: name, Help: help,
		}, []string{"split"})
	}

	m := &Metrics{
		registry:         prometheus.NewRegistry(),
		EligibleImages:   gauge("eligible_images", "Images left after category filtering.", "split"),
		SelectedImages:   gauge("selected_images", "Images selected by balanced sampling.", "split", "category"),
		Shortfall:        gauge("quota_shortfall_images", "Images missing to fill a category quota.", "split", "category"),
		DownloadedImages: counter("downloaded_images_total", "Images fetched over the network."),
		DownloadedBytes:  counter("downloaded_bytes_total", "Image bytes fetched over the network."),
		PaddedImages:     counter("padded_images_total", "Images padded to the canonical size."),
		LabelFiles:       counter("label_files_total", "YOLO label files written."),
		LabelRows:        counter("label_rows_total", "YOLO label lines written."),
		SkippedFiles:     counter("skipped_files_total", "Images without annotations in the target categories."),
	}
	m.registry.MustRegister(m.EligibleImages, m.SelectedImages, m.Shortfall, m.DownloadedImages,
		m.DownloadedBytes, m.PaddedImages, m.LabelFiles, m.LabelRows, m.SkippedFiles)
	return m
}

// Registry exposes the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observeSample records the outcome of balanced sampling for a split.
func (m *Metrics) observeSample(split string, s *Sample, names map[int64]string) {
	for id, quota := range s.Quotas {
		selected := s.Selected[id]
		m.SelectedImages.WithLabelValues(split, names[id]).Set(float64(selected))
		m.Shortfall.WithLabelValues(split, names[id]).Set(float64(quota - selected))
	}
}

// WriteTextfile atomically writes the metrics in the Prometheus text format to path on fs, for
// collection by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(fs afero.Fs, path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "cannot gather metrics")
	}

	err = writeAtomic(fs, path, func(w io.Writer) error {
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "cannot write metrics to %q", path)
}
