package coco2yolo

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Fetcher retrieves the content at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RetryConfig configures the HTTP client used for downloads.
type RetryConfig struct {
	Timeout     time.Duration `yaml:"timeout"`       // Per attempt.
	Count       int           `yaml:"count"`         // Retries after the first attempt.
	WaitTime    time.Duration `yaml:"wait_time"`     // Initial backoff.
	MaxWaitTime time.Duration `yaml:"max_wait_time"` // Upper bound for the backoff.
}

// HTTPFetcher fetches URLs with GET requests. Transport errors, 429 and 5xx responses are retried
// with exponential backoff; any other non-2xx response fails immediately.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(cfg RetryConfig) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Count).
		SetRetryWaitTime(cfg.WaitTime).
		SetRetryMaxWaitTime(cfg.MaxWaitTime).
		AddRetryCondition(retryable)
	return &HTTPFetcher{client: client}
}

func retryable(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Context().Err() != nil {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		// Keep cancellation testable with errors.Is.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "GET %s", url)
		}
		return nil, errors.Wrapf(ErrFetch, "GET %s: %v", url, err)
	}
	if !resp.IsSuccess() {
		return nil, errors.Wrapf(ErrFetch, "GET %s: %s", url, resp.Status())
	}
	return resp.Body(), nil
}

// DownloadIfMissing fetches url into path unless a file already exists there.
//
// Returns true if the file was downloaded.
func DownloadIfMissing(ctx context.Context, fs afero.Fs, fetcher Fetcher, url, path string) (
	bool, error) {

	exists, err := fileExists(fs, path)
	if err != nil {
		return false, err
	} else if exists {
		log.Printf("%s already exists", path)
		return false, nil
	}

	log.Printf("Downloading %s", url)
	data, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(fs, path, data); err != nil {
		return false, err
	}
	log.Printf("Wrote %s to %s", humanize.Bytes(uint64(len(data))), path)
	return true, nil
}

// DownloadStats summarises a DownloadImages run.
type DownloadStats struct {
	Downloaded int    // Images fetched.
	Existing   int    // Images that were already present.
	Bytes      uint64 // Bytes written.
}

// DownloadImages fetches the COCOURL of each image into dir, named by its FileName. Images that are
// already present are not fetched again. The first failed download aborts the remaining ones.
func DownloadImages(ctx context.Context, fs afero.Fs, fetcher Fetcher, images []Image, dir string,
	numWorkers int, newProgress ProgressFactory) (DownloadStats, error) {

	log.Printf("Downloading %d images to %s", len(images), dir)

	var downloaded, existing int64
	var numBytes uint64
	progress := newProgress.start(len(images), "Downloading images")

	err := runWorkers(ctx, numWorkers, len(images), func(ctx context.Context, i int) error {
		defer func() { _ = progress.Add(1) }()

		img := images[i]
		if img.COCOURL == "" {
			return errors.Wrapf(ErrMissingInput, "image %d (%q) has no URL", img.ID, img.FileName)
		}
		path := filepath.Join(dir, img.FileName)
		exists, err := fileExists(fs, path)
		if err != nil {
			return err
		} else if exists {
			atomic.AddInt64(&existing, 1)
			return nil
		}

		data, err := fetcher.Fetch(ctx, img.COCOURL)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(fs, path, data); err != nil {
			return err
		}
		atomic.AddInt64(&downloaded, 1)
		atomic.AddUint64(&numBytes, uint64(len(data)))
		log.Debugf("Downloaded %s (%s)", img.FileName, humanize.Bytes(uint64(len(data))))
		return nil
	})
	_ = progress.Finish()

	stats := DownloadStats{
		Downloaded: int(downloaded),
		Existing:   int(existing),
		Bytes:      numBytes,
	}
	if err != nil {
		return stats, err
	}

	log.Printf("Downloaded %d images (%s), %d already present",
		stats.Downloaded, humanize.Bytes(stats.Bytes), stats.Existing)
	return stats, nil
}
