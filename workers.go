package coco2yolo

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// runWorkers calls task for every index in [0, n) on up to numWorkers goroutines. The first error
// cancels the context passed to the remaining tasks and is returned once all goroutines are done.
//
// A numWorkers value <= 0 selects 2*runtime.NumCPU().
func runWorkers(ctx context.Context, numWorkers, n int,
	task func(ctx context.Context, i int) error) error {

	if n == 0 {
		return ctx.Err()
	}

	// Limit the number of goroutines in flight, as tasks may hold whole images in memory.
	if numWorkers <= 0 {
		numWorkers = 2 * runtime.NumCPU()
	}
	if n < numWorkers {
		numWorkers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workQueue := make(chan int, 2*numWorkers)
	errors := make(chan error, 1)
	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
		cancel()
	}

	// Process tasks concurrently from a work queue.
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				if ctx.Err() != nil {
					continue
				}
				if err := task(ctx, idx); err != nil {
					trySendError(err)
				}
			}
		}()
	}

	// Feed the work queue, stopping early once cancelled.
feed:
	for i := 0; i < n; i++ {
		select {
		case workQueue <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if err, ok := <-errors; ok {
		return err
	}
	return ctx.Err()
}

// Progress receives progress updates for long running stages. It is implemented by
// *progressbar.ProgressBar.
type Progress interface {
	Add(n int) error
	Finish() error
}

const progressThrottle = 100 * time.Millisecond

// NewProgressBar returns a progress bar for max steps that writes to w.
func NewProgressBar(w io.Writer, max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressFactory creates a Progress for a stage with max steps.
type ProgressFactory func(max int, description string) Progress

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }

// start creates a Progress, or one that discards updates if f is nil.
func (f ProgressFactory) start(max int, description string) Progress {
	if f == nil {
		return nopProgress{}
	}
	return f(max, description)
}
