package coco2yolo

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRunWorkers(t *testing.T) {
	var sum, calls int64
	err := runWorkers(context.Background(), 3, 100, func(_ context.Context, i int) error {
		atomic.AddInt64(&sum, int64(i))
		atomic.AddInt64(&calls, 1)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(100), calls)
	assert.Equal(t, int64(99*100/2), sum)
}

func TestRunWorkers_FirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	var calls int64
	err := runWorkers(context.Background(), 1, 1000, func(ctx context.Context, i int) error {
		atomic.AddInt64(&calls, 1)
		if i == 10 {
			return boom
		}
		return nil
	})
	assert.Equal(t, boom, err)
	assert.Less(t, atomic.LoadInt64(&calls), int64(1000))
}

func TestRunWorkers_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runWorkers(ctx, 2, 10, func(context.Context, int) error { return nil })
	assert.Equal(t, context.Canceled, err)
}
