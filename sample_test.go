package coco2yolo

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribute(t *testing.T) {
	parts, err := Distribute(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 3}, parts)

	for total := 0; total <= 50; total++ {
		for units := 1; units <= 9; units++ {
			parts, err := Distribute(total, units)
			require.NoError(t, err)
			require.Len(t, parts, units)

			sum, min, max := 0, parts[0], parts[0]
			for _, p := range parts {
				require.GreaterOrEqual(t, p, 0)
				sum += p
				if p < min {
					min = p
				}
				if p > max {
					max = p
				}
			}
			assert.Equal(t, total, sum, "Distribute(%d, %d)", total, units)
			assert.LessOrEqual(t, max-min, 1, "Distribute(%d, %d)", total, units)
		}
	}
}

func TestDistribute_Invalid(t *testing.T) {
	_, err := Distribute(10, 0)
	assert.True(t, errors.Is(err, ErrInvalidQuota))

	_, err = Distribute(-1, 2)
	assert.True(t, errors.Is(err, ErrInvalidQuota))
}

func TestSampleBalanced_Quotas(t *testing.T) {
	// Five images with one annotation each: two cars and three persons.
	data := newDatasetBuilder().
		image(1).image(2).image(3).image(4).image(5).
		box(1, 3, 10).box(2, 3, 20).
		box(3, 1, 30).box(4, 1, 40).box(5, 1, 50).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"car", "person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{Size: 4, Categories: []string{"car", "person"}})
	require.NoError(t, err)

	assert.Equal(t, map[int64]int{1: 2, 3: 2}, sample.Quotas)
	assert.Equal(t, map[int64]int{1: 2, 3: 2}, sample.Selected)
	// The two largest persons and both cars, in dataset order.
	assert.Equal(t, []int64{1, 2, 4, 5}, imageIDs(sample.Images))
	assert.Len(t, sample.Annotations, 4)
}

func TestSampleBalanced_Shortfall(t *testing.T) {
	// One car and four persons: the car slot cannot be filled and is not topped up.
	data := newDatasetBuilder().
		image(1).image(2).image(3).image(4).image(5).
		box(1, 3, 10).
		box(2, 1, 20).box(3, 1, 30).box(4, 1, 40).box(5, 1, 50).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"car", "person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{Size: 4, Categories: []string{"car", "person"}})
	require.NoError(t, err)

	assert.Equal(t, 1, sample.Selected[3])
	assert.Equal(t, 2, sample.Selected[1])
	assert.Equal(t, []int64{1, 4, 5}, imageIDs(sample.Images))
}

func TestSampleBalanced_LargestBoxWins(t *testing.T) {
	// Image 1 has a small person and a large car, so it only counts as a car.
	data := newDatasetBuilder().
		image(1).image(2).
		box(1, 1, 5).box(1, 3, 500).
		box(2, 1, 50).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"car", "person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{Size: 2, Categories: []string{"car", "person"}})
	require.NoError(t, err)

	require.Len(t, sample.Annotations, 2)
	byImage := make(map[int64]Annotation)
	for _, a := range sample.Annotations {
		byImage[a.ImageID] = a
	}
	assert.Equal(t, int64(3), byImage[1].CategoryID)
	assert.Equal(t, 500.0, byImage[1].Area)
	assert.Equal(t, int64(1), byImage[2].CategoryID)
}

func TestSampleBalanced_SharedTopImage(t *testing.T) {
	// The largest person and the largest car are in the same image.
	data := newDatasetBuilder().
		image(1).image(2).
		box(1, 1, 100).box(1, 3, 90).
		box(2, 3, 10).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"car", "person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{Size: 4, Categories: []string{"car", "person"}})
	require.NoError(t, err)

	ids := imageIDs(sample.Images)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Less(t, len(ids), 4)

	seen := make(map[int64]bool)
	for _, a := range sample.Annotations {
		assert.False(t, seen[a.ImageID], "image %d selected twice", a.ImageID)
		seen[a.ImageID] = true
	}
}

func TestSampleBalanced_TiesKeepOriginalOrder(t *testing.T) {
	data := newDatasetBuilder().
		image(1).image(2).image(3).
		box(3, 1, 10).box(1, 1, 10).box(2, 1, 10).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{Size: 2, Categories: []string{"person"}})
	require.NoError(t, err)

	require.Len(t, sample.Annotations, 2)
	assert.Equal(t, int64(3), sample.Annotations[0].ImageID)
	assert.Equal(t, int64(1), sample.Annotations[1].ImageID)
}

func TestSampleBalanced_Exclude(t *testing.T) {
	data := newDatasetBuilder().
		image(1).image(2).image(3).
		box(1, 1, 30).box(2, 1, 20).box(3, 1, 10).
		build()
	files := data.FilterCategories(FilterOptions{Labels: []string{"person"}})

	sample, err := data.SampleBalanced(files, SampleOptions{
		Size:       2,
		Categories: []string{"person"},
		Exclude:    []string{data.Images[0].FileName},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, imageIDs(sample.Images))
}

func TestSampleBalanced_NoCategories(t *testing.T) {
	data := newDatasetBuilder().image(1).box(1, 1, 10).build()

	_, err := data.SampleBalanced(Eligible{}, SampleOptions{Size: 2})
	assert.True(t, errors.Is(err, ErrInvalidQuota))
}
