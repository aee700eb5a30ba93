package coco2yolo

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubset(t *testing.T) {
	data := newDatasetBuilder().
		image(1).image(2).image(3).
		box(1, 1, 10).box(2, 3, 10).box(2, 1, 5).box(3, 3, 10).
		build()

	subset := data.Subset([]int64{2, 3})
	assert.Equal(t, []int64{2, 3}, imageIDs(subset.Images))
	assert.Len(t, subset.Annotations, 3)
	assert.Equal(t, data.Categories, subset.Categories)

	ids := newIDSet(imageIDs(subset.Images)...)
	for _, a := range subset.Annotations {
		assert.True(t, ids.has(a.ImageID), "annotation %d references a missing image", a.ID)
	}
}

func TestCreateSubset_MatchFileNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := newDatasetBuilder().
		image(1).image(2).image(3).
		box(1, 1, 10).box(2, 1, 10).box(3, 1, 10).
		build()

	dir := "/split/images"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, data.Images[0].FileName), nil, 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, data.Images[2].FileName), nil, 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, ".DS_Store"), nil, 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "unrelated.png"), nil, 0644))

	subset, err := CreateSubset(fs, data, dir, MatchFileNames{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, imageIDs(subset.Images))

	// Deleting an image and regenerating yields a consistent subset.
	require.NoError(t, fs.Remove(filepath.Join(dir, data.Images[0].FileName)))
	subset, err = CreateSubset(fs, data, dir, MatchFileNames{})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, imageIDs(subset.Images))
	require.Len(t, subset.Annotations, 1)
	assert.Equal(t, int64(3), subset.Annotations[0].ImageID)
}

func TestCreateSubset_FileMapping(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := newDatasetBuilder().image(1).image(2).box(1, 1, 10).box(2, 1, 10).build()

	dir := "/split/images"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "renamed.png"), nil, 0644))

	subset, err := CreateSubset(fs, data, dir, FileMapping{"renamed.png": 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, imageIDs(subset.Images))

	_, err = CreateSubset(fs, data, dir, FileMapping{})
	assert.True(t, errors.Is(err, ErrUnknownFile))
}

func TestWriteSubset_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := newDatasetBuilder().
		image(1).image(2).image(3).image(4).
		box(1, 1, 10).box(2, 3, 20).box(3, 1, 30).box(3, 3, 1).box(4, 18, 40).
		build()
	categories := []string{"person", "car"}

	files := data.FilterCategories(FilterOptions{Labels: categories})
	sample, err := data.SampleBalanced(files, SampleOptions{Size: 2, Categories: categories})
	require.NoError(t, err)

	// Simulate the download of the sampled images.
	dirs := Layout{Root: "/data"}.Split(TrainingSplit)
	require.NoError(t, fs.MkdirAll(dirs.Images, 0755))
	require.NoError(t, fs.MkdirAll(dirs.Data, 0755))
	for _, name := range sample.FileNames() {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dirs.Images, name), nil, 0644))
	}

	path := filepath.Join(dirs.Data, "train.json")
	for run := 0; run < 2; run++ {
		subset, err := CreateSubset(fs, data, dirs.Images, MatchFileNames{})
		require.NoError(t, err)
		require.NoError(t, WriteSubset(fs, path, subset))

		reloaded, err := LoadDataset(fs, path)
		require.NoError(t, err)
		assert.Equal(t, imageIDs(sample.Images), imageIDs(reloaded.Images))
		if diff := cmp.Diff(subset, reloaded); diff != "" {
			t.Errorf("reloaded subset differs (-written +reloaded):\n%s", diff)
		}
	}

	// Only the document itself is left in the data directory.
	files2, err := afero.ReadDir(fs, dirs.Data)
	require.NoError(t, err)
	require.Len(t, files2, 1)
	assert.Equal(t, "train.json", files2[0].Name())
}

func TestLoadDataset_Missing(t *testing.T) {
	_, err := LoadDataset(afero.NewMemMapFs(), "/nope.json")
	assert.True(t, errors.Is(err, ErrMissingInput))
}
