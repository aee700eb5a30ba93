package coco2yolo

import (
	log "github.com/sirupsen/logrus"
)

// Eligible maps image file names to image ids.
type Eligible map[string]int64

// FilterOptions configures FilterCategories.
type FilterOptions struct {
	Labels             []string // Category names to keep.
	IncludeCrowds      bool     // Keep images with iscrowd annotations.
	MaxImageCategories int      // Drop images with more annotations. Zero disables the filter.
}

// FilterCategories returns the images that have at least one annotation with a category in
// opts.Labels, keyed by file name.
//
// Unless opts.IncludeCrowds is set, an image with any crowd annotation is removed along with all of
// its annotations, crowd or not. Images with more than opts.MaxImageCategories annotations are
// removed as a whole as well. The counts cover every annotation of an image, not only those in the
// requested categories.
func (data *Dataset) FilterCategories(opts FilterOptions) Eligible {
	categories := newIDSet(data.CategoryIDs(opts.Labels)...)
	if len(categories) == 0 {
		log.Warnf("None of the categories %q exist in the annotations", opts.Labels)
	}

	// Images touched by at least one annotation of a requested category.
	candidates := make(idSet)
	for _, a := range data.Annotations {
		if categories.has(a.CategoryID) {
			candidates.add(a.ImageID)
		}
	}

	// Membership is by image: a single crowd annotation disqualifies the whole image.
	crowded := make(idSet)
	if !opts.IncludeCrowds {
		for _, a := range data.Annotations {
			if a.IsCrowd == 1 {
				crowded.add(a.ImageID)
			}
		}
	}

	// Count the surviving annotations per image.
	counts := make(map[int64]int, len(candidates))
	for _, a := range data.Annotations {
		if candidates.has(a.ImageID) && !crowded.has(a.ImageID) {
			counts[a.ImageID]++
		}
	}

	kept := make(idSet, len(counts))
	numTooBusy := 0
	for id, n := range counts {
		if opts.MaxImageCategories > 0 && n > opts.MaxImageCategories {
			numTooBusy++
			continue
		}
		kept.add(id)
	}

	files := make(Eligible, len(kept))
	for _, img := range data.Images {
		if kept.has(img.ID) {
			files[img.FileName] = img.ID
		}
	}

	log.Printf("Filtered %d candidate images to %d (%d crowded, %d with too many objects)",
		len(candidates), len(files), countIn(crowded, candidates), numTooBusy)
	return files
}

// countIn returns the number of ids in s that are also in other.
func countIn(s, other idSet) int {
	n := 0
	for id := range s {
		if other.has(id) {
			n++
		}
	}
	return n
}
