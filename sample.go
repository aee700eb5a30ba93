package coco2yolo

import (
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Distribute splits total into units parts that differ by at most one. The first total%units parts
// get the extra unit, so the parts always add up to total.
func Distribute(total, units int) ([]int, error) {
	if units <= 0 {
		return nil, errors.Wrapf(ErrInvalidQuota, "cannot distribute over %d categories", units)
	}
	if total < 0 {
		return nil, errors.Wrapf(ErrInvalidQuota, "negative sample size %d", total)
	}

	base, extra := total/units, total%units
	parts := make([]int, units)
	for i := range parts {
		parts[i] = base
		if i < extra {
			parts[i]++
		}
	}
	return parts, nil
}

// SampleOptions configures SampleBalanced.
type SampleOptions struct {
	Size       int      // The requested total number of images.
	Categories []string // The category names to balance across.
	Exclude    []string // File names that must not be selected.
}

// Sample is the result of balanced sampling.
type Sample struct {
	Images      []Image       // The selected images, in dataset order.
	Annotations []Annotation  // The annotation that won the selection of each image.
	Quotas      map[int64]int // The number of images requested per category id.
	Selected    map[int64]int // The number of images selected per category id.
}

// SampleBalanced selects images from files so that the categories are represented as evenly as
// possible.
//
// Each image is represented by its single largest bounding box within the requested categories;
// ties are broken by the original annotation order. Each category then contributes up to its quota
// of images, largest boxes first. A category with too few images is not topped up from the others,
// so fewer than opts.Size images may be returned.
func (data *Dataset) SampleBalanced(files Eligible, opts SampleOptions) (*Sample, error) {
	if len(opts.Categories) == 0 {
		return nil, errors.Wrap(ErrInvalidQuota, "no categories to sample")
	}
	quotas, err := Distribute(opts.Size, len(opts.Categories))
	if err != nil {
		return nil, err
	}

	// Quotas follow the dataset category order. Slots for names that do not resolve go unused.
	categoryIDs := data.CategoryIDs(opts.Categories)
	if len(categoryIDs) < len(opts.Categories) {
		log.Warnf("Only %d of %d requested categories exist in the annotations",
			len(categoryIDs), len(opts.Categories))
	}
	sample := &Sample{
		Quotas:   make(map[int64]int, len(categoryIDs)),
		Selected: make(map[int64]int, len(categoryIDs)),
	}
	for i, id := range categoryIDs {
		if i == len(quotas) {
			break
		}
		sample.Quotas[id] = quotas[i]
	}

	// Restrict to the eligible images, minus the exclusions.
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = true
	}
	eligible := make(idSet, len(files))
	for name, id := range files {
		if !excluded[name] {
			eligible.add(id)
		}
	}

	// Candidates in original order, then stable sort by descending area.
	candidates := make([]Annotation, 0, len(eligible))
	for _, a := range data.Annotations {
		if _, ok := sample.Quotas[a.CategoryID]; ok && eligible.has(a.ImageID) {
			candidates = append(candidates, a)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Area > candidates[j].Area
	})

	// Keep the largest box per image and fill the category quotas in the same pass. The order of
	// candidates is preserved within each category, so this equals dedup then group-by.
	seen := make(idSet, len(eligible))
	selected := make(idSet)
	for _, a := range candidates {
		if seen.has(a.ImageID) {
			continue
		}
		seen.add(a.ImageID)

		if sample.Selected[a.CategoryID] >= sample.Quotas[a.CategoryID] {
			continue
		}
		sample.Selected[a.CategoryID]++
		sample.Annotations = append(sample.Annotations, a)
		selected.add(a.ImageID)
	}

	for _, img := range data.Images {
		if selected.has(img.ID) {
			sample.Images = append(sample.Images, img)
		}
	}

	names := data.CategoryNames()
	for _, id := range categoryIDs {
		if got, want := sample.Selected[id], sample.Quotas[id]; got < want {
			log.Warnf("Category %q is short by %d images (%d of %d)", names[id], want-got, got, want)
		}
	}
	log.Printf("Selected %d of %d requested images", len(sample.Images), opts.Size)

	return sample, nil
}

// FileNames returns the file names of the sampled images.
func (s *Sample) FileNames() []string {
	names := make([]string, len(s.Images))
	for i, img := range s.Images {
		names[i] = img.FileName
	}
	return names
}
