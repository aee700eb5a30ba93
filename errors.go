package coco2yolo

import "github.com/pkg/errors"

// Error kinds returned by the pipeline. Use errors.Is or errors.Cause to test for them.
var (
	ErrMissingInput   = errors.New("missing input")
	ErrInvalidQuota   = errors.New("invalid quota configuration")
	ErrUnknownFile    = errors.New("file has no image id")
	ErrImageTooLarge  = errors.New("image exceeds the target size")
	ErrImageNotPadded = errors.New("image does not have the canonical size")
	ErrFetch          = errors.New("fetch failed")
)
