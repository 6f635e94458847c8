// Package sketcherr defines the shared error taxonomy used by every sketch
// package and the parallel engine, following the flat sentinel-error style
// of the teacher server's error handling: a small set of package-level
// values matched with errors.Is, wrapped with fmt.Errorf for context at the
// call site.
package sketcherr

import "errors"

var (
	// ErrConfig is returned when a sketch is constructed with invalid
	// parameters (out-of-range p, non-positive width/depth, an unrecognized
	// CMS variant, num_reserved at or past a counter's storage max, ...).
	ErrConfig = errors.New("sketch: invalid configuration")

	// ErrIncompatibleSketch is returned by Merge when the receiver and the
	// argument were built with different, merge-relevant configuration.
	ErrIncompatibleSketch = errors.New("sketch: incompatible sketch for merge")

	// ErrFormat is returned by Load when the serialized bytes are the wrong
	// magic, an unsupported version, or of a size inconsistent with the
	// declared dimensions.
	ErrFormat = errors.New("sketch: invalid or corrupted serialized data")

	// ErrWorkerFailure is returned by the parallel engine when a worker's
	// process function returns an error; the session is aborted and no
	// partial result is returned.
	ErrWorkerFailure = errors.New("sketch: worker failed during parallel add")
)
