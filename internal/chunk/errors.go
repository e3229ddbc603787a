package chunk

import "errors"

// Sentinel errors for chunk planning and cutting.
var (
	// ErrInvalidDuration indicates a non-positive requested chunk duration was
	// supplied. A non-positive source duration is not an error; it yields a
	// single-chunk plan.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrCutFailed indicates ffmpeg could not extract a chunk from the source asset.
	ErrCutFailed = errors.New("chunk cut failed")

	// ErrFirstChunkFailed indicates the index-0 cut failed and the single-chunk
	// fallback over the original asset also failed.
	ErrFirstChunkFailed = errors.New("first chunk cut failed")
)
