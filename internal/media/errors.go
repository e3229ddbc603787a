package media

import "errors"

var (
	// ErrProbeUnavailable indicates duration could not be determined. This is
	// non-fatal: callers degrade to an unknown-duration single-chunk plan.
	ErrProbeUnavailable = errors.New("media probe unavailable")

	// ErrTranscoderUnavailable indicates the ffmpeg binary could not be
	// located or invoked at all. This package's own functions do not return
	// it; Transcode reports a missing binary as ErrTranscodeFailed.
	ErrTranscoderUnavailable = errors.New("transcoder unavailable")

	// ErrTranscodeFailed indicates ffmpeg ran but produced no usable output,
	// or the input was rejected as corrupt.
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrInvalidCanonicalAsset indicates the transcoded file does not match
	// the canonical format (PCM s16le, 16kHz, mono).
	ErrInvalidCanonicalAsset = errors.New("transcoded asset is not canonical PCM16 16kHz mono")
)
