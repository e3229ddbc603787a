package writer

import "errors"

var (
	// ErrSegmentsRequired is returned by SRT/VTT writers when the
	// transcript has no timed segments to render as cues.
	ErrSegmentsRequired = errors.New("writer: format requires timestamped segments")
	// ErrUnknownFormat is returned by WriteFormat for an unrecognized format name.
	ErrUnknownFormat = errors.New("writer: unknown output format")
)
