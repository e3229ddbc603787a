package checkpoint

import "errors"

var (
	// ErrNotFound indicates no checkpoint file exists at the expected path.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt indicates the checkpoint file exists but failed to parse.
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrAlreadyComplete indicates a caller attempted to mark an already
	// completed chunk complete again. Any second MarkComplete for an index
	// is rejected, whatever result it carries.
	ErrAlreadyComplete = errors.New("chunk already marked complete")
)
