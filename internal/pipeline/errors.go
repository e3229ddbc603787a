package pipeline

import "errors"

var (
	// ErrNoInput is returned when a Job names neither a local file nor a URL.
	ErrNoInput = errors.New("pipeline: job has neither input path nor url")
)
