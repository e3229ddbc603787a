package ingest

import "errors"

var (
	// ErrBinaryUnavailable means yt-dlp could not be located on PATH.
	ErrBinaryUnavailable = errors.New("ingest: yt-dlp not found on PATH")
	// ErrDownloadFailed means yt-dlp ran but exited non-zero.
	ErrDownloadFailed = errors.New("ingest: yt-dlp download failed")
	// ErrCaptionsNotFound means no VTT file (manual or auto) appeared for the requested language.
	ErrCaptionsNotFound = errors.New("ingest: captions not found for requested language")
	// ErrAudioNotFound means yt-dlp reported success but no recognized audio file appeared.
	ErrAudioNotFound = errors.New("ingest: no audio file found after download")
)
