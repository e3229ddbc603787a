package transcribe

import "errors"

// ErrAPIKeyMissing indicates OPENAI_API_KEY (or the configured provider key)
// is not set.
var ErrAPIKeyMissing = errors.New("API key not configured")

// ErrDiarizationUnsupported names the case where the remote service rejects
// a diarized request as unsupported. Transcribe does not return it: it
// detects that case by matching the error text against
// diarizationUnsupportedSignals and falls back once to a plain request.
var ErrDiarizationUnsupported = errors.New("diarization not supported for this request")
