// Package transcribe calls a remote speech-to-text service to transcribe a
// single chunk file and normalizes its reply into one shape regardless of
// which response_format the caller asked for.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drbasl/mediatranscribe/internal/apierr"
	"github.com/drbasl/mediatranscribe/internal/lang"
)

const (
	// defaultModel is used when the caller doesn't request a specific one.
	defaultModel = "whisper-1"

	// defaultBaseURL is the default remote service base URL.
	defaultBaseURL = "https://api.openai.com/v1"

	// transcriptionPath is appended to the base URL to reach the endpoint.
	transcriptionPath = "/audio/transcriptions"

	// defaultMaxRetries, defaultBaseDelay, defaultMaxDelay are the retry
	// defaults absent REQUEST_TIMEOUT/MAX_RETRIES/RETRY_DELAY overrides.
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second

	// defaultRequestTimeout bounds a single HTTP attempt.
	defaultRequestTimeout = 300 * time.Second

	// maxResponseSize guards against an unbounded read on a malformed reply.
	maxResponseSize = 10 * 1024 * 1024
)

// diarizationUnsupportedSignals are the substrings (matched
// case-insensitively against an error response body) that indicate the
// remote service rejected a diarized request as unsupported rather than
// failing for an unrelated reason. This is a revisitable heuristic: the
// service has no structured "diarization unsupported" error code, so a
// plain-text match is the only signal available.
var diarizationUnsupportedSignals = []string{"400", "not supported", "diarize", "speaker"}

// Segment is one timestamped span in a chunk-relative response.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}

// Response is the normalized transcription result: one shape regardless of
// whether the remote service replied with a bare string (response_format
// "text") or a structured JSON object. A nil and an empty Segments slice
// are equivalent; callers should not distinguish them.
type Response struct {
	Text     string
	Segments []Segment
}

// Options configures one transcription request.
type Options struct {
	Model                  string
	Language               lang.Language
	Prompt                 string
	Diarize                bool
	ResponseFormat         string // "json", "text", "srt", "verbose_json", "vtt"
	TimestampGranularities []string
}

// Transcriber transcribes a single chunk file.
type Transcriber interface {
	Transcribe(ctx context.Context, chunkPath string, opts Options) (Response, error)
}

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// fileOpener abstracts opening the chunk file so each retry attempt can
// reopen it; a streamed multipart body can't be rewound and replayed.
type fileOpener func(path string) (io.ReadCloser, error)

var _ Transcriber = (*OpenAITranscriber)(nil)

// OpenAITranscriber transcribes chunk files against an OpenAI-compatible
// /audio/transcriptions endpoint, retrying transient failures with
// exponential backoff.
type OpenAITranscriber struct {
	httpClient httpDoer
	open       fileOpener
	apiKey     string
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithMaxRetries sets the maximum number of total HTTP attempts for a chunk
// (not retries after the first; see apierr.RetryConfig).
func WithMaxRetries(n int) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if base > 0 {
			t.baseDelay = base
		}
		if max > 0 {
			t.maxDelay = max
		}
	}
}

// WithHTTPClient sets a custom HTTP client (for testing or proxying).
func WithHTTPClient(c httpDoer) TranscriberOption {
	return func(t *OpenAITranscriber) { t.httpClient = c }
}

// WithBaseURL sets a custom base URL (for testing, or OPENAI_API_BASE).
func WithBaseURL(url string) TranscriberOption {
	return func(t *OpenAITranscriber) { t.baseURL = strings.TrimSuffix(url, "/") }
}

// WithFileOpener overrides how chunk files are opened (for testing).
func WithFileOpener(open fileOpener) TranscriberOption {
	return func(t *OpenAITranscriber) { t.open = open }
}

// NewOpenAITranscriber creates an OpenAITranscriber authenticated with
// apiKey as a Bearer token.
func NewOpenAITranscriber(apiKey string, opts ...TranscriberOption) *OpenAITranscriber {
	t := &OpenAITranscriber{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path) // #nosec G304 -- path is an internally produced chunk file
		},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe sends chunkPath to the remote service and returns its
// normalized response.
//
// When opts.Diarize is set, Transcribe first attempts a diarized request.
// If that attempt fails with a response recognized as "diarization
// unsupported" (see diarizationUnsupportedSignals), it falls back to
// exactly one plain request with Diarize cleared — the result must be
// byte-equivalent to calling Transcribe with Diarize already false.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, chunkPath string, opts Options) (Response, error) {
	if !opts.Diarize {
		return t.transcribeWithRetry(ctx, chunkPath, opts)
	}

	resp, err := t.transcribeWithRetry(ctx, chunkPath, opts)
	if err == nil {
		return resp, nil
	}
	if !isDiarizationUnsupported(err) {
		return Response{}, err
	}

	plain := opts
	plain.Diarize = false
	return t.transcribeWithRetry(ctx, chunkPath, plain)
}

func isDiarizationUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, signal := range diarizationUnsupportedSignals {
		if strings.Contains(msg, strings.ToLower(signal)) {
			return true
		}
	}
	return false
}

// transcribeWithRetry wraps one transcription attempt with the retry
// policy: 429 and 5xx and timeouts are retried with exponential backoff up
// to maxRetries; any other 4xx is not retried. The chunk file is reopened
// on every attempt by transcribeHTTP itself.
func (t *OpenAITranscriber) transcribeWithRetry(ctx context.Context, chunkPath string, opts Options) (Response, error) {
	cfg := apierr.RetryConfig{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.baseDelay,
		MaxDelay:   t.maxDelay,
	}

	return apierr.RetryWithBackoff(ctx, cfg, func() (Response, error) {
		return t.transcribeHTTP(ctx, chunkPath, opts)
	}, isRetryableError)
}

func (t *OpenAITranscriber) transcribeHTTP(ctx context.Context, chunkPath string, opts Options) (Response, error) {
	file, err := t.open(chunkPath)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", apierr.ErrFileNotFound, err)
	}
	defer func() { _ = file.Close() }()

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	format := opts.ResponseFormat
	if format == "" {
		format = "json"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	fields := map[string]string{
		"model":           model,
		"response_format": format,
		"temperature":     "0",
	}
	if langCode := opts.Language.BaseCode(); langCode != "" {
		fields["language"] = langCode
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Response{}, fmt.Errorf("build request: %w", err)
		}
	}
	for _, g := range opts.TimestampGranularities {
		if err := mw.WriteField("timestamp_granularities[]", g); err != nil {
			return Response{}, fmt.Errorf("build request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	url := t.baseURL + transcriptionPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%w: %v", apierr.ErrCancelled, err)
		}
		return Response{}, fmt.Errorf("%w: %v", apierr.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", apierr.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, classifyStatus(resp.StatusCode, respBody)
	}

	return parseResponse(format, respBody)
}

// parseResponse normalizes either a structured JSON body or a bare-text
// body into a Response. A null "segments" field and an absent/empty
// "segments" field are treated identically: both produce a nil slice.
func parseResponse(format string, body []byte) (Response, error) {
	if format != "json" && format != "verbose_json" {
		return Response{Text: strings.TrimSpace(string(body))}, nil
	}

	var raw struct {
		Text     string `json:"text"`
		Segments []struct {
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Text    string  `json:"text"`
			Speaker string  `json:"speaker"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		// Some deployments return a bare JSON string for "text" format by
		// mistake; fall back to treating the body as raw text rather than
		// failing the whole chunk over a formatting quirk.
		return Response{Text: strings.TrimSpace(string(body))}, nil
	}

	resp := Response{Text: raw.Text}
	for _, s := range raw.Segments {
		resp.Segments = append(resp.Segments, Segment{
			Start: s.Start, End: s.End, Text: s.Text, Speaker: s.Speaker,
		})
	}
	return resp, nil
}

// statusError carries the HTTP status and body needed for classification
// and for the diarization-unsupported substring match.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote service returned %d: %s", e.status, e.body)
}

// classifyStatus maps an HTTP error response to an apierr sentinel.
func classifyStatus(status int, body []byte) error {
	se := &statusError{status: status, body: string(body)}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", apierr.ErrRateLimit, se)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %v", apierr.ErrTimeout, se)
	case status >= 500:
		return fmt.Errorf("%w: %v", apierr.ErrServer, se)
	case status >= 400:
		return fmt.Errorf("%w: %v", apierr.ErrBadRequest, se)
	default:
		return se
	}
}

// isRetryableError reports whether an attempt should be retried: rate
// limits, server errors, and timeouts are transient; everything else
// (including any other 4xx) is permanent.
func isRetryableError(err error) bool {
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrServer) || errors.Is(err, apierr.ErrTimeout) {
		return true
	}
	return false
}
