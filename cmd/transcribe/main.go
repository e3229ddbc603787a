package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/drbasl/mediatranscribe/internal/apierr"
	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/cli"
	"github.com/drbasl/mediatranscribe/internal/ffmpeg"
	"github.com/drbasl/mediatranscribe/internal/ingest"
	"github.com/drbasl/mediatranscribe/internal/lang"
	"github.com/drbasl/mediatranscribe/internal/media"
	"github.com/drbasl/mediatranscribe/internal/metrics"
	"github.com/drbasl/mediatranscribe/internal/pipeline"
	"github.com/drbasl/mediatranscribe/internal/restructure"
	"github.com/drbasl/mediatranscribe/internal/template"
	"github.com/drbasl/mediatranscribe/internal/writer"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes: the first block mirrors the categories the original
// record/transcribe tool used; the second extends them to the stages a
// transcription job goes through that tool never had (ingest, chunk
// planning, checkpointing, canonical media validation, output writing).
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitUsage         = 2
	ExitSetup         = 3
	ExitValidation    = 4
	ExitTranscription = 5
	ExitRestructure   = 6
	ExitInterrupt     = 130
)

const (
	ExitIngest     = 7
	ExitChunking   = 8
	ExitCheckpoint = 9
	ExitMedia      = 10
	ExitWriter     = 11
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(registry)

	env := cli.NewEnv(cli.WithRecorder(recorder))

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr != "" {
		startMetricsServer(metricsAddr, registry, env)
	}

	rootCmd := &cobra.Command{
		Use:     "transcribe",
		Short:   "Transcribe audio/video files and URLs into text, subtitles, or structured notes",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.TranscribeCmd(env))
	rootCmd.AddCommand(cli.StructureCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// startMetricsServer exposes a Prometheus scrape endpoint in the
// background; a failure here is logged but never fails the run, since
// metrics are an observability aid, not a load-bearing dependency.
func startMetricsServer(addr string, gatherer prometheus.Gatherer, env *cli.Env) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(env.Stderr, "metrics server stopped: %v\n", err)
		}
	}()
}

// exitCode maps errors to the exit code table above.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	// Cobra doesn't expose typed errors, so we check for known error message patterns.
	// These patterns are stable across Cobra versions (tested with v1.8+).
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3): environment/toolchain preconditions.
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, cli.ErrAPIKeyMissing) ||
		errors.Is(err, cli.ErrDeepSeekKeyMissing) || errors.Is(err, cli.ErrUnsupportedProvider) ||
		errors.Is(err, ffmpeg.ErrUnsupportedPlatform) || errors.Is(err, ffmpeg.ErrChecksumMismatch) ||
		errors.Is(err, ffmpeg.ErrDownloadFailed) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4): bad input, bad flags.
	if errors.Is(err, cli.ErrInvalidDuration) || errors.Is(err, cli.ErrUnsupportedFormat) ||
		errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, template.ErrUnknown) ||
		errors.Is(err, cli.ErrOutputExists) || errors.Is(err, lang.ErrInvalid) ||
		errors.Is(err, cli.ErrInvalidProvider) {
		return ExitValidation
	}

	// Ingest errors (ExitIngest = 7): source download/caption-fetch failures.
	if errors.Is(err, ingest.ErrDownloadFailed) || errors.Is(err, ingest.ErrCaptionsNotFound) ||
		errors.Is(err, ingest.ErrAudioNotFound) || errors.Is(err, ingest.ErrBinaryUnavailable) {
		return ExitIngest
	}

	// Chunking errors (ExitChunking = 8): chunk planning/cutting failures.
	if errors.Is(err, chunk.ErrInvalidDuration) || errors.Is(err, chunk.ErrCutFailed) ||
		errors.Is(err, chunk.ErrFirstChunkFailed) {
		return ExitChunking
	}

	// Checkpoint errors (ExitCheckpoint = 9): resumable state corruption.
	if errors.Is(err, checkpoint.ErrCorrupt) || errors.Is(err, checkpoint.ErrAlreadyComplete) {
		return ExitCheckpoint
	}

	// Media errors (ExitMedia = 10): probe/transcode/canonical-format failures.
	if errors.Is(err, media.ErrProbeUnavailable) || errors.Is(err, media.ErrTranscodeFailed) ||
		errors.Is(err, media.ErrInvalidCanonicalAsset) || errors.Is(err, media.ErrTranscoderUnavailable) {
		return ExitMedia
	}

	// Writer errors (ExitWriter = 11): output-format failures.
	if errors.Is(err, writer.ErrSegmentsRequired) || errors.Is(err, writer.ErrUnknownFormat) {
		return ExitWriter
	}

	// Transcription errors (ExitTranscription = 5).
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrQuotaExceeded) ||
		errors.Is(err, apierr.ErrTimeout) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, pipeline.ErrNoInput) {
		return ExitTranscription
	}

	// Restructure errors (ExitRestructure = 6).
	if errors.Is(err, restructure.ErrTranscriptTooLong) {
		return ExitRestructure
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
