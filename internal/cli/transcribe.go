package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/config"
	"github.com/drbasl/mediatranscribe/internal/lang"
	"github.com/drbasl/mediatranscribe/internal/media"
	"github.com/drbasl/mediatranscribe/internal/pipeline"
	"github.com/drbasl/mediatranscribe/internal/postprocess"
	"github.com/drbasl/mediatranscribe/internal/template"
	"github.com/drbasl/mediatranscribe/internal/writer"
)

// canonicalBytesPerSecond is the byte rate of the canonical PCM s16le /
// 16kHz / mono asset every chunk is cut from: used to derive the
// size-driven chunk duration ceiling.
const canonicalBytesPerSecond = float64(media.CanonicalSampleRate * (media.CanonicalBitDepth / 8) * media.CanonicalChannels)

// maxBytesPerChunkCeiling is the remote service's hard per-request payload
// limit; --max-bytes-per-chunk is silently clamped to it.
const maxBytesPerChunkCeiling = 25 * 1024 * 1024

// defaultMaxBytesPerChunk is used when --max-bytes-per-chunk is unset.
const defaultMaxBytesPerChunk = 24 * 1024 * 1024

// TranscribeCmd creates the transcribe command. The env parameter provides
// injectable dependencies for testing.
func TranscribeCmd(env *Env) *cobra.Command {
	var (
		output           string
		outputFormat     string
		language         string
		model            string
		diarize          bool
		chunkMinutes     int
		maxBytesPerChunk int64
		glossaryPath     string
		resume           bool
		urlMode          string
		keepWorkDir      bool
		parallel         int
		tmpl             string
		provider         string
		outputLang       string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <source>",
		Short: "Transcribe a local media file or a URL",
		Long: `Transcribe a local audio/video file, or a URL resolved via yt-dlp, into text.

The source is normalized to a canonical mono WAV, split into chunks that
respect the remote service's payload ceiling, transcribed chunk by chunk
with resumable checkpointing, stitched back into one gap-free transcript,
and optionally restructured with an LLM (--template).`,
		Example: `  transcribe session.mp4 -o notes.md
  transcribe meeting.wav --diarize --output-format structured
  transcribe https://example.com/watch?v=xyz --url-mode captions
  transcribe lecture.m4a --template summarize --output-lang fr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, env, args[0], transcribeFlags{
				output:           output,
				outputFormat:     outputFormat,
				language:         language,
				model:            model,
				diarize:          diarize,
				chunkMinutes:     chunkMinutes,
				maxBytesPerChunk: maxBytesPerChunk,
				glossaryPath:     glossaryPath,
				resume:           resume,
				urlMode:          urlMode,
				keepWorkDir:      keepWorkDir,
				parallel:         parallel,
				template:         tmpl,
				provider:         provider,
				outputLang:       outputLang,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: <input>.<format-ext>)")
	cmd.Flags().StringVar(&outputFormat, "output-format", "plain", "Output shape: plain, structured, subtitle")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Source language (ISO 639-1 code, e.g., en, fr); empty = auto-detect")
	cmd.Flags().StringVar(&model, "model", "whisper-1", "Transcription model identifier")
	cmd.Flags().BoolVar(&diarize, "diarize", false, "Request speaker labels")
	cmd.Flags().IntVar(&chunkMinutes, "chunk-minutes", 10, "Target chunk duration in minutes")
	cmd.Flags().Int64Var(&maxBytesPerChunk, "max-bytes-per-chunk", defaultMaxBytesPerChunk, "Max bytes per chunk (clamped to 25 MiB)")
	cmd.Flags().StringVar(&glossaryPath, "glossary", "", "Path to a TERM => REPLACEMENT glossary file")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume a previously interrupted run from its checkpoint")
	cmd.Flags().StringVar(&urlMode, "url-mode", "audio", "URL ingestion mode: captions or audio")
	cmd.Flags().BoolVar(&keepWorkDir, "keep-work-dir", false, "Keep the job's working directory after a successful run")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Max concurrent chunk uploads")
	cmd.Flags().StringVarP(&tmpl, "template", "t", "", "Post-transcription action: summarize, translate, rewrite")
	cmd.Flags().StringVar(&provider, "provider", ProviderOpenAI, "LLM provider for the template action: openai, deepseek")
	cmd.Flags().StringVar(&outputLang, "output-lang", "", "Output language for the template action (requires --template)")

	return cmd
}

type transcribeFlags struct {
	output           string
	outputFormat     string
	language         string
	model            string
	diarize          bool
	chunkMinutes     int
	maxBytesPerChunk int64
	glossaryPath     string
	resume           bool
	urlMode          string
	keepWorkDir      bool
	parallel         int
	template         string
	provider         string
	outputLang       string
}

// outputExtensions maps a writer format to its conventional file extension.
var outputExtensions = map[string]string{
	"text": ".txt",
	"json": ".json",
	"srt":  ".srt",
	"vtt":  ".vtt",
}

// outputFormatToWriter maps spec.md's output_format vocabulary (plain,
// structured, subtitle) onto internal/writer's concrete formats.
func outputFormatToWriter(shape string) (string, error) {
	switch shape {
	case "plain":
		return "text", nil
	case "structured":
		return "json", nil
	case "subtitle":
		return "srt", nil
	default:
		return "", fmt.Errorf("unknown --output-format %q (want plain, structured, or subtitle)", shape)
	}
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func deriveTranscribeOutputPath(source, ext string) string {
	base := filepath.Base(source)
	if trimmed := strings.TrimSuffix(base, filepath.Ext(base)); trimmed != "" {
		base = trimmed
	}
	return base + ext
}

// runTranscribe builds a pipeline.Job from validated flags, runs it, and
// writes the result (optionally restructured) to disk.
func runTranscribe(cmd *cobra.Command, env *Env, source string, flags transcribeFlags) error {
	ctx := cmd.Context()

	// === VALIDATION ===

	if !isURL(source) {
		if _, err := os.Stat(source); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, source)
			}
			return fmt.Errorf("cannot access input file: %w", err)
		}
	}

	if _, err := lang.Parse(flags.language); err != nil {
		return err
	}
	if _, err := lang.Parse(flags.outputLang); err != nil {
		return err
	}
	if flags.outputLang != "" && flags.template == "" {
		return fmt.Errorf("--output-lang requires --template (raw transcripts use the source language)")
	}

	var tmplName template.Name
	if flags.template != "" {
		tn, err := template.ParseName(flags.template)
		if err != nil {
			return err
		}
		tmplName = tn
	}

	if flags.provider != ProviderOpenAI && flags.provider != ProviderDeepSeek {
		return ErrUnsupportedProvider
	}

	preferCaptions := false
	switch {
	case !isURL(source):
		// local file: url-mode is not applicable.
	case flags.urlMode == "captions":
		preferCaptions = true
	case flags.urlMode == "audio":
		preferCaptions = false
	default:
		return fmt.Errorf("unknown --url-mode %q (want captions or audio)", flags.urlMode)
	}

	if flags.chunkMinutes < 1 {
		return fmt.Errorf("%w: --chunk-minutes must be >= 1", ErrInvalidDuration)
	}
	maxBytes := flags.maxBytesPerChunk
	if maxBytes <= 0 || maxBytes > maxBytesPerChunkCeiling {
		maxBytes = maxBytesPerChunkCeiling
	}

	var glossary *postprocess.Glossary
	if flags.glossaryPath != "" {
		// #nosec G304 -- glossary path is an operator-supplied CLI flag
		f, err := os.Open(flags.glossaryPath)
		if err != nil {
			return fmt.Errorf("open glossary: %w", err)
		}
		g, err := postprocess.ParseGlossary(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("parse glossary: %w", err)
		}
		glossary = g
	}

	openaiKey := env.Getenv(EnvOpenAIAPIKey)
	if openaiKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, EnvOpenAIAPIKey)
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}

	defaults, err := config.LoadJobDefaults()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load job defaults: %v\n", err)
	}
	overrides := config.PipelineJobOverrides{
		Language:         flags.language,
		Model:            flags.model,
		OutputFormat:     flags.outputFormat,
		ChunkDuration:    time.Duration(flags.chunkMinutes) * time.Minute,
		MaxBytesPerChunk: maxBytes,
		Diarize:          flags.diarize,
	}
	config.ApplyJobDefaults(&overrides, defaults)

	writerFormat, err := outputFormatToWriter(overrides.OutputFormat)
	if err != nil {
		return err
	}

	ext := outputExtensions[writerFormat]
	defaultOutput := deriveTranscribeOutputPath(source, ext)
	outputPath := config.ResolveOutputPath(flags.output, cfg.OutputDir, defaultOutput)

	// === SETUP ===

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)

	workDir, err := os.MkdirTemp("", "transcribe-job-*")
	if err != nil {
		return fmt.Errorf("create job working directory: %w", err)
	}

	job := pipeline.Job{
		Language:         overrides.Language,
		Model:            overrides.Model,
		Diarize:          overrides.Diarize,
		ResponseFormat:   "verbose_json",
		ChunkDuration:    overrides.ChunkDuration,
		MaxBytesPerChunk: overrides.MaxBytesPerChunk,
		BytesPerSecond:   canonicalBytesPerSecond,
		MaxParallel:      clampParallel(flags.parallel),
		Glossary:         glossary,
		WorkDir:          workDir,
		CheckpointDir:    workDir,
		Resume:           flags.resume,
		KeepWorkDir:      flags.keepWorkDir,
	}
	if isURL(source) {
		job.URL = source
		job.PreferCaptions = preferCaptions
	} else {
		job.InputPath = source
	}

	deps := env.PipelineRunner.NewRunner(ffmpegPath, openaiKey, env.Recorder)
	deps.CheckpointStore = checkpoint.NewStore()
	deps.OnProgress = func(stage string) {
		fmt.Fprintf(env.Stderr, "%s...\n", stage)
	}

	// === RUN ===

	result, err := pipeline.Run(ctx, job, deps)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	finalText := result.Text
	if flags.template != "" && strings.TrimSpace(finalText) != "" {
		fmt.Fprintf(env.Stderr, "Applying template '%s' (provider: %s)...\n", flags.template, flags.provider)

		outputLangParsed, _ := lang.Parse(flags.outputLang)
		restructured, err := restructureContent(ctx, env, finalText, RestructureOptions{
			Template:   tmplName,
			Provider:   MustParseProvider(flags.provider),
			OutputLang: outputLangParsed,
			OnProgress: defaultProgressCallback(env.Stderr),
		})
		if err != nil {
			return err
		}
		finalText = restructured
	}

	// === WRITE OUTPUT ===

	t := writer.Transcript{
		Text:      finalText,
		Language:  result.Language,
		Model:     result.Model,
		InputFile: source,
		Chunks:    result.ChunkCount,
		Segments:  result.Segments,
	}
	if err := writer.WriteFormat(writerFormat, t, outputPath); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Done: %s\n", outputPath)
	return nil
}

// clampParallel constrains parallel request count to a sane range.
func clampParallel(n int) int {
	const maxParallel = 10
	if n < 1 {
		return 1
	}
	if n > maxParallel {
		return maxParallel
	}
	return n
}
