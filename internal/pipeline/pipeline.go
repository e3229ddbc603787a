// Package pipeline wires the individual transcription stages (media
// validation, chunk planning and cutting, checkpointed remote
// transcription, stitching, and post-processing) into one run, with C9's
// captions fast path short-circuiting everything from media validation
// through stitching when a URL's own captions are usable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/drbasl/mediatranscribe/internal/captions"
	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/engine"
	"github.com/drbasl/mediatranscribe/internal/ingest"
	"github.com/drbasl/mediatranscribe/internal/lang"
	"github.com/drbasl/mediatranscribe/internal/media"
	"github.com/drbasl/mediatranscribe/internal/metrics"
	"github.com/drbasl/mediatranscribe/internal/postprocess"
	"github.com/drbasl/mediatranscribe/internal/stitch"
)

// MediaProber validates and prepares a source file for chunking.
type MediaProber interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Transcode(ctx context.Context, srcPath, destPath string) error
	ValidateCanonical(path string) (*media.Asset, error)
}

// Chunker cuts a canonical asset into chunk files per plan.
type Chunker interface {
	Cut(ctx context.Context, sourcePath string, plan *chunk.Plan, outDir string) ([]chunk.Result, error)
}

// Downloader resolves a URL into local captions or audio.
type Downloader interface {
	FetchCaptions(ctx context.Context, url, lang, dir string) (ingest.CaptionFile, error)
	FetchAudio(ctx context.Context, url, dir string, transcode ingest.Transcoder) (ingest.MediaFile, error)
}

// Deps bundles every external collaborator pipeline.Run needs, so a run
// can be exercised in tests without real ffmpeg, yt-dlp, or network access.
type Deps struct {
	MediaProber       MediaProber
	Chunker           Chunker
	CheckpointStore   *checkpoint.Store
	TranscriberClient engine.Client
	Downloader        Downloader
	OnProgress        func(stage string)
	// Recorder receives per-chunk engine metrics. A nil Recorder is
	// treated as metrics.Noop() by internal/engine.
	Recorder metrics.Recorder
}

// Job describes one transcription request.
type Job struct {
	InputPath        string
	URL              string
	PreferCaptions   bool
	CaptionsLang     string
	Language         string
	Model            string
	Prompt           string
	Diarize          bool
	ResponseFormat   string
	ChunkDuration    time.Duration
	MaxBytesPerChunk int64
	BytesPerSecond   float64
	MaxParallel      int
	Glossary         *postprocess.Glossary
	LightFormat      bool
	WorkDir          string
	CheckpointDir    string
	Resume           bool
	KeepWorkDir      bool
}

// Result is the final, stitched, post-processed transcript.
type Result struct {
	Text         string
	Segments     []stitch.Segment
	Language     string
	Model        string
	ChunkCount   int
	UsedCaptions bool
}

// Run executes a job end to end. Any stage failure aborts the run; when a
// checkpoint directory is in use, progress already persisted by the
// engine survives the failure for a subsequent --resume.
func Run(ctx context.Context, job Job, deps Deps) (Result, error) {
	if job.InputPath == "" && job.URL == "" {
		return Result{}, ErrNoInput
	}

	progress := func(stage string) {
		if deps.OnProgress != nil {
			deps.OnProgress(stage)
		}
	}

	// === INGEST (C8 / C9) ===
	inputPath := job.InputPath
	if job.URL != "" {
		progress("ingest")

		if job.PreferCaptions {
			capLang := job.CaptionsLang
			if capLang == "" {
				capLang = job.Language
			}
			if capLang == "" {
				capLang = "en"
			}
			cf, err := deps.Downloader.FetchCaptions(ctx, job.URL, capLang, job.WorkDir)
			if err == nil {
				return captionsResult(cf, job), nil
			}
			if !errors.Is(err, ingest.ErrCaptionsNotFound) {
				return Result{}, fmt.Errorf("fetch captions: %w", err)
			}
			// No usable captions; fall through to the audio path below.
		}

		transcodeFn := func(ctx context.Context, src, dest string) error {
			return deps.MediaProber.Transcode(ctx, src, dest)
		}
		mf, err := deps.Downloader.FetchAudio(ctx, job.URL, job.WorkDir, transcodeFn)
		if err != nil {
			return Result{}, fmt.Errorf("fetch audio: %w", err)
		}
		inputPath = mf.Path
	}

	if !job.KeepWorkDir {
		defer func() { _ = os.RemoveAll(job.WorkDir) }()
	}

	// === VALIDATION (C1) ===
	progress("validate")

	canonicalPath := filepath.Join(job.WorkDir, "canonical.wav")
	asset, err := validateAsset(ctx, deps.MediaProber, inputPath, canonicalPath, job.URL != "", job.MaxBytesPerChunk)
	if err != nil {
		return Result{}, err
	}

	// === CHECKPOINT LOOKUP (C4) ===
	progress("checkpoint")

	fingerprint, err := checkpoint.FingerprintFile(asset.Path)
	if err != nil {
		return Result{}, fmt.Errorf("fingerprint source: %w", err)
	}
	checkpointPath := checkpoint.PathFor(job.CheckpointDir, fingerprint)

	var cp *checkpoint.Checkpoint
	if job.Resume {
		loaded, loadErr := deps.CheckpointStore.Load(checkpointPath, fingerprint)
		if loadErr == nil {
			cp = loaded
		} else if !errors.Is(loadErr, checkpoint.ErrNotFound) {
			return Result{}, fmt.Errorf("load checkpoint: %w", loadErr)
		}
	}

	// === CHUNK PLANNING (C2) ===
	progress("plan")

	plan, err := chunk.PlanChunks(asset.Duration, job.ChunkDuration, job.MaxBytesPerChunk, job.BytesPerSecond)
	if err != nil {
		return Result{}, fmt.Errorf("plan chunks: %w", err)
	}
	if cp == nil {
		cp = checkpoint.New(fingerprint, asset.Path, plan)
	}

	// === CHUNK CUTTING (C3) ===
	progress("cut")

	files, err := deps.Chunker.Cut(ctx, asset.Path, plan, job.WorkDir)
	if err != nil {
		return Result{}, fmt.Errorf("cut chunks: %w", err)
	}
	if oversized := countOversized(files); oversized > 0 {
		progress(fmt.Sprintf("cut:oversized=%d", oversized))
	}
	cp.SetFilePaths(files)

	// === TRANSCRIPTION (C5 / C6) ===
	progress("transcribe")

	engineOpts := engine.Options{
		Model:          job.Model,
		LanguageCode:   job.Language,
		Prompt:         job.Prompt,
		Diarize:        job.Diarize,
		ResponseFormat: job.ResponseFormat,
		MaxParallel:    job.MaxParallel,
		Recorder:       deps.Recorder,
	}
	if err := engine.Run(ctx, deps.TranscriberClient, files, deps.CheckpointStore, checkpointPath, cp, engineOpts); err != nil {
		return Result{}, fmt.Errorf("transcribe chunks: %w", err)
	}

	// === STITCHING (C7) ===
	progress("stitch")

	pieces := completedPieces(cp)
	text := stitch.Text(pieces)
	segments := stitch.Segments(pieces)

	// === POST-PROCESS (C10) ===
	progress("postprocess")

	text = postprocess.Apply(text, job.Glossary, job.LightFormat)

	if err := deps.CheckpointStore.Discard(checkpointPath); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("discard checkpoint: %w", err)
	}

	return Result{
		Text:       text,
		Segments:   segments,
		Language:   job.Language,
		Model:      job.Model,
		ChunkCount: len(plan.Specs),
	}, nil
}

// validateAsset prepares inputPath into a canonical WAV at canonicalPath.
// alreadyCanonical skips the transcode step for audio the ingestor already
// transcoded itself (FetchAudio's Transcoder closes over MediaProber.Transcode).
//
// Duration is sourced from prober.Probe first; a probe failure degrades to
// an unknown duration (0) rather than aborting the run (ErrProbeUnavailable,
// §7), and the probed value backfills ValidateCanonical's decoded duration
// whenever the WAV header itself couldn't yield one.
func validateAsset(ctx context.Context, prober MediaProber, inputPath, canonicalPath string, alreadyCanonical bool, maxBytesPerChunk int64) (*media.Asset, error) {
	probedDuration, _ := prober.Probe(ctx, inputPath)

	if alreadyCanonical {
		asset, err := prober.ValidateCanonical(inputPath)
		if err != nil {
			return nil, err
		}
		backfillDuration(asset, probedDuration)
		return asset, nil
	}

	if err := prober.Transcode(ctx, inputPath, canonicalPath); err != nil {
		if fallback, ok := audioFallbackAsset(inputPath, maxBytesPerChunk, probedDuration); ok {
			return fallback, nil
		}
		return nil, fmt.Errorf("transcode to canonical asset: %w", err)
	}

	asset, err := prober.ValidateCanonical(canonicalPath)
	if err != nil {
		return nil, err
	}
	backfillDuration(asset, probedDuration)
	return asset, nil
}

// backfillDuration fills in asset.Duration from probedDuration when the
// canonical decode itself couldn't determine one.
func backfillDuration(asset *media.Asset, probedDuration time.Duration) {
	if asset.Duration <= 0 && probedDuration > 0 {
		asset.Duration = probedDuration
	}
}

// audioFallbackAsset implements §4.1's transcode-failure fallback: an
// audio-kind input already within the chunk size ceiling is used as-is
// instead of failing the run, on the theory that a single oversized chunk
// is recoverable downstream but a fatal transcode error is not. Any other
// input (video, or audio already too large to chunk whole) is fatal.
func audioFallbackAsset(inputPath string, maxBytesPerChunk int64, probedDuration time.Duration) (*media.Asset, bool) {
	if !media.IsAudioFile(inputPath) {
		return nil, false
	}
	if maxBytesPerChunk <= 0 {
		return nil, false
	}
	info, err := os.Stat(inputPath)
	if err != nil || info.Size() > maxBytesPerChunk {
		return nil, false
	}
	return &media.Asset{Path: inputPath, Duration: probedDuration}, true
}

// completedPieces builds the stitch input from every completed chunk in
// cp, in whatever order the checkpoint stores them; stitch.Text and
// stitch.Segments both sort by index internally.
func completedPieces(cp *checkpoint.Checkpoint) []stitch.Piece {
	pieces := make([]stitch.Piece, 0, len(cp.Chunks))
	for _, cs := range cp.Chunks {
		if !cs.Completed || cs.Result == nil {
			continue
		}
		pieces = append(pieces, stitch.Piece{Spec: cs.Spec, Result: *cs.Result})
	}
	return pieces
}

// captionsResult builds the short-circuited C9 result directly from
// downloaded captions, skipping media validation, chunking, and remote
// transcription entirely.
func captionsResult(cf ingest.CaptionFile, job Job) Result {
	capSegs := captions.Parse(cf.VTT)
	segments := make([]stitch.Segment, len(capSegs))
	for i, s := range capSegs {
		segments[i] = stitch.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}

	text := captions.Merged(cf.VTT)
	text = postprocess.Apply(text, job.Glossary, job.LightFormat)

	language := job.Language
	if language == "" {
		language = lang.Normalize(cf.Lang)
	}

	return Result{
		Text:         text,
		Segments:     segments,
		Language:     language,
		Model:        "captions",
		ChunkCount:   0,
		UsedCaptions: true,
	}
}

// countOversized reports how many cut results exceeded the chunk plan's
// byte ceiling and were not re-encoded back under it.
func countOversized(files []chunk.Result) int {
	n := 0
	for _, f := range files {
		if f.Oversized {
			n++
		}
	}
	return n
}
