// Package media probes a source file for duration and transcodes it into
// the canonical asset format the rest of the pipeline assumes: PCM s16le,
// 16kHz, mono WAV.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/drbasl/mediatranscribe/internal/ffmpeg"
)

// CanonicalSampleRate and CanonicalBitDepth describe the asset format every
// downstream component (chunk cutting, remote transcription) assumes.
const (
	CanonicalSampleRate = 16000
	CanonicalBitDepth   = 16
	CanonicalChannels   = 1
)

// durationPattern matches ffmpeg's "Duration: HH:MM:SS.ms" line, written to
// stderr for both -i probes and real transcodes.
var durationPattern = regexp.MustCompile(`Duration:\s*(\d{2}):(\d{2}):(\d{2})\.(\d{2,3})`)

// videoExtensions and audioExtensions classify a source file by its
// extension alone, mirroring the reference implementation's
// ALLOWED_VIDEO_EXTENSIONS / ALLOWED_AUDIO_EXTENSIONS.
var (
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true, ".flv": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".ogg": true, ".flac": true, ".wma": true,
	}
)

// IsVideoFile reports whether path's extension is a recognized video
// container.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsAudioFile reports whether path's extension is a recognized audio
// container.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Asset describes a canonical, on-disk audio file ready for chunking.
type Asset struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	BitDepth   int
	Channels   int
}

// Probe runs ffmpeg against path and extracts its duration from the
// diagnostic output. A source ffmpeg can't open or describe returns
// ErrProbeUnavailable; callers are expected to treat this as non-fatal and
// fall back to an unknown-duration plan.
func Probe(ctx context.Context, executor *ffmpeg.Executor, ffmpegPath, path string) (time.Duration, error) {
	output, _ := executor.RunOutput(ctx, ffmpegPath, []string{"-i", path, "-f", "null", "-"})

	d, ok := parseDuration(output)
	if !ok {
		return 0, fmt.Errorf("%w: could not parse duration for %s", ErrProbeUnavailable, path)
	}
	return d, nil
}

func parseDuration(output string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	frac, _ := strconv.Atoi(m[4])
	fracDigits := len(m[4])
	fracNanos := frac
	for i := fracDigits; i < 9; i++ {
		fracNanos *= 10
	}

	total := time.Duration(h)*time.Hour +
		time.Duration(mi)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(fracNanos)
	return total, true
}

// Transcode converts srcPath into the canonical WAV format at destPath,
// honoring ctx cancellation by asking ffmpeg to shut down gracefully before
// the timeout elapses. A missing ffmpeg binary or an input ffmpeg rejects
// outright surfaces as ErrTranscodeFailed; the distinction between "binary
// missing" and "input corrupt" is made by the caller, which already knows
// whether ffmpegPath was resolved.
func Transcode(ctx context.Context, ffmpegPath, srcPath, destPath string, timeout time.Duration) error {
	args := []string{
		"-y",
		"-i", srcPath,
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-c:a", "pcm_s16le",
		destPath,
	}

	if err := ffmpeg.RunGraceful(ctx, ffmpegPath, args, timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}

	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("%w: no output written", ErrTranscodeFailed)
	}

	return nil
}

// ValidateCanonical opens destPath as a WAV file and confirms it matches
// the canonical PCM s16le / 16kHz / mono format, returning the decoded
// Asset on success.
func ValidateCanonical(destPath string) (*Asset, error) {
	f, err := os.Open(destPath) // #nosec G304 -- destPath is a job-scoped temp file
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCanonicalAsset, err)
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV container", ErrInvalidCanonicalAsset)
	}

	if decoder.SampleRate != CanonicalSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidCanonicalAsset, decoder.SampleRate)
	}
	if decoder.BitDepth != CanonicalBitDepth {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidCanonicalAsset, decoder.BitDepth)
	}
	if decoder.NumChans != CanonicalChannels {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidCanonicalAsset, decoder.NumChans)
	}

	// A duration-decode failure degrades to unknown duration (0) rather
	// than failing validation outright: the container and format checks
	// above already confirmed this is a canonical asset, and chunk.PlanChunks
	// treats a non-positive duration as "unknown" and plans a single chunk
	// over the whole file (ErrProbeUnavailable, §7).
	dur, err := decoder.Duration()
	if err != nil {
		dur = 0
	}

	return &Asset{
		Path:       destPath,
		Duration:   dur,
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
	}, nil
}
