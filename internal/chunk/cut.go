package chunk

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// commandRunner abstracts process execution so cutting can be unit tested
// without invoking a real ffmpeg binary.
type commandRunner interface {
	Run(ctx context.Context, path string, args []string) error
}

// osCommandRunner runs ffmpeg as a real subprocess.
type osCommandRunner struct{}

func (osCommandRunner) Run(ctx context.Context, path string, args []string) error {
	return exec.CommandContext(ctx, path, args...).Run()
}

var _ commandRunner = osCommandRunner{}

// Cutter extracts chunk files from a canonical source asset using ffmpeg's
// stream-copy mode, avoiding a re-encode per chunk.
type Cutter struct {
	ffmpegPath         string
	runner             commandRunner
	statFunc           func(string) (os.FileInfo, error)
	renameFunc         func(oldpath, newpath string) error
	reencodeOnOverflow bool
}

// CutterOption configures a Cutter.
type CutterOption func(*Cutter)

// WithCommandRunner overrides the process runner (for testing).
func WithCommandRunner(r commandRunner) CutterOption {
	return func(c *Cutter) { c.runner = r }
}

// WithStatFunc overrides the file-size lookup used for overflow detection
// (for testing).
func WithStatFunc(f func(string) (os.FileInfo, error)) CutterOption {
	return func(c *Cutter) { c.statFunc = f }
}

// WithReencodeOnOverflow makes the cutter re-encode a chunk down to the
// plan's byte ceiling instead of just warning when stream-copy drift
// (`-c copy` chunk boundaries don't align to keyframes, so the resulting
// file size isn't exact) pushes a chunk over MaxBytesPerChunk. Off by
// default: the default behavior is warn-and-proceed, matching a cutter
// that trusts its caller to size chunks conservatively.
func WithReencodeOnOverflow(enabled bool) CutterOption {
	return func(c *Cutter) { c.reencodeOnOverflow = enabled }
}

// NewCutter creates a Cutter that invokes ffmpegPath.
func NewCutter(ffmpegPath string, opts ...CutterOption) *Cutter {
	c := &Cutter{ffmpegPath: ffmpegPath, runner: osCommandRunner{}, statFunc: os.Stat, renameFunc: os.Rename}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the on-disk outcome of cutting one chunk.
type Result struct {
	Spec      Spec
	Path      string
	Size      int64
	Oversized bool // true if Size exceeds the plan's MaxBytesPerChunk and it was not re-encoded down
}

// Cut extracts every chunk in plan from sourcePath into outDir, named
// chunk_<index>.wav. Chunks are cut in index order.
//
// A failure on index 0 is recoverable: the whole plan collapses to a single
// chunk spanning the original asset, since a first-chunk extraction failure
// usually means the container doesn't tolerate the requested split point
// and re-trying against the same source with the same options would repeat
// the failure. A failure on any later index is fatal and aborts the run,
// since by then chunk 0 already proved the source is splittable and a later
// failure signals something about that specific window, not the source as
// a whole.
func Cut(ctx context.Context, cutter *Cutter, sourcePath string, plan *Plan, outDir string) ([]Result, error) {
	results := make([]Result, 0, len(plan.Specs))

	for _, spec := range plan.Specs {
		outPath := filepath.Join(outDir, fmt.Sprintf("chunk_%04d.wav", spec.Index))
		err := cutter.cutOne(ctx, sourcePath, spec, outPath)
		if err == nil {
			result := Result{Spec: spec, Path: outPath}
			cutter.checkOverflow(ctx, &result, plan.MaxBytesPerChunk)
			results = append(results, result)
			continue
		}

		if spec.Index != 0 {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrCutFailed, spec.Index, err)
		}

		// Index-0 fallback: re-plan as a single chunk over the whole asset.
		fallbackSpec := Spec{Index: 0, Start: 0, End: plan.SourceDuration}
		fallbackPath := filepath.Join(outDir, "chunk_0000.wav")
		if copyErr := cutter.copyWhole(ctx, sourcePath, fallbackPath); copyErr != nil {
			return nil, fmt.Errorf("%w: %v (original error: %v)", ErrFirstChunkFailed, copyErr, err)
		}
		return []Result{{Spec: fallbackSpec, Path: fallbackPath}}, nil
	}

	return results, nil
}

func (c *Cutter) cutOne(ctx context.Context, sourcePath string, spec Spec, outPath string) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(spec.Start),
		"-t", formatSeconds(spec.Duration()),
		"-i", sourcePath,
		"-c", "copy",
		outPath,
	}
	return c.runner.Run(ctx, c.ffmpegPath, args)
}

// copyWhole duplicates the source asset verbatim as a single chunk.
func (c *Cutter) copyWhole(ctx context.Context, sourcePath, outPath string) error {
	args := []string{"-y", "-i", sourcePath, "-c", "copy", outPath}
	return c.runner.Run(ctx, c.ffmpegPath, args)
}

// checkOverflow stats the just-cut chunk and, if it exceeds maxBytes,
// either marks it Oversized (default) or re-encodes it down to fit
// (WithReencodeOnOverflow). A stat failure is ignored: Size stays 0 and
// the chunk is treated as within bounds, since the cut itself already
// succeeded and a missing stat shouldn't fail the whole run.
func (c *Cutter) checkOverflow(ctx context.Context, result *Result, maxBytes int64) {
	if maxBytes <= 0 {
		return
	}
	info, err := c.statFunc(result.Path)
	if err != nil {
		return
	}
	result.Size = info.Size()
	if result.Size <= maxBytes {
		return
	}

	if !c.reencodeOnOverflow {
		result.Oversized = true
		return
	}

	if err := c.reencodeToFit(ctx, result.Path, result.Spec.Duration(), maxBytes); err != nil {
		result.Oversized = true
		return
	}
	if info, err := c.statFunc(result.Path); err == nil {
		result.Size = info.Size()
	}
	result.Oversized = result.Size > maxBytes
}

// reencodeToFit re-encodes the chunk in place to a bitrate derived from
// maxBytes and the chunk's duration, trading fidelity for a hard size
// ceiling.
func (c *Cutter) reencodeToFit(ctx context.Context, path string, duration time.Duration, maxBytes int64) error {
	seconds := duration.Seconds()
	if seconds <= 0 {
		return fmt.Errorf("%w: zero-length chunk cannot be re-encoded", ErrCutFailed)
	}
	bitrateKbps := int(float64(maxBytes) * 8 / 1000 / seconds)
	if bitrateKbps < 8 {
		bitrateKbps = 8
	}

	tmpPath := path + ".reencode.wav"
	args := []string{
		"-y",
		"-i", path,
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		tmpPath,
	}
	if err := c.runner.Run(ctx, c.ffmpegPath, args); err != nil {
		return fmt.Errorf("%w: re-encode: %v", ErrCutFailed, err)
	}
	return c.renameFunc(tmpPath, path)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
