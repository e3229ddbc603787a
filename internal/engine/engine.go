// Package engine drives chunk transcription against a checkpoint: for
// every pending chunk it calls the remote transcriber, then serializes the
// resulting checkpoint write through a single owner so concurrent uploads
// never race on the same checkpoint file.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/lang"
	"github.com/drbasl/mediatranscribe/internal/metrics"
	"github.com/drbasl/mediatranscribe/internal/transcribe"
)

const metricOpTranscribeChunk = "transcribe_chunk"

// Client is the subset of transcribe.Transcriber the engine depends on.
type Client interface {
	Transcribe(ctx context.Context, chunkPath string, opts transcribe.Options) (transcribe.Response, error)
}

// Options configures one engine run. ResponseFormat and
// TimestampGranularities are applied to every chunk request; whisper-1 is
// the only model that receives a segment-granularity hint, since it's the
// only one that honors it.
type Options struct {
	Model          string
	LanguageCode   string
	Prompt         string
	Diarize        bool
	ResponseFormat string
	MaxParallel    int
	OnProgress     func(index, total int)
	// Recorder receives per-chunk operation/duration/error metrics. A nil
	// Recorder is treated as metrics.Noop().
	Recorder metrics.Recorder
}

// Run transcribes every pending chunk in files (produced by chunk.Cut),
// writing results into store at path as each chunk completes.
//
// With MaxParallel <= 1 (the default), chunks run strictly sequentially by
// index: one upload at a time, checkpointed before the next starts. With a
// higher MaxParallel, uploads run concurrently and checkpoint writes are
// serialized through a single result-draining goroutine so Save is never
// called from two goroutines at once; completion order then follows
// whichever upload finishes first rather than index order, but the
// pending-index accounting it produces is identical either way since
// MarkComplete keys strictly by index.
//
// Any chunk failure aborts the run immediately: the checkpoint is left
// with every chunk completed up to that point, and the error is returned
// to the caller.
func Run(ctx context.Context, client Client, files []chunk.Result, store *checkpoint.Store, path string, cp *checkpoint.Checkpoint, opts Options) error {
	pending := pendingFiles(files, cp)
	if len(files) == 0 {
		return nil
	}

	// A language code rejected here is treated as auto-detect rather than
	// failing the run: validation of --language belongs to the CLI layer,
	// which has already accepted this value before the engine ever runs.
	language, _ := lang.Parse(opts.LanguageCode)

	transcribeOpts := transcribe.Options{
		Model:          opts.Model,
		Language:       language,
		Prompt:         opts.Prompt,
		Diarize:        opts.Diarize,
		ResponseFormat: opts.ResponseFormat,
	}
	if opts.Model == "whisper-1" && opts.ResponseFormat == "verbose_json" {
		transcribeOpts.TimestampGranularities = []string{"segment"}
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Noop()
	}

	if opts.MaxParallel <= 1 {
		return runSequential(ctx, client, pending, store, path, cp, transcribeOpts, opts.OnProgress, recorder, len(files))
	}
	return runConcurrent(ctx, client, pending, store, path, cp, transcribeOpts, opts, recorder, len(files))
}

// transcribeWithMetrics calls client.Transcribe, recording its outcome and
// duration against rec under a single operation name shared by both the
// sequential and concurrent execution paths.
func transcribeWithMetrics(ctx context.Context, client Client, rec metrics.Recorder, path string, opts transcribe.Options) (transcribe.Response, error) {
	start := time.Now()
	resp, err := client.Transcribe(ctx, path, opts)
	rec.RecordDuration(metricOpTranscribeChunk, time.Since(start).Seconds())
	if err != nil {
		rec.RecordOperation(metricOpTranscribeChunk, "error")
		rec.RecordError(metricOpTranscribeChunk, "transcribe_failed")
		return resp, err
	}
	rec.RecordOperation(metricOpTranscribeChunk, "success")
	return resp, nil
}

// runSequential is the default execution mode: chunks are transcribed and
// checkpointed strictly in index order, one at a time.
func runSequential(
	ctx context.Context,
	client Client,
	pending []chunk.Result,
	store *checkpoint.Store,
	path string,
	cp *checkpoint.Checkpoint,
	transcribeOpts transcribe.Options,
	onProgress func(index, total int),
	rec metrics.Recorder,
	total int,
) error {
	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := transcribeWithMetrics(ctx, client, rec, f.Path, transcribeOpts)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", f.Spec.Index, err)
		}
		if err := cp.MarkComplete(f.Spec.Index, toResult(resp)); err != nil {
			return err
		}
		if err := store.Save(path, cp); err != nil {
			return fmt.Errorf("save checkpoint after chunk %d: %w", f.Spec.Index, err)
		}
		if onProgress != nil {
			onProgress(f.Spec.Index, total)
		}
	}
	return nil
}

// runConcurrent uploads up to opts.MaxParallel chunks at once. Checkpoint
// writes are serialized through a single owner goroutine draining a
// results channel, so Save is never called from two goroutines at once.
// Completion (and therefore checkpoint-write) order follows whichever
// upload finishes first, not chunk index; stitching downstream re-sorts by
// index regardless, so this doesn't affect the final transcript.
func runConcurrent(
	ctx context.Context,
	client Client,
	pending []chunk.Result,
	store *checkpoint.Store,
	path string,
	cp *checkpoint.Checkpoint,
	transcribeOpts transcribe.Options,
	opts Options,
	rec metrics.Recorder,
	total int,
) error {
	type outcome struct {
		index  int
		result checkpoint.Result
		err    error
	}

	results := make(chan outcome)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.MaxParallel)

	for _, f := range pending {
		f := f
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			resp, err := transcribeWithMetrics(gctx, client, rec, f.Path, transcribeOpts)
			select {
			case results <- outcome{index: f.Spec.Index, result: toResult(resp), err: err}:
				return err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		remaining := len(pending)
		for remaining > 0 {
			select {
			case o := <-results:
				remaining--
				if o.err != nil {
					done <- fmt.Errorf("chunk %d: %w", o.index, o.err)
					return
				}
				if markErr := cp.MarkComplete(o.index, o.result); markErr != nil {
					done <- markErr
					return
				}
				if saveErr := store.Save(path, cp); saveErr != nil {
					done <- fmt.Errorf("save checkpoint after chunk %d: %w", o.index, saveErr)
					return
				}
				if opts.OnProgress != nil {
					opts.OnProgress(o.index, total)
				}
			case <-gctx.Done():
				done <- gctx.Err()
				return
			}
		}
	}()

	waitErr := g.Wait()
	drainErr := <-done
	if drainErr != nil {
		return drainErr
	}
	return waitErr
}

func toResult(resp transcribe.Response) checkpoint.Result {
	segs := make([]checkpoint.Segment, len(resp.Segments))
	for i, s := range resp.Segments {
		segs[i] = checkpoint.Segment{Start: s.Start, End: s.End, Text: s.Text, Speaker: s.Speaker}
	}
	return checkpoint.Result{Text: resp.Text, Segments: segs}
}

// pendingFiles returns the chunk.Result entries whose index is still
// pending in cp, sorted by index so sequential (MaxParallel==1) runs
// process chunks in deterministic order.
func pendingFiles(files []chunk.Result, cp *checkpoint.Checkpoint) []chunk.Result {
	pendingIdx := make(map[int]bool)
	for _, idx := range cp.Pending() {
		pendingIdx[idx] = true
	}

	var out []chunk.Result
	for _, f := range files {
		if pendingIdx[f.Spec.Index] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Index < out[j].Spec.Index })
	return out
}
