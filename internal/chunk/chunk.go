// Package chunk plans and cuts a canonical audio asset into a sequence of
// fixed, deterministic chunk windows.
//
// Planning is purely a function of (source duration, requested chunk
// duration, byte-rate cap) and produces no side effects. Determinism here
// matters: the checkpoint store persists a plan and replays it on resume, so
// two invocations over the same asset and the same knobs must produce
// byte-identical plans.
package chunk

import (
	"fmt"
	"math"
	"time"
)

// minEffectiveDuration is the floor applied to the size-derived chunk
// duration; a cap small enough to force sub-second chunks instead degrades
// to one second per chunk.
const minEffectiveDuration = time.Second

// Spec describes a single chunk window, in source-relative offsets.
type Spec struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Duration returns the length of the chunk window.
func (s Spec) Duration() time.Duration {
	return s.End - s.Start
}

// Plan is the full, deterministic set of chunk windows computed for one
// source asset.
type Plan struct {
	SourceDuration   time.Duration
	ChunkDuration    time.Duration // effective per-chunk duration actually used
	MaxBytesPerChunk int64         // size ceiling the plan was derived from, 0 if none
	Specs            []Spec
}

// PlanChunks computes a deterministic chunk plan for an asset of the given
// duration.
//
// requestedDuration is the caller's preferred chunk length (e.g. from
// --chunk-minutes). maxBytesPerChunk and bytesPerSecond together derive a
// size-driven ceiling: D_size = floor(maxBytesPerChunk / bytesPerSecond).
// The effective chunk duration is min(requestedDuration, D_size), floored at
// one second so a tiny byte cap never produces a zero-length window.
//
// A zero or negative sourceDuration (duration unknown) is an explicit
// single-chunk case: the whole asset is planned as one chunk spanning
// [0, sourceDuration]. This mirrors the reference implementation's
// behavior for unprobable sources rather than being an accidental
// truncation artifact.
func PlanChunks(sourceDuration, requestedDuration time.Duration, maxBytesPerChunk int64, bytesPerSecond float64) (*Plan, error) {
	if requestedDuration <= 0 {
		return nil, fmt.Errorf("%w: requested chunk duration must be positive", ErrInvalidDuration)
	}

	effective := requestedDuration
	if maxBytesPerChunk > 0 && bytesPerSecond > 0 {
		sizeDuration := time.Duration(math.Floor(float64(maxBytesPerChunk)/bytesPerSecond)) * time.Second
		if sizeDuration < effective {
			effective = sizeDuration
		}
	}
	if effective < minEffectiveDuration {
		effective = minEffectiveDuration
	}

	if sourceDuration <= 0 {
		return &Plan{
			SourceDuration:   sourceDuration,
			ChunkDuration:    effective,
			MaxBytesPerChunk: maxBytesPerChunk,
			Specs:            []Spec{{Index: 0, Start: 0, End: sourceDuration}},
		}, nil
	}

	var specs []Spec
	for start := time.Duration(0); start < sourceDuration; start += effective {
		end := start + effective
		if end > sourceDuration {
			end = sourceDuration
		}
		specs = append(specs, Spec{Index: len(specs), Start: start, End: end})
	}

	return &Plan{
		SourceDuration:   sourceDuration,
		ChunkDuration:    effective,
		MaxBytesPerChunk: maxBytesPerChunk,
		Specs:            specs,
	}, nil
}
