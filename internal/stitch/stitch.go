// Package stitch combines per-chunk transcription results into one
// document: plain text joined in chunk order, and segments rebased from
// chunk-relative to absolute source timestamps.
package stitch

import (
	"sort"
	"strings"
	"time"

	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/chunk"
)

// Segment is one absolute-timestamped span of transcript text.
type Segment struct {
	Start   time.Duration
	End     time.Duration
	Text    string
	Speaker string
}

// Piece pairs a chunk's spec with its completed result, the minimal input
// Text and Segments need. Ordering of the input slice does not matter: both
// functions sort by index before combining, so stitching is a function only
// of the (index, result) pairs, not of call order.
type Piece struct {
	Spec   chunk.Spec
	Result checkpoint.Result
}

// Text joins every piece's text in index order, collapsing the resulting
// whitespace. Joining with a single space means piece text should already
// be individually trimmed; this function only guards the join.
func Text(pieces []Piece) string {
	ordered := sortedByIndex(pieces)

	parts := make([]string, 0, len(ordered))
	for _, p := range ordered {
		t := strings.TrimSpace(p.Result.Text)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return collapseWhitespace(strings.Join(parts, " "))
}

// Segments rebases every chunk's segments onto absolute source time and
// returns them ordered first by chunk index, then in the order each chunk's
// result lists them, so two segments whose absolute starts tie (chunk i's trailing
// edge against chunk i+1's leading edge) consistently place chunk i first.
func Segments(pieces []Piece) []Segment {
	ordered := sortedByIndex(pieces)

	var out []Segment
	for _, p := range ordered {
		base := p.Spec.Start
		for _, seg := range p.Result.Segments {
			out = append(out, Segment{
				Start:   base + time.Duration(seg.Start*float64(time.Second)),
				End:     base + time.Duration(seg.End*float64(time.Second)),
				Text:    strings.TrimSpace(seg.Text),
				Speaker: seg.Speaker,
			})
		}
	}
	return out
}

func sortedByIndex(pieces []Piece) []Piece {
	ordered := make([]Piece, len(pieces))
	copy(ordered, pieces)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Spec.Index < ordered[j].Spec.Index
	})
	return ordered
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
