// Package writer renders a completed transcript to one of the supported
// output formats: plain text, JSON with metadata, SRT subtitles, or VTT
// subtitles.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drbasl/mediatranscribe/internal/format"
	"github.com/drbasl/mediatranscribe/internal/stitch"
)

// Transcript is the normalized result handed to every writer.
type Transcript struct {
	Text      string
	Language  string
	Model     string
	InputFile string
	Chunks    int
	Segments  []stitch.Segment
}

// WriteFormat dispatches to the writer matching format ("text", "json",
// "srt", or "vtt") and writes the rendered transcript to path.
func WriteFormat(format string, t Transcript, path string) error {
	switch format {
	case "text":
		return WriteText(t, path)
	case "json":
		return WriteJSON(t, path)
	case "srt":
		return WriteSRT(t, path)
	case "vtt":
		return WriteVTT(t, path)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteText writes the transcript's plain text to path.
func WriteText(t Transcript, path string) error {
	return writeFile(path, []byte(t.Text))
}

type jsonMetadata struct {
	InputFile     string `json:"input_file"`
	Chunks        int    `json:"chunks"`
	SegmentsCount int    `json:"segments_count"`
}

type jsonTranscript struct {
	Transcript string           `json:"transcript"`
	Language   string           `json:"language"`
	Model      string           `json:"model"`
	Metadata   jsonMetadata     `json:"metadata"`
	Segments   []stitch.Segment `json:"segments"`
}

// WriteJSON writes the transcript and its metadata as structured JSON.
func WriteJSON(t Transcript, path string) error {
	language := t.Language
	if language == "" {
		language = "unknown"
	}
	model := t.Model
	if model == "" {
		model = "unknown"
	}

	doc := jsonTranscript{
		Transcript: t.Text,
		Language:   language,
		Model:      model,
		Metadata: jsonMetadata{
			InputFile:     t.InputFile,
			Chunks:        t.Chunks,
			SegmentsCount: len(t.Segments),
		},
		Segments: t.Segments,
	}
	if doc.Segments == nil {
		doc.Segments = []stitch.Segment{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("writer: marshal json transcript: %w", err)
	}
	return writeFile(path, data)
}

// WriteSRT writes the transcript's segments as a SubRip (.srt) subtitle
// file. It returns ErrSegmentsRequired if the transcript has no segments.
func WriteSRT(t Transcript, path string) error {
	if !hasTimestamps(t.Segments) {
		return ErrSegmentsRequired
	}

	var b []byte
	n := 1
	for _, seg := range t.Segments {
		text := trimSpace(seg.Text)
		if text == "" {
			continue
		}
		b = append(b, fmt.Sprintf("%d\n%s --> %s\n%s\n\n",
			n, format.TimestampSRT(seg.Start), format.TimestampSRT(seg.End), text)...)
		n++
	}
	return writeFile(path, b)
}

// WriteVTT writes the transcript's segments as a WebVTT (.vtt) subtitle
// file. It returns ErrSegmentsRequired if the transcript has no segments.
func WriteVTT(t Transcript, path string) error {
	if !hasTimestamps(t.Segments) {
		return ErrSegmentsRequired
	}

	b := []byte("WEBVTT\n\n")
	for _, seg := range t.Segments {
		text := trimSpace(seg.Text)
		if text == "" {
			continue
		}
		b = append(b, fmt.Sprintf("%s --> %s\n%s\n\n",
			format.TimestampVTT(seg.Start), format.TimestampVTT(seg.End), text)...)
	}
	return writeFile(path, b)
}

func hasTimestamps(segs []stitch.Segment) bool {
	return len(segs) > 0
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("writer: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writer: write %s: %w", path, err)
	}
	return nil
}
