package writer_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drbasl/mediatranscribe/internal/stitch"
	"github.com/drbasl/mediatranscribe/internal/writer"
)

func sampleTranscript() writer.Transcript {
	return writer.Transcript{
		Text:      "hello world",
		Language:  "en",
		Model:     "whisper-1",
		InputFile: "input.wav",
		Chunks:    2,
		Segments: []stitch.Segment{
			{Start: 0, End: 1500 * time.Millisecond, Text: "hello"},
			{Start: 1500 * time.Millisecond, End: 3 * time.Second, Text: "world"},
		},
	}
}

func TestWriteText_WritesRawTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := writer.WriteText(sampleTranscript(), path); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteJSON_IncludesMetadataAndSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := writer.WriteJSON(sampleTranscript(), path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["transcript"] != "hello world" {
		t.Fatalf("transcript = %v", doc["transcript"])
	}
	meta, ok := doc["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing or wrong type: %v", doc["metadata"])
	}
	if meta["segments_count"].(float64) != 2 {
		t.Fatalf("segments_count = %v", meta["segments_count"])
	}
}

func TestWriteJSON_DefaultsUnknownLanguageAndModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	tr := sampleTranscript()
	tr.Language = ""
	tr.Model = ""
	if err := writer.WriteJSON(tr, path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, _ := os.ReadFile(path)
	var doc map[string]any
	json.Unmarshal(data, &doc)
	if doc["language"] != "unknown" || doc["model"] != "unknown" {
		t.Fatalf("language/model = %v/%v, want unknown/unknown", doc["language"], doc["model"])
	}
}

func TestWriteSRT_FormatsCuesWithCommaMillis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	if err := writer.WriteSRT(sampleTranscript(), path); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.Contains(content, "00:00:00,000 --> 00:00:01,500") {
		t.Fatalf("missing first cue timing: %s", content)
	}
	if !strings.HasPrefix(content, "1\n") {
		t.Fatalf("missing sequence number: %s", content)
	}
}

func TestWriteVTT_FormatsCuesWithPeriodMillisAndHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.vtt")
	if err := writer.WriteVTT(sampleTranscript(), path); err != nil {
		t.Fatalf("WriteVTT: %v", err)
	}
	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.HasPrefix(content, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header: %s", content)
	}
	if !strings.Contains(content, "00:00:01.500 --> 00:00:03.000") {
		t.Fatalf("missing second cue timing: %s", content)
	}
}

func TestWriteSRT_RejectsTranscriptWithoutSegments(t *testing.T) {
	dir := t.TempDir()
	tr := sampleTranscript()
	tr.Segments = nil
	err := writer.WriteSRT(tr, filepath.Join(dir, "out.srt"))
	if !errors.Is(err, writer.ErrSegmentsRequired) {
		t.Fatalf("err = %v, want ErrSegmentsRequired", err)
	}
}

func TestWriteVTT_RejectsTranscriptWithoutSegments(t *testing.T) {
	dir := t.TempDir()
	tr := sampleTranscript()
	tr.Segments = nil
	err := writer.WriteVTT(tr, filepath.Join(dir, "out.vtt"))
	if !errors.Is(err, writer.ErrSegmentsRequired) {
		t.Fatalf("err = %v, want ErrSegmentsRequired", err)
	}
}

func TestWriteFormat_DispatchesByName(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"text", "json", "srt", "vtt"} {
		path := filepath.Join(dir, "out."+f)
		if err := writer.WriteFormat(f, sampleTranscript(), path); err != nil {
			t.Fatalf("WriteFormat(%q): %v", f, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("output file missing for format %q: %v", f, err)
		}
	}
}

func TestWriteFormat_UnknownFormatErrors(t *testing.T) {
	dir := t.TempDir()
	err := writer.WriteFormat("xml", sampleTranscript(), filepath.Join(dir, "out.xml"))
	if !errors.Is(err, writer.ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestWriteText_CreatesNestedOutputDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "out.txt")
	if err := writer.WriteText(sampleTranscript(), path); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected nested dirs created: %v", err)
	}
}
