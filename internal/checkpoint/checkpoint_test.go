package checkpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drbasl/mediatranscribe/internal/chunk"
)

func testPlan(t *testing.T) *chunk.Plan {
	t.Helper()
	plan, err := chunk.PlanChunks(30*time.Second, 10*time.Second, 0, 0)
	if err != nil {
		t.Fatalf("PlanChunks: %v", err)
	}
	return plan
}

func TestNew_AllChunksPending(t *testing.T) {
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	if len(cp.Pending()) != 3 {
		t.Fatalf("pending = %v, want 3 entries", cp.Pending())
	}
	if cp.Complete() {
		t.Fatal("fresh checkpoint should not be complete")
	}
}

func TestMarkComplete_RemovesFromPending(t *testing.T) {
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	if err := cp.MarkComplete(0, Result{Text: "hello"}); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	pending := cp.Pending()
	if len(pending) != 2 || pending[0] != 1 {
		t.Fatalf("pending = %v, want [1 2]", pending)
	}
}

func TestMarkComplete_NeverRewritesCompleted(t *testing.T) {
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	if err := cp.MarkComplete(0, Result{Text: "first"}); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	err := cp.MarkComplete(0, Result{Text: "second"})
	if !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("err = %v, want ErrAlreadyComplete", err)
	}
	if cp.Chunks[0].Result.Text != "first" {
		t.Fatalf("result overwritten: %q", cp.Chunks[0].Result.Text)
	}
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	_ = cp.MarkComplete(0, Result{Text: "hi", Segments: []Segment{{Start: 0, End: 1, Text: "hi"}}})

	store := NewStore()
	path := PathFor(dir, cp.SourceFingerprint)

	if err := store.Save(path, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(path, "abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Pending()) != 2 {
		t.Fatalf("loaded pending = %v, want 2", loaded.Pending())
	}
	if loaded.Chunks[0].Result.Text != "hi" {
		t.Fatalf("loaded result text = %q", loaded.Chunks[0].Result.Text)
	}
}

func TestStore_Load_FingerprintMismatchIsNotFound(t *testing.T) {
	dir := t.TempDir()
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	store := NewStore()
	path := PathFor(dir, cp.SourceFingerprint)
	if err := store.Save(path, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := store.Load(path, "different-fingerprint")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// The stale file itself must still be on disk; isolation means "ignore",
	// not "delete".
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("stale checkpoint file was removed: %v", statErr)
	}
}

func TestStore_Load_MissingFile(t *testing.T) {
	store := NewStore()
	_, err := store.Load(filepath.Join(t.TempDir(), "nope.json"), "abc123")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Save_NoPartialFileOnTempWriteFailure(t *testing.T) {
	dir := t.TempDir()
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	path := PathFor(dir, cp.SourceFingerprint)

	store := NewStore(WithFileWriter(failingWriter{}))
	err := store.Save(path, cp)
	if err == nil {
		t.Fatal("expected error from failing writer")
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatal("checkpoint file should not exist after a failed save")
	}
}

func TestCheckpoint_JSONShapeMatchesDocumentedContract(t *testing.T) {
	cp := New("abc123", "/tmp/src.wav", testPlan(t))
	cp.SetFilePaths([]chunk.Result{
		{Spec: cp.Chunks[0].Spec, Path: "/tmp/chunk_0000.wav"},
		{Spec: cp.Chunks[1].Spec, Path: "/tmp/chunk_0001.wav"},
		{Spec: cp.Chunks[2].Spec, Path: "/tmp/chunk_0002.wav"},
	})
	if err := cp.MarkComplete(0, Result{Text: "hi", Segments: []Segment{{Start: 0, End: 1, Text: "hi"}}}); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if _, ok := raw["input_path"]; !ok {
		t.Fatal(`missing top-level "input_path"`)
	}
	chunks, ok := raw["chunks"].([]any)
	if !ok || len(chunks) != 3 {
		t.Fatalf(`"chunks" = %#v, want a 3-element array`, raw["chunks"])
	}
	first, ok := chunks[0].(map[string]any)
	if !ok {
		t.Fatalf("chunks[0] = %#v, want an object", chunks[0])
	}
	for _, field := range []string{"index", "start_time", "duration", "file_path", "transcribed", "transcript", "metadata"} {
		if _, ok := first[field]; !ok {
			t.Errorf("chunks[0] missing documented field %q", field)
		}
	}
	if first["file_path"] != "/tmp/chunk_0000.wav" {
		t.Errorf(`chunks[0]["file_path"] = %v, want "/tmp/chunk_0000.wav"`, first["file_path"])
	}
	if first["transcribed"] != true {
		t.Errorf(`chunks[0]["transcribed"] = %v, want true`, first["transcribed"])
	}

	var roundtripped Checkpoint
	if err := json.Unmarshal(data, &roundtripped); err != nil {
		t.Fatalf("Unmarshal into Checkpoint: %v", err)
	}
	if roundtripped.SourcePath != cp.SourcePath || roundtripped.Chunks[0].Result.Text != "hi" {
		t.Fatalf("roundtrip mismatch: %+v", roundtripped)
	}
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fp, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("FingerprintFile: %v", err)
	}
	if len(fp) != 16 {
		t.Fatalf("fingerprint length = %d, want 16", len(fp))
	}
	if strings.ContainsAny(fp, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Fatalf("fingerprint not lowercase hex: %s", fp)
	}

	fp2, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("FingerprintFile: %v", err)
	}
	if fp != fp2 {
		t.Fatalf("fingerprint not deterministic: %s != %s", fp, fp2)
	}
}

type failingWriter struct{}

func (failingWriter) WriteFile(string, []byte, os.FileMode) error { return errors.New("nope") }
func (failingWriter) Rename(string, string) error                 { return errors.New("nope") }
func (failingWriter) Remove(string) error                         { return nil }
func (failingWriter) CreateTemp(dir, pattern string) (*os.File, error) {
	return nil, errors.New("nope")
}
