package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/drbasl/mediatranscribe/internal/checkpoint"
	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/engine"
	"github.com/drbasl/mediatranscribe/internal/transcribe"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	results map[string]transcribe.Response
}

func (f *fakeClient) Transcribe(_ context.Context, path string, _ transcribe.Options) (transcribe.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	if err, ok := f.fail[path]; ok {
		return transcribe.Response{}, err
	}
	if r, ok := f.results[path]; ok {
		return r, nil
	}
	return transcribe.Response{Text: "text for " + path}, nil
}

func testPlan(t *testing.T) ([]chunk.Result, *checkpoint.Checkpoint) {
	t.Helper()
	plan, err := chunk.PlanChunks(30*time.Second, 10*time.Second, 0, 0)
	if err != nil {
		t.Fatalf("PlanChunks: %v", err)
	}
	var files []chunk.Result
	for _, s := range plan.Specs {
		files = append(files, chunk.Result{Spec: s, Path: "chunk" + string(rune('0'+s.Index)) + ".wav"})
	}
	return files, checkpoint.New("fp", "/src.wav", plan)
}

func TestRun_SequentialSuccessMarksEveryChunk(t *testing.T) {
	files, cp := testPlan(t)
	client := &fakeClient{results: map[string]transcribe.Response{}}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !cp.Complete() {
		t.Fatalf("checkpoint not complete: pending = %v", cp.Pending())
	}

	loaded, err := store.Load(path, "fp")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Complete() {
		t.Fatal("persisted checkpoint not complete")
	}
}

func TestRun_FailureAbortsLeavingCheckpointAtLastSuccess(t *testing.T) {
	files, cp := testPlan(t)
	failPath := files[1].Path
	client := &fakeClient{fail: map[string]error{failPath: errors.New("boom")}}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 1})
	if err == nil {
		t.Fatal("expected error")
	}

	pending := cp.Pending()
	sort.Ints(pending)
	if len(pending) == 0 {
		t.Fatal("expected at least one pending chunk after abort")
	}

	loaded, loadErr := store.Load(path, "fp")
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if loaded.Complete() {
		t.Fatal("persisted checkpoint should not be complete after a mid-run failure")
	}
}

func TestRun_ResumeOnlyProcessesPendingChunks(t *testing.T) {
	files, cp := testPlan(t)
	_ = cp.MarkComplete(0, checkpoint.Result{Text: "already done"})

	client := &fakeClient{}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, call := range client.calls {
		if call == files[0].Path {
			t.Fatalf("engine re-transcribed already-completed chunk %s", files[0].Path)
		}
	}
	if len(client.calls) != len(files)-1 {
		t.Fatalf("called transcribe %d times, want %d", len(client.calls), len(files)-1)
	}
}

func TestRun_EmptyFilesIsNoop(t *testing.T) {
	_, cp := testPlan(t)
	client := &fakeClient{}
	store := checkpoint.NewStore()
	err := engine.Run(context.Background(), client, nil, store, "/tmp/unused.json", cp, engine.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatal("expected no transcribe calls for empty input")
	}
}

type fakeRecorder struct {
	mu         sync.Mutex
	operations []string
	durations  int
	errors     int
}

func (r *fakeRecorder) RecordOperation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op+":"+status)
}

func (r *fakeRecorder) RecordDuration(string, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations++
}

func (r *fakeRecorder) RecordError(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func TestRun_RecordsMetricsPerChunk(t *testing.T) {
	files, cp := testPlan(t)
	client := &fakeClient{}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)
	rec := &fakeRecorder{}

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 1, Recorder: rec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.operations) != len(files) {
		t.Fatalf("recorded %d operations, want %d", len(rec.operations), len(files))
	}
	if rec.durations != len(files) {
		t.Fatalf("recorded %d durations, want %d", rec.durations, len(files))
	}
	if rec.errors != 0 {
		t.Fatalf("expected no errors recorded, got %d", rec.errors)
	}
}

func TestRun_RecordsErrorMetricOnFailure(t *testing.T) {
	files, cp := testPlan(t)
	failPath := files[0].Path
	client := &fakeClient{fail: map[string]error{failPath: errors.New("boom")}}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)
	rec := &fakeRecorder{}

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 1, Recorder: rec})
	if err == nil {
		t.Fatal("expected error")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errors != 1 {
		t.Fatalf("recorded %d errors, want 1", rec.errors)
	}
}

func TestRun_ConcurrentUploadsStillCompleteAllChunks(t *testing.T) {
	files, cp := testPlan(t)
	client := &fakeClient{}
	dir := t.TempDir()
	store := checkpoint.NewStore()
	path := checkpoint.PathFor(dir, cp.SourceFingerprint)

	err := engine.Run(context.Background(), client, files, store, path, cp, engine.Options{MaxParallel: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !cp.Complete() {
		t.Fatalf("pending after concurrent run: %v", cp.Pending())
	}
}
