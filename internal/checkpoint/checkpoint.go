// Package checkpoint persists chunk-execution progress so a crashed or
// interrupted run can resume by only reprocessing unfinished chunks.
//
// The plan captured in a checkpoint is authoritative on resume: the engine
// never recomputes chunk boundaries against a loaded checkpoint, it replays
// the persisted plan verbatim and asks only which indices are still
// pending. A checkpoint is keyed to its source by a content fingerprint;
// if the fingerprint differs, the checkpoint is treated as absent rather
// than silently reused against different bytes. The stored source path is
// not compared on load.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/drbasl/mediatranscribe/internal/chunk"
)

// Segment is one timestamped span of text within a chunk's raw result, in
// chunk-relative seconds.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Result is the normalized outcome of transcribing a single chunk.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// ChunkState tracks one chunk's completion status and, once completed, its
// result. FilePath is set once the chunk has actually been cut to disk
// (SetFilePaths); a fresh checkpoint has it empty.
type ChunkState struct {
	Spec      chunk.Spec
	FilePath  string
	Completed bool
	Result    *Result
}

// Checkpoint is the full persisted state for one job.
//
// The persisted JSON shape follows spec §6 field-for-field
// (input_path/chunks[].{index,start_time,duration,file_path,transcribed,
// transcript,metadata}, see MarshalJSON/UnmarshalJSON), with one addition:
// SourceFingerprint. The original keys a checkpoint to its source by exact
// path-string equality; this port keys it to a content hash instead, so a
// path that's been overwritten with different bytes is correctly treated as
// a new source rather than silently resumed against stale chunks.
type Checkpoint struct {
	SourceFingerprint string
	SourcePath        string
	Chunks            []ChunkState
}

// New builds a fresh checkpoint with every chunk in plan marked pending.
func New(sourceFingerprint, sourcePath string, plan *chunk.Plan) *Checkpoint {
	states := make([]ChunkState, len(plan.Specs))
	for i, spec := range plan.Specs {
		states[i] = ChunkState{Spec: spec}
	}
	return &Checkpoint{
		SourceFingerprint: sourceFingerprint,
		SourcePath:        sourcePath,
		Chunks:            states,
	}
}

// SetFilePaths records each chunk's on-disk path once chunk.Cut has produced
// one, matched by index. A chunk absent from files (cutting collapsed the
// plan to a single fallback chunk) is left with its prior path, if any.
func (c *Checkpoint) SetFilePaths(files []chunk.Result) {
	byIndex := make(map[int]string, len(files))
	for _, f := range files {
		byIndex[f.Spec.Index] = f.Path
	}
	for i := range c.Chunks {
		if p, ok := byIndex[c.Chunks[i].Spec.Index]; ok {
			c.Chunks[i].FilePath = p
		}
	}
}

// Pending returns the indices of chunks not yet marked complete, in index
// order.
func (c *Checkpoint) Pending() []int {
	var pending []int
	for _, cs := range c.Chunks {
		if !cs.Completed {
			pending = append(pending, cs.Spec.Index)
		}
	}
	return pending
}

// MarkComplete records the result for the chunk at index. Marking an
// already-completed chunk complete again is a no-op that returns
// ErrAlreadyComplete: completed chunks are never rewritten, so a checkpoint
// can never regress on replay.
func (c *Checkpoint) MarkComplete(index int, result Result) error {
	for i := range c.Chunks {
		if c.Chunks[i].Spec.Index != index {
			continue
		}
		if c.Chunks[i].Completed {
			return fmt.Errorf("%w: index %d", ErrAlreadyComplete, index)
		}
		c.Chunks[i].Completed = true
		c.Chunks[i].Result = &result
		return nil
	}
	return fmt.Errorf("no such chunk index %d", index)
}

// Complete reports whether every chunk in the checkpoint is marked done.
func (c *Checkpoint) Complete() bool {
	for _, cs := range c.Chunks {
		if !cs.Completed {
			return false
		}
	}
	return true
}

// wireChunk is one chunk's on-disk JSON representation, matching spec §6's
// documented shape exactly.
type wireChunk struct {
	Index       int           `json:"index"`
	StartTime   float64       `json:"start_time"`
	Duration    float64       `json:"duration"`
	FilePath    string        `json:"file_path"`
	Transcribed bool          `json:"transcribed"`
	Transcript  *string       `json:"transcript"`
	Metadata    *wireSegments `json:"metadata"`
}

// wireSegments is the metadata payload attached to a transcribed chunk.
type wireSegments struct {
	Segments []Segment `json:"segments,omitempty"`
}

// wireCheckpoint is the full on-disk JSON representation. input_path and
// chunks[] match spec §6 field-for-field; source_fingerprint is this port's
// one addition (see Checkpoint's doc comment).
type wireCheckpoint struct {
	InputPath         string      `json:"input_path"`
	SourceFingerprint string      `json:"source_fingerprint"`
	Chunks            []wireChunk `json:"chunks"`
}

// MarshalJSON renders the checkpoint in spec §6's documented shape.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	w := wireCheckpoint{
		InputPath:         c.SourcePath,
		SourceFingerprint: c.SourceFingerprint,
		Chunks:            make([]wireChunk, len(c.Chunks)),
	}
	for i, cs := range c.Chunks {
		wc := wireChunk{
			Index:       cs.Spec.Index,
			StartTime:   cs.Spec.Start.Seconds(),
			Duration:    cs.Spec.Duration().Seconds(),
			FilePath:    cs.FilePath,
			Transcribed: cs.Completed,
		}
		if cs.Result != nil {
			text := cs.Result.Text
			wc.Transcript = &text
			if len(cs.Result.Segments) > 0 {
				wc.Metadata = &wireSegments{Segments: cs.Result.Segments}
			}
		}
		w.Chunks[i] = wc
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the spec §6 shape back into a Checkpoint.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var w wireCheckpoint
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	c.SourcePath = w.InputPath
	c.SourceFingerprint = w.SourceFingerprint
	c.Chunks = make([]ChunkState, len(w.Chunks))
	for i, wc := range w.Chunks {
		start := time.Duration(wc.StartTime * float64(time.Second))
		end := start + time.Duration(wc.Duration*float64(time.Second))
		cs := ChunkState{
			Spec:      chunk.Spec{Index: wc.Index, Start: start, End: end},
			FilePath:  wc.FilePath,
			Completed: wc.Transcribed,
		}
		if wc.Transcribed && wc.Transcript != nil {
			result := &Result{Text: *wc.Transcript}
			if wc.Metadata != nil {
				result.Segments = wc.Metadata.Segments
			}
			cs.Result = result
		}
		c.Chunks[i] = cs
	}
	return nil
}

// Fingerprint returns the content fingerprint for source bytes: the first
// 16 hex characters of the SHA-256 digest.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// FingerprintFile computes the fingerprint of a file on disk.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a job-scoped source file
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return Fingerprint(f)
}

// PathFor returns the checkpoint file path for a job directory and
// fingerprint: <dir>/checkpoint_<fingerprint>.json.
func PathFor(dir, fingerprint string) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoint_%s.json", fingerprint))
}

// Store loads, saves, and discards checkpoints on disk with injectable
// filesystem access for testing.
type Store struct {
	reader fileReader
	writer fileWriter
}

type fileReader interface {
	ReadFile(name string) ([]byte, error)
}

type fileWriter interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
	CreateTemp(dir, pattern string) (*os.File, error)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFileReader overrides the reader (for testing).
func WithFileReader(r fileReader) StoreOption {
	return func(s *Store) { s.reader = r }
}

// WithFileWriter overrides the writer (for testing).
func WithFileWriter(w fileWriter) StoreOption {
	return func(s *Store) { s.writer = w }
}

// NewStore creates a Store backed by the real filesystem unless overridden.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{reader: osReader{}, writer: osWriter{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the checkpoint at path and validates it against
// expectedFingerprint. A missing file or a fingerprint mismatch returns
// ErrNotFound; a file that fails to parse returns an error wrapping
// ErrCorrupt. Only the fingerprint is compared: the stored InputPath is
// not checked, so a checkpoint whose fingerprint matches is returned even
// when it was saved for a different source path. A stale checkpoint is
// never deleted here; the
// caller decides whether to overwrite it once a new plan is saved.
func (s *Store) Load(path, expectedFingerprint string) (*Checkpoint, error) {
	data, err := s.reader.ReadFile(path)
	if err != nil {
		return nil, ErrNotFound
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if cp.SourceFingerprint != expectedFingerprint {
		return nil, ErrNotFound
	}

	return &cp, nil
}

// Save writes cp to path atomically: it writes to a temp file in the same
// directory and renames it into place, so a crash mid-write never leaves a
// half-written checkpoint that a subsequent Load could parse as valid.
func (s *Store) Save(path string, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := s.writer.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.writer.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.writer.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := s.writer.Rename(tmpPath, path); err != nil {
		_ = s.writer.Remove(tmpPath)
		return fmt.Errorf("install checkpoint: %w", err)
	}

	return nil
}

// Discard removes the checkpoint file. Called once a run completes
// successfully, with or without --resume, so a finished job doesn't leave a
// resumable artifact behind.
func (s *Store) Discard(path string) error {
	if err := s.writer.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type osReader struct{}

func (osReader) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name) // #nosec G304 -- path is derived from job output dir
}

type osWriter struct{}

func (osWriter) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (osWriter) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (osWriter) Remove(name string) error             { return os.Remove(name) }
func (osWriter) CreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}

var (
	_ fileReader = osReader{}
	_ fileWriter = osWriter{}
)
