package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDefaultsFile(t *testing.T, dir, content string) string {
	t.Helper()
	configDir := filepath.Join(dir, "go-transcript")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	p := filepath.Join(configDir, jobDefaultsFileName)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write defaults file: %v", err)
	}
	return p
}

func TestLoadJobDefaults_MissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvJobDefaultsFile, "")

	got, err := LoadJobDefaults()
	if err != nil {
		t.Fatalf("LoadJobDefaults: %v", err)
	}
	if got != (JobDefaults{}) {
		t.Fatalf("got %+v, want zero value", got)
	}
}

func TestLoadJobDefaults_ParsesYAMLFromXDGDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvJobDefaultsFile, "")
	writeDefaultsFile(t, dir, "language: en\nmodel: whisper-1\noutput_format: srt\nchunk_duration: 5m\nmax_bytes_per_chunk: 26214400\ndiarize: true\n")

	got, err := LoadJobDefaults()
	if err != nil {
		t.Fatalf("LoadJobDefaults: %v", err)
	}
	want := JobDefaults{
		Language:         "en",
		Model:            "whisper-1",
		OutputFormat:     "srt",
		ChunkDuration:    5 * time.Minute,
		MaxBytesPerChunk: 26214400,
		Diarize:          true,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoadJobDefaults_ExplicitEnvPathOverridesXDGDir(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom-defaults.yaml")
	if err := os.WriteFile(explicit, []byte("model: gpt-4o-transcribe\n"), 0644); err != nil {
		t.Fatalf("write explicit file: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "unused"))
	t.Setenv(EnvJobDefaultsFile, explicit)

	got, err := LoadJobDefaults()
	if err != nil {
		t.Fatalf("LoadJobDefaults: %v", err)
	}
	if got.Model != "gpt-4o-transcribe" {
		t.Fatalf("Model = %q, want gpt-4o-transcribe", got.Model)
	}
}

func TestLoadJobDefaults_InvalidYAMLIsError(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(explicit, []byte("language: [unterminated\n"), 0644); err != nil {
		t.Fatalf("write explicit file: %v", err)
	}
	t.Setenv(EnvJobDefaultsFile, explicit)

	if _, err := LoadJobDefaults(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyJobDefaults_OnlyFillsZeroFields(t *testing.T) {
	job := PipelineJobOverrides{Language: "fr", ChunkDuration: 2 * time.Minute}
	defaults := JobDefaults{
		Language:         "en",
		Model:            "whisper-1",
		OutputFormat:     "json",
		ChunkDuration:    10 * time.Minute,
		MaxBytesPerChunk: 1024,
		Diarize:          true,
	}

	ApplyJobDefaults(&job, defaults)

	if job.Language != "fr" {
		t.Fatalf("Language = %q, want unchanged fr", job.Language)
	}
	if job.ChunkDuration != 2*time.Minute {
		t.Fatalf("ChunkDuration = %v, want unchanged 2m", job.ChunkDuration)
	}
	if job.Model != "whisper-1" {
		t.Fatalf("Model = %q, want filled from defaults", job.Model)
	}
	if job.OutputFormat != "json" {
		t.Fatalf("OutputFormat = %q, want filled from defaults", job.OutputFormat)
	}
	if job.MaxBytesPerChunk != 1024 {
		t.Fatalf("MaxBytesPerChunk = %d, want filled from defaults", job.MaxBytesPerChunk)
	}
	if !job.Diarize {
		t.Fatal("Diarize = false, want filled from defaults")
	}
}
