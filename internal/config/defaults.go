package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvJobDefaultsFile names the environment variable holding an explicit
// path to a job-defaults file, checked before the XDG config directory.
const EnvJobDefaultsFile = "TRANSCRIPT_DEFAULTS_FILE"

const jobDefaultsFileName = "defaults.yaml"

// JobDefaults holds optional per-job settings read from a YAML file,
// layered beneath explicit flags and the OPENAI_* / REQUEST_TIMEOUT
// environment knobs: flags win, then environment, then this file.
type JobDefaults struct {
	Language         string        `yaml:"language"`
	Model            string        `yaml:"model"`
	OutputFormat     string        `yaml:"output_format"`
	ChunkDuration    time.Duration `yaml:"chunk_duration"`
	MaxBytesPerChunk int64         `yaml:"max_bytes_per_chunk"`
	Diarize          bool          `yaml:"diarize"`
}

// LoadJobDefaults reads the job-defaults YAML file, if one exists. The
// file is located via TRANSCRIPT_DEFAULTS_FILE when set, otherwise
// defaults.yaml under the same config directory as the key=value config
// file. A missing file is not an error: the zero JobDefaults is returned,
// and every field is left for flags/env to supply.
func LoadJobDefaults() (JobDefaults, error) {
	var defaults JobDefaults

	p := os.Getenv(EnvJobDefaultsFile)
	if p == "" {
		d, err := dir()
		if err != nil {
			return defaults, err
		}
		p = d + string(os.PathSeparator) + jobDefaultsFileName
	}

	data, err := os.ReadFile(p) // #nosec G304 -- path from XDG config dir or explicit env override
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read job defaults: %w", err)
	}

	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("parse job defaults: %w", err)
	}
	return defaults, nil
}

// ApplyJobDefaults fills zero-valued fields of job from defaults, leaving
// any value the caller already set (a flag or an environment override)
// untouched.
func ApplyJobDefaults(job *PipelineJobOverrides, defaults JobDefaults) {
	if job.Language == "" {
		job.Language = defaults.Language
	}
	if job.Model == "" {
		job.Model = defaults.Model
	}
	if job.OutputFormat == "" {
		job.OutputFormat = defaults.OutputFormat
	}
	if job.ChunkDuration == 0 {
		job.ChunkDuration = defaults.ChunkDuration
	}
	if job.MaxBytesPerChunk == 0 {
		job.MaxBytesPerChunk = defaults.MaxBytesPerChunk
	}
	if !job.Diarize {
		job.Diarize = defaults.Diarize
	}
}

// PipelineJobOverrides is the subset of pipeline.Job fields ApplyJobDefaults
// can layer defaults onto; kept separate from pipeline.Job so this package
// doesn't need to import internal/pipeline.
type PipelineJobOverrides struct {
	Language         string
	Model            string
	OutputFormat     string
	ChunkDuration    time.Duration
	MaxBytesPerChunk int64
	Diarize          bool
}
