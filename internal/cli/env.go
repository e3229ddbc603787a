package cli

import (
	"context"
	"io"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/config"
	"github.com/drbasl/mediatranscribe/internal/exec"
	"github.com/drbasl/mediatranscribe/internal/ffmpeg"
	"github.com/drbasl/mediatranscribe/internal/ingest"
	"github.com/drbasl/mediatranscribe/internal/media"
	"github.com/drbasl/mediatranscribe/internal/metrics"
	"github.com/drbasl/mediatranscribe/internal/pipeline"
	"github.com/drbasl/mediatranscribe/internal/restructure"
	"github.com/drbasl/mediatranscribe/internal/transcribe"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver      FFmpegResolver
	ConfigLoader        ConfigLoader
	RestructurerFactory RestructurerFactory
	PipelineRunner      PipelineRunnerFactory
	Recorder            metrics.Recorder
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// RestructurerFactory creates restructurers for transcript formatting.
type RestructurerFactory interface {
	// NewMapReducer creates a MapReducer configured for the given provider
	// and API key.
	NewMapReducer(provider Provider, apiKey string, opts ...restructure.MapReduceOption) (restructure.MapReducer, error)
}

// PipelineRunnerFactory builds a ready-to-run pipeline for one job, wiring
// the media prober, chunker, downloader, and transcription client against
// a resolved ffmpeg binary and API key.
type PipelineRunnerFactory interface {
	NewRunner(ffmpegPath, apiKey string, rec metrics.Recorder) pipeline.Deps
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithRestructurerFactory sets the restructurer factory.
func WithRestructurerFactory(f RestructurerFactory) EnvOption {
	return func(e *Env) {
		e.RestructurerFactory = f
	}
}

// WithPipelineRunner sets the pipeline runner factory.
func WithPipelineRunner(f PipelineRunnerFactory) EnvOption {
	return func(e *Env) {
		e.PipelineRunner = f
	}
}

// WithRecorder sets the metrics recorder shared across pipeline runs.
func WithRecorder(rec metrics.Recorder) EnvOption {
	return func(e *Env) {
		e.Recorder = rec
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:              os.Stderr,
		Getenv:              os.Getenv,
		Now:                 time.Now,
		FFmpegResolver:      &defaultFFmpegResolver{},
		ConfigLoader:        &defaultConfigLoader{},
		RestructurerFactory: &defaultRestructurerFactory{},
		PipelineRunner:      &defaultPipelineRunnerFactory{},
		Recorder:            metrics.Noop(),
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.CheckVersion(ctx, ffmpegPath)
}

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultRestructurerFactory implements RestructurerFactory, dispatching on
// provider to either the OpenAI SDK-backed restructurer or the DeepSeek
// HTTP-backed one.
type defaultRestructurerFactory struct{}

func (defaultRestructurerFactory) NewMapReducer(provider Provider, apiKey string, opts ...restructure.MapReduceOption) (restructure.MapReducer, error) {
	provider = provider.OrDefault()

	if provider.IsOpenAI() {
		base := restructure.NewOpenAIRestructurer(openai.NewClient(apiKey))
		return restructure.NewMapReduceRestructurer(base, opts...), nil
	}

	base, err := restructure.NewDeepSeekRestructurer(apiKey)
	if err != nil {
		return nil, err
	}
	return restructure.NewMapReduceRestructurer(base, opts...), nil
}

// defaultPipelineRunnerFactory builds pipeline.Deps wired to the real
// media/chunk/ingest/transcribe packages for one resolved ffmpeg binary
// and API key.
type defaultPipelineRunnerFactory struct{}

func (defaultPipelineRunnerFactory) NewRunner(ffmpegPath, apiKey string, rec metrics.Recorder) pipeline.Deps {
	return pipeline.Deps{
		MediaProber:       &ffmpegMediaProber{ffmpegPath: ffmpegPath, executor: ffmpeg.NewExecutor()},
		Chunker:           &ffmpegChunker{ffmpegPath: ffmpegPath},
		Downloader:        ingest.New(exec.New()),
		TranscriberClient: transcribe.NewOpenAITranscriber(apiKey),
		Recorder:          rec,
	}
}

// ffmpegMediaProber adapts internal/media's free functions to
// pipeline.MediaProber, closing over the resolved ffmpeg binary.
type ffmpegMediaProber struct {
	ffmpegPath string
	executor   *ffmpeg.Executor
}

func (p *ffmpegMediaProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	return media.Probe(ctx, p.executor, p.ffmpegPath, path)
}

func (p *ffmpegMediaProber) Transcode(ctx context.Context, srcPath, destPath string) error {
	return media.Transcode(ctx, p.ffmpegPath, srcPath, destPath, defaultTranscodeTimeout)
}

func (p *ffmpegMediaProber) ValidateCanonical(path string) (*media.Asset, error) {
	return media.ValidateCanonical(path)
}

// defaultTranscodeTimeout is how long a cancelled transcode is given to exit
// before ffmpeg is killed (see ffmpeg.RunGraceful); the transcode itself
// runs without a deadline.
const defaultTranscodeTimeout = 10 * time.Minute

// ffmpegChunker adapts chunk.Cut to pipeline.Chunker, closing over the
// resolved ffmpeg binary.
type ffmpegChunker struct {
	ffmpegPath string
}

func (c *ffmpegChunker) Cut(ctx context.Context, sourcePath string, plan *chunk.Plan, outDir string) ([]chunk.Result, error) {
	cutter := chunk.NewCutter(c.ffmpegPath)
	return chunk.Cut(ctx, cutter, sourcePath, plan, outDir)
}

// Compile-time interface verification.
var (
	_ FFmpegResolver        = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader          = (*defaultConfigLoader)(nil)
	_ RestructurerFactory   = (*defaultRestructurerFactory)(nil)
	_ PipelineRunnerFactory = (*defaultPipelineRunnerFactory)(nil)
)
