package cli

import (
	"context"
	"sync"
	"time"

	"github.com/drbasl/mediatranscribe/internal/chunk"
	"github.com/drbasl/mediatranscribe/internal/config"
	"github.com/drbasl/mediatranscribe/internal/ingest"
	"github.com/drbasl/mediatranscribe/internal/lang"
	"github.com/drbasl/mediatranscribe/internal/media"
	"github.com/drbasl/mediatranscribe/internal/metrics"
	"github.com/drbasl/mediatranscribe/internal/pipeline"
	"github.com/drbasl/mediatranscribe/internal/restructure"
	"github.com/drbasl/mediatranscribe/internal/template"
	"github.com/drbasl/mediatranscribe/internal/transcribe"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc      func(ctx context.Context) (string, error)
	CheckVersionFunc func(ctx context.Context, ffmpegPath string)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	if m.CheckVersionFunc != nil {
		m.CheckVersionFunc(ctx, ffmpegPath)
	}
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock RestructurerFactory
// ---------------------------------------------------------------------------

type mockRestructurerFactory struct {
	NewMapReducerFunc func(provider Provider, apiKey string, opts ...restructure.MapReduceOption) (restructure.MapReducer, error)
	NewMapReducerErr  error

	mu                 sync.Mutex
	newMapReducerCalls []mapReducerCall
	mockMapReducer     *mockMapReduceRestructurer
}

type mapReducerCall struct {
	Provider string
	APIKey   string
}

func (m *mockRestructurerFactory) NewMapReducer(provider Provider, apiKey string, opts ...restructure.MapReduceOption) (restructure.MapReducer, error) {
	m.mu.Lock()
	m.newMapReducerCalls = append(m.newMapReducerCalls, mapReducerCall{Provider: provider.String(), APIKey: apiKey})
	m.mu.Unlock()

	if m.NewMapReducerErr != nil {
		return nil, m.NewMapReducerErr
	}
	if m.NewMapReducerFunc != nil {
		return m.NewMapReducerFunc(provider, apiKey, opts...)
	}
	if m.mockMapReducer != nil {
		return m.mockMapReducer, nil
	}
	return &mockMapReduceRestructurer{}, nil
}

func (m *mockRestructurerFactory) NewMapReducerCalls() []mapReducerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mapReducerCall, len(m.newMapReducerCalls))
	copy(result, m.newMapReducerCalls)
	return result
}

// ---------------------------------------------------------------------------
// Mock PipelineRunnerFactory
// ---------------------------------------------------------------------------

type mockPipelineRunnerFactory struct {
	NewRunnerFunc func(ffmpegPath, apiKey string, rec metrics.Recorder) pipeline.Deps

	mu         sync.Mutex
	newRunnerCalls []newRunnerCall
}

type newRunnerCall struct {
	FFmpegPath string
	APIKey     string
}

func (m *mockPipelineRunnerFactory) NewRunner(ffmpegPath, apiKey string, rec metrics.Recorder) pipeline.Deps {
	m.mu.Lock()
	m.newRunnerCalls = append(m.newRunnerCalls, newRunnerCall{FFmpegPath: ffmpegPath, APIKey: apiKey})
	m.mu.Unlock()

	if m.NewRunnerFunc != nil {
		return m.NewRunnerFunc(ffmpegPath, apiKey, rec)
	}
	return pipeline.Deps{
		MediaProber:       &mockMediaProber{},
		Chunker:           &mockChunker{},
		TranscriberClient: &mockEngineClient{},
		Downloader:        &mockDownloader{},
		Recorder:          rec,
	}
}

func (m *mockPipelineRunnerFactory) NewRunnerCalls() []newRunnerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]newRunnerCall, len(m.newRunnerCalls))
	copy(result, m.newRunnerCalls)
	return result
}

// ---------------------------------------------------------------------------
// Mock MediaProber
// ---------------------------------------------------------------------------

type mockMediaProber struct {
	ProbeFunc              func(ctx context.Context, path string) (time.Duration, error)
	TranscodeFunc          func(ctx context.Context, srcPath, destPath string) error
	ValidateCanonicalFunc  func(path string) (*media.Asset, error)
}

func (m *mockMediaProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, path)
	}
	return 5 * time.Minute, nil
}

func (m *mockMediaProber) Transcode(ctx context.Context, srcPath, destPath string) error {
	if m.TranscodeFunc != nil {
		return m.TranscodeFunc(ctx, srcPath, destPath)
	}
	return nil
}

func (m *mockMediaProber) ValidateCanonical(path string) (*media.Asset, error) {
	if m.ValidateCanonicalFunc != nil {
		return m.ValidateCanonicalFunc(path)
	}
	return &media.Asset{
		Path:       path,
		SampleRate: media.CanonicalSampleRate,
		BitDepth:   media.CanonicalBitDepth,
		Channels:   media.CanonicalChannels,
	}, nil
}

// ---------------------------------------------------------------------------
// Mock Chunker
// ---------------------------------------------------------------------------

type mockChunker struct {
	CutFunc func(ctx context.Context, sourcePath string, plan *chunk.Plan, outDir string) ([]chunk.Result, error)
}

func (m *mockChunker) Cut(ctx context.Context, sourcePath string, plan *chunk.Plan, outDir string) ([]chunk.Result, error) {
	if m.CutFunc != nil {
		return m.CutFunc(ctx, sourcePath, plan, outDir)
	}
	results := make([]chunk.Result, len(plan.Specs))
	for i, spec := range plan.Specs {
		results[i] = chunk.Result{Spec: spec, Path: sourcePath}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Mock engine.Client
// ---------------------------------------------------------------------------

type mockEngineClient struct {
	TranscribeFunc func(ctx context.Context, chunkPath string, opts transcribe.Options) (transcribe.Response, error)
}

func (m *mockEngineClient) Transcribe(ctx context.Context, chunkPath string, opts transcribe.Options) (transcribe.Response, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, chunkPath, opts)
	}
	return transcribe.Response{Text: "transcribed text"}, nil
}

// ---------------------------------------------------------------------------
// Mock Downloader
// ---------------------------------------------------------------------------

type mockDownloader struct {
	FetchCaptionsFunc func(ctx context.Context, url, lang, dir string) (ingest.CaptionFile, error)
	FetchAudioFunc    func(ctx context.Context, url, dir string, transcode ingest.Transcoder) (ingest.MediaFile, error)
}

func (m *mockDownloader) FetchCaptions(ctx context.Context, url, lang, dir string) (ingest.CaptionFile, error) {
	if m.FetchCaptionsFunc != nil {
		return m.FetchCaptionsFunc(ctx, url, lang, dir)
	}
	return ingest.CaptionFile{}, ingest.ErrCaptionsNotFound
}

func (m *mockDownloader) FetchAudio(ctx context.Context, url, dir string, transcode ingest.Transcoder) (ingest.MediaFile, error) {
	if m.FetchAudioFunc != nil {
		return m.FetchAudioFunc(ctx, url, dir, transcode)
	}
	return ingest.MediaFile{}, nil
}

// ---------------------------------------------------------------------------
// Mock MapReduceRestructurer
// ---------------------------------------------------------------------------

type mockMapReduceRestructurer struct {
	RestructureFunc func(ctx context.Context, transcript string, tmpl template.Name, outputLang lang.Language) (string, bool, error)

	mu               sync.Mutex
	restructureCalls []mapReduceRestructureCall
}

type mapReduceRestructureCall struct {
	Transcript   string
	TemplateName string
	OutputLang   string
}

func (m *mockMapReduceRestructurer) Restructure(ctx context.Context, transcript string, tmpl template.Name, outputLang lang.Language) (string, bool, error) {
	m.mu.Lock()
	m.restructureCalls = append(m.restructureCalls, mapReduceRestructureCall{
		Transcript:   transcript,
		TemplateName: tmpl.String(),
		OutputLang:   outputLang.String(),
	})
	m.mu.Unlock()

	if m.RestructureFunc != nil {
		return m.RestructureFunc(ctx, transcript, tmpl, outputLang)
	}
	return "restructured text", false, nil
}

func (m *mockMapReduceRestructurer) RestructureCalls() []mapReduceRestructureCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mapReduceRestructureCall, len(m.restructureCalls))
	copy(result, m.restructureCalls)
	return result
}

// ---------------------------------------------------------------------------
// Compile-time interface verification
// ---------------------------------------------------------------------------

var (
	_ FFmpegResolver        = (*mockFFmpegResolver)(nil)
	_ ConfigLoader          = (*mockConfigLoader)(nil)
	_ RestructurerFactory   = (*mockRestructurerFactory)(nil)
	_ PipelineRunnerFactory = (*mockPipelineRunnerFactory)(nil)
	_ pipeline.MediaProber  = (*mockMediaProber)(nil)
	_ pipeline.Chunker      = (*mockChunker)(nil)
	_ pipeline.Downloader   = (*mockDownloader)(nil)
	_ restructure.MapReducer = (*mockMapReduceRestructurer)(nil)
)
