// Package ingest resolves a source URL into local media: either captions
// (fast path, no audio download) or a canonical-ready audio file, both via
// yt-dlp. Resolved paths are cached in memory for 10 minutes so a
// run that tries captions first and falls back to audio doesn't pay for
// yt-dlp twice against the same URL.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// audioExtensions lists formats yt-dlp may produce for "best" audio-only
// download, tried in this order; the first match found on disk wins.
var audioExtensions = []string{"m4a", "webm", "opus", "mp3", "aac", "wav", "ogg"}

// Runner resolves and invokes an external binary, returning its combined
// stdout+stderr. *exec.Resolver satisfies this directly.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// globber lists files matching a pattern; overridable for tests.
type globber interface {
	Glob(pattern string) ([]string, error)
}

type osGlobber struct{}

func (osGlobber) Glob(pattern string) ([]string, error) { return filepath.Glob(pattern) }

// Transcoder converts a downloaded audio file to the canonical WAV asset.
// The pipeline layer supplies this, closing over the resolved ffmpeg path
// and timeout; ingest itself has no ffmpeg dependency.
type Transcoder func(ctx context.Context, srcPath, destPath string) error

// CaptionFile is the result of FetchCaptions: the raw VTT text plus
// whether it came from manual or auto-generated subtitles.
type CaptionFile struct {
	Path     string
	Lang     string
	VTT      string
	UsedAuto bool
}

// MediaFile is the result of FetchAudio: a WAV file ready for C1
// validation.
type MediaFile struct {
	Path string
}

// Ingestor fetches captions or audio for a URL via yt-dlp.
type Ingestor struct {
	runner  Runner
	glob    globber
	cache   *gocache.Cache
	readDir func(dir string) ([]os.DirEntry, error)
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithGlobber overrides file-pattern matching, for tests.
func WithGlobber(g globber) Option {
	return func(i *Ingestor) { i.glob = g }
}

// WithCache overrides the resolved-path cache, for tests (use
// gocache.New(0, 0) to disable expiry in a test).
func WithCache(c *gocache.Cache) Option {
	return func(i *Ingestor) { i.cache = c }
}

// New builds an Ingestor around runner, caching resolved paths for 10
// minutes — long enough to cover a single captions-then-audio fallback
// within one process run, short enough not to serve a stale download
// across separate invocations.
func New(runner Runner, opts ...Option) *Ingestor {
	i := &Ingestor{
		runner: runner,
		glob:   osGlobber{},
		cache:  gocache.New(10*time.Minute, 15*time.Minute),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// FetchCaptions downloads captions for url in lang into dir, trying
// manual subtitles first and falling back to auto-generated ones.
func (i *Ingestor) FetchCaptions(ctx context.Context, url, lang, dir string) (CaptionFile, error) {
	key := "captions:" + urlToken(url) + ":" + lang
	if cached, ok := i.cache.Get(key); ok {
		return cached.(CaptionFile), nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CaptionFile{}, fmt.Errorf("ingest: create caption dir: %w", err)
	}

	if _, err := i.runner.Run(ctx, "yt-dlp", captionsArgs(url, lang, dir, false)...); err != nil {
		// yt-dlp failures here are not fatal on their own: the auto-subs
		// attempt below may still succeed where manual subs don't exist.
		_ = err
	}

	path, err := i.findCaptionFile(dir, lang)
	usedAuto := false
	if err != nil {
		usedAuto = true
		if _, runErr := i.runner.Run(ctx, "yt-dlp", captionsArgs(url, lang, dir, true)...); runErr != nil {
			_ = runErr
		}
		path, err = i.findCaptionFile(dir, lang)
	}
	if err != nil {
		return CaptionFile{}, ErrCaptionsNotFound
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return CaptionFile{}, fmt.Errorf("ingest: read caption file: %w", err)
	}

	result := CaptionFile{Path: path, Lang: lang, VTT: string(raw), UsedAuto: usedAuto}
	i.cache.SetDefault(key, result)
	return result, nil
}

// FetchAudio downloads the best available audio for url into dir and
// transcodes it to a canonical WAV using transcode.
func (i *Ingestor) FetchAudio(ctx context.Context, url, dir string, transcode Transcoder) (MediaFile, error) {
	key := "audio:" + urlToken(url)
	if cached, ok := i.cache.Get(key); ok {
		return cached.(MediaFile), nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return MediaFile{}, fmt.Errorf("ingest: create audio dir: %w", err)
	}

	if _, err := i.runner.Run(ctx, "yt-dlp", audioArgs(url, dir)...); err != nil {
		return MediaFile{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	downloaded, err := i.findAudioFile(dir)
	if err != nil {
		return MediaFile{}, err
	}

	wavPath := trimExt(downloaded) + ".wav"
	if err := transcode(ctx, downloaded, wavPath); err != nil {
		return MediaFile{}, fmt.Errorf("ingest: transcode downloaded audio: %w", err)
	}

	result := MediaFile{Path: wavPath}
	i.cache.SetDefault(key, result)
	return result, nil
}

func (i *Ingestor) findCaptionFile(dir, lang string) (string, error) {
	matches, err := i.glob.Glob(filepath.Join(dir, "*."+lang+".vtt"))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}
	matches, err = i.glob.Glob(filepath.Join(dir, "*.vtt"))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}
	return "", ErrCaptionsNotFound
}

func (i *Ingestor) findAudioFile(dir string) (string, error) {
	for _, ext := range audioExtensions {
		matches, err := i.glob.Glob(filepath.Join(dir, "*."+ext))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", ErrAudioNotFound
}

// captionsArgs builds the yt-dlp invocation for downloading captions,
// manual or auto, without downloading the video itself.
func captionsArgs(url, lang, dir string, auto bool) []string {
	args := []string{"--no-playlist", "--skip-download"}
	if auto {
		args = append(args, "--write-auto-subs")
	} else {
		args = append(args, "--write-subs")
	}
	args = append(args,
		"--sub-format", "vtt",
		"--sub-langs", lang,
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		url,
	)
	return args
}

// audioArgs builds the yt-dlp invocation for downloading the best
// available audio-only stream, left in its native format for ffmpeg to
// convert afterward.
func audioArgs(url, dir string) []string {
	return []string{
		"--no-playlist",
		"-x",
		"--audio-format", "best",
		"--audio-quality", "0",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		url,
	}
}

func urlToken(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:10]
}

func trimExt(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)]
}
