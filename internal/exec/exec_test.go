package exec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/drbasl/mediatranscribe/internal/exec"
)

type fakeLookup struct {
	found map[string]string
}

func (f fakeLookup) LookPath(file string) (string, error) {
	if p, ok := f.found[file]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

type fakeRunner struct {
	out    []byte
	err    error
	called []string
}

func (f *fakeRunner) CombinedOutput(_ context.Context, name string, args ...string) ([]byte, error) {
	f.called = append(f.called, name)
	return f.out, f.err
}

func TestFind_ResolvesFromPath(t *testing.T) {
	r := exec.New(exec.WithPathLookup(fakeLookup{found: map[string]string{"yt-dlp": "/usr/bin/yt-dlp"}}))
	path, err := r.Find("yt-dlp")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if path != "/usr/bin/yt-dlp" {
		t.Fatalf("path = %q", path)
	}
}

func TestFind_MissingBinaryIsErrNotFound(t *testing.T) {
	r := exec.New(exec.WithPathLookup(fakeLookup{found: map[string]string{}}))
	_, err := r.Find("yt-dlp")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRun_UsesResolvedPath(t *testing.T) {
	runner := &fakeRunner{out: []byte("ok")}
	r := exec.New(
		exec.WithPathLookup(fakeLookup{found: map[string]string{"yt-dlp": "/usr/bin/yt-dlp"}}),
		exec.WithCommandRunner(runner),
	)
	out, err := r.Run(context.Background(), "yt-dlp", "--version")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "ok" {
		t.Fatalf("out = %q", out)
	}
	if len(runner.called) != 1 || runner.called[0] != "/usr/bin/yt-dlp" {
		t.Fatalf("called = %v, want resolved path", runner.called)
	}
}

func TestRun_PropagatesNotFoundWithoutRunning(t *testing.T) {
	runner := &fakeRunner{}
	r := exec.New(
		exec.WithPathLookup(fakeLookup{found: map[string]string{}}),
		exec.WithCommandRunner(runner),
	)
	_, err := r.Run(context.Background(), "yt-dlp")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(runner.called) != 0 {
		t.Fatal("runner should not be invoked when binary is unresolved")
	}
}
