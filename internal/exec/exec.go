// Package exec provides a small, dependency-injectable wrapper around
// resolving a binary on PATH and running it with a context timeout. It
// generalizes the lookup-then-shell-out idiom internal/ffmpeg uses for
// ffmpeg itself, so any other external binary (yt-dlp included) can be
// resolved and invoked the same way without duplicating the plumbing.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrNotFound is returned when a binary cannot be located on PATH.
var ErrNotFound = errors.New("exec: binary not found on PATH")

// pathLookup abstracts exec.LookPath so tests can fake PATH resolution.
type pathLookup interface {
	LookPath(file string) (string, error)
}

type osPathLookup struct{}

func (osPathLookup) LookPath(file string) (string, error) { return exec.LookPath(file) }

// commandRunner abstracts process execution so tests can avoid spawning
// real subprocesses.
type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osCommandRunner struct{}

func (osCommandRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Resolver locates a named binary on PATH and runs it.
type Resolver struct {
	lookup pathLookup
	runner commandRunner
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPathLookup overrides PATH resolution, for tests.
func WithPathLookup(l pathLookup) ResolverOption {
	return func(r *Resolver) { r.lookup = l }
}

// WithCommandRunner overrides process execution, for tests.
func WithCommandRunner(c commandRunner) ResolverOption {
	return func(r *Resolver) { r.runner = c }
}

// New builds a Resolver with the production PATH-lookup and
// subprocess-execution implementations, overridable via opts.
func New(opts ...ResolverOption) *Resolver {
	r := &Resolver{lookup: osPathLookup{}, runner: osCommandRunner{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find resolves name on PATH, returning ErrNotFound if it isn't installed.
func (r *Resolver) Find(name string) (string, error) {
	path, err := r.lookup.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Run resolves name on PATH and runs it with args, returning combined
// stdout+stderr. The subprocess is bound to ctx and killed if ctx is
// cancelled or its deadline passes.
func (r *Resolver) Run(ctx context.Context, name string, args ...string) (string, error) {
	path, err := r.Find(name)
	if err != nil {
		return "", err
	}
	out, err := r.runner.CombinedOutput(ctx, path, args...)
	if err != nil {
		return string(out), fmt.Errorf("%s %v: %w\n%s", name, args, err, out)
	}
	return string(out), nil
}
