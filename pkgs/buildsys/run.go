package buildsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/goplus/sqlmk/internal/env"
)

// MaxCapture bounds how much tool output is kept for error reports.
const MaxCapture = 64 << 10

// ExitError reports a build tool that could not be started or exited
// with a non-zero status. Output holds the tail of its stdout and stderr.
type ExitError struct {
	Bin    string
	Args   []string
	Dir    string
	Code   int // -1 if the process never ran to completion
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("%s: %v", e.Bin, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Bin, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// CommandLine renders the invocation for diagnostics.
func (e *ExitError) CommandLine() string {
	return strings.Join(append([]string{e.Bin}, e.Args...), " ")
}

// Runner executes build tools with a fixed environment and output sinks.
// A nil Env inherits the process environment.
type Runner struct {
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes bin with args in dir. Output is streamed to the runner's
// writers and its tail is captured into the returned *ExitError on failure.
// A bare bin name is resolved against the runner's PATH.
func (r *Runner) Run(ctx context.Context, dir, bin string, args ...string) error {
	path, err := r.lookPath(bin)
	if err != nil {
		return &ExitError{Bin: bin, Args: args, Dir: dir, Code: -1, Err: err}
	}

	tail := NewTail(MaxCapture)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = r.Env
	cmd.Stdout = teeTo(r.Stdout, tail)
	cmd.Stderr = teeTo(r.Stderr, tail)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", bin, ctxErr)
		}
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return &ExitError{Bin: bin, Args: args, Dir: dir, Code: code, Output: tail.String(), Err: err}
	}
	return nil
}

func (r *Runner) lookPath(bin string) (string, error) {
	if r.Env == nil {
		return exec.LookPath(bin)
	}
	return env.New(r.Env).LookPath(bin)
}

func teeTo(w io.Writer, tail *Tail) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(w, tail)
}

// MergeEnv overlays override onto base and returns sorted "KEY=VALUE" pairs.
// A nil base means the process environment.
func MergeEnv(base []string, override map[string]string) []string {
	if base == nil {
		base = os.Environ()
	}
	e := env.New(base)
	keys := make([]string, 0, len(override))
	for k := range override {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Set(k, override[k])
	}
	return e.Environ()
}
