// Package vcs fetches Tcl sources from a git remote: a shallow checkout of
// one ref into a cache directory, and the remote's tag list for version
// discovery.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/sqlmk/pkgs/buildsys"
)

// VCS is the source-control access the installer needs.
type VCS interface {
	// Sync leaves dir at exactly ref (branch, tag or commit) with a
	// depth-1 history, creating dir if needed. Local changes are discarded.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Tags lists the tag names of remote.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Head returns the commit checked out in dir.
	Head(ctx context.Context, dir string) (string, error)
}

type gitVCS struct {
	bin string
	env []string
}

// GitOption configures the git client.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.bin = path
	}
}

// WithEnv sets the environment git runs in. Interactive prompts are
// always disabled.
func WithEnv(env []string) GitOption {
	return func(g *gitVCS) {
		g.env = env
	}
}

// NewGitVCS returns a VCS backed by the git command.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{bin: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if _, err := g.git(ctx, dir, "init", "--quiet"); err != nil {
			return err
		}
	}
	steps := [][]string{
		{"fetch", "--quiet", "--depth", "1", "--no-tags", remote, ref},
		{"checkout", "--force", "--quiet", "FETCH_HEAD"},
	}
	for _, args := range steps {
		if _, err := g.git(ctx, dir, args...); err != nil {
			return fmt.Errorf("sync %s at %s: %w", remote, ref, err)
		}
	}
	return nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	out, err := g.git(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", remote, err)
	}
	return parseTagRefs(out), nil
}

// parseTagRefs extracts tag names from ls-remote output. Each line is
// "<hash>\trefs/tags/<tag>"; peeled entries ("^{}") are skipped.
func parseTagRefs(out string) []string {
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		_, ref, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		tag, ok := strings.CutPrefix(ref, "refs/tags/")
		if ok && tag != "" && !strings.HasSuffix(tag, "^{}") {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// git runs one git command in dir and returns its stdout. A failed
// command's error carries what git printed.
func (g *gitVCS) git(ctx context.Context, dir string, args ...string) (string, error) {
	environ := g.env
	if environ == nil {
		environ = os.Environ()
	}
	var stdout bytes.Buffer
	r := &buildsys.Runner{
		Env:    append(environ[:len(environ):len(environ)], "GIT_TERMINAL_PROMPT=0"),
		Stdout: &stdout,
	}
	if err := r.Run(ctx, dir, g.bin, args...); err != nil {
		var ee *buildsys.ExitError
		if errors.As(err, &ee) && ee.Code >= 0 {
			if msg := strings.TrimSpace(ee.Output); msg != "" {
				return "", fmt.Errorf("git %s: %s", args[0], msg)
			}
		}
		return "", err
	}
	return stdout.String(), nil
}
