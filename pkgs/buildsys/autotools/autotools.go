package autotools

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/sqlmk/pkgs/buildsys"
)

// AutoTools wraps common Autotools build steps with chainable configuration.
type AutoTools struct {
	SourceDir  string
	buildDir   string
	installDir string
	makeTool   string
	env        map[string]string
	baseEnv    []string
	stdout     io.Writer
	stderr     io.Writer
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New creates a new AutoTools helper for the tree holding the configure script.
// By default the build happens in place.
func New(sourceDir string) *AutoTools {
	return &AutoTools{
		SourceDir: sourceDir,
		makeTool:  "make",
		env:       map[string]string{},
	}
}

func (a *AutoTools) Source(dir string) {
	a.SourceDir = dir
}

func (a *AutoTools) InstallDir(dir string) {
	a.installDir = dir
}

// BuildDir selects an out-of-tree build directory.
func (a *AutoTools) BuildDir(dir string) *AutoTools {
	a.buildDir = dir
	return a
}

// MakeTool overrides the make binary ("make" by default).
func (a *AutoTools) MakeTool(bin string) *AutoTools {
	if bin != "" {
		a.makeTool = bin
	}
	return a
}

func (a *AutoTools) Env(key, value string) {
	a.env[key] = value
}

// BaseEnv replaces the environment that Env overrides are layered on.
func (a *AutoTools) BaseEnv(environ []string) *AutoTools {
	a.baseEnv = environ
	return a
}

// Output sets where tool output is streamed.
func (a *AutoTools) Output(stdout, stderr io.Writer) *AutoTools {
	a.stdout, a.stderr = stdout, stderr
	return a
}

// Configure runs the configure script with standard flags.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	exe := "./configure"
	if a.buildDir != "" {
		abs, err := filepath.Abs(filepath.Join(a.SourceDir, "configure"))
		if err != nil {
			return err
		}
		exe = abs
	}

	configArgs := []string{}
	if a.installDir != "" {
		configArgs = append(configArgs, "--prefix="+a.installDir)
	}
	configArgs = append(configArgs, args...)

	return a.run(ctx, exe, configArgs, dir)
}

// Build runs make (or provided args) in the build directory.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	cmdArgs := []string{a.makeTool}
	if len(args) > 0 {
		cmdArgs = args
	}
	return a.run(ctx, cmdArgs[0], cmdArgs[1:], a.workDir())
}

// Install runs make install (or provided args) in the build directory.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	cmdArgs := []string{a.makeTool, "install"}
	if len(args) > 0 {
		cmdArgs = args
	}
	return a.run(ctx, cmdArgs[0], cmdArgs[1:], a.workDir())
}

// OutputDir returns the install dir if set, otherwise the build dir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.workDir()
}

func (a *AutoTools) workDir() string {
	if a.buildDir != "" {
		return a.buildDir
	}
	return a.SourceDir
}

func (a *AutoTools) run(ctx context.Context, bin string, args []string, workdir string) error {
	r := &buildsys.Runner{
		Env:    buildsys.MergeEnv(a.baseEnv, a.env),
		Stdout: a.stdout,
		Stderr: a.stderr,
	}
	// ./configure is relative to workdir, not to PATH.
	if bin == "./configure" {
		bin = filepath.Join(workdir, "configure")
		if abs, err := filepath.Abs(bin); err == nil {
			bin = abs
		}
	}
	return r.Run(ctx, workdir, bin, args...)
}
