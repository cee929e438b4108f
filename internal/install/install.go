// Package install fetches, builds and installs the Tcl development
// library that the engine's makefiles link against.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/lockedfile"
	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
	"github.com/goplus/sqlmk/internal/variant"
	"github.com/goplus/sqlmk/internal/vcs"
	"github.com/goplus/sqlmk/pkgs/buildsys"
	"github.com/goplus/sqlmk/pkgs/buildsys/autotools"
	"github.com/goplus/sqlmk/pkgs/buildsys/makefile"
)

// ErrDependencyMissing is returned when Tcl is not installed and automatic
// installation was disabled.
var ErrDependencyMissing = errors.New("Tcl development library is not installed")

// DependencyBuildFailure reports that building or installing Tcl failed.
// It is never retried.
type DependencyBuildFailure struct {
	Stage    string
	Dir      string
	ExitCode int // -1 if no tool exited
	Output   string
	Err      error
}

func (e *DependencyBuildFailure) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("Tcl %s failed in %s (exit code %d): %v", e.Stage, e.Dir, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("Tcl %s failed in %s: %v", e.Stage, e.Dir, e.Err)
}

func (e *DependencyBuildFailure) Unwrap() error { return e.Err }

func failure(stage, dir string, err error) error {
	f := &DependencyBuildFailure{Stage: stage, Dir: dir, ExitCode: -1, Err: err}
	var ee *buildsys.ExitError
	if errors.As(err, &ee) {
		f.ExitCode = ee.Code
		f.Output = ee.Output
	}
	return f
}

// Installer installs Tcl into the directory a variant resolves to.
type Installer struct {
	Toolchain toolchain.Toolchain
	Source    Source
	// Env is the session environment build tools run in. Read only.
	Env    *env.Env
	Logger arbor.ILogger
	// Stdout and Stderr receive build tool output; nil discards it.
	Stdout, Stderr io.Writer
	HTTPClient     *http.Client
	VCS            vcs.VCS
}

// Result describes a completed install.
type Result struct {
	Version string
	Dir     string
	Layout  tcl.Layout
	// Ran lists the stages that did work; empty means everything was
	// already in place.
	Ran []string
	// Copied lists the canonical copies written.
	Copied []string
}

func (in *Installer) log() arbor.ILogger {
	if in.Logger == nil {
		return arbor.NewNoOpLogger()
	}
	return in.Logger
}

func (in *Installer) vcs() vcs.VCS {
	if in.VCS == nil {
		in.VCS = vcs.NewGitVCS(vcs.WithEnv(in.Env.Environ()))
	}
	return in.VCS
}

// Install makes sure res.InstallDir holds a release build of Tcl with
// canonical copies of its library and interpreter, plus the static
// library when res asks for static linking. Completed stages are recorded
// so repeated or interrupted runs only do the missing work.
func (in *Installer) Install(ctx context.Context, res variant.Resolution) (*Result, error) {
	dir := res.InstallDir
	if dir == "" {
		return nil, errors.New("install: no target directory")
	}
	if in.Env == nil {
		in.Env = env.FromOS()
	}

	unlock, err := lockedfile.MutexAt(filepath.Join(dir, lockFile)).Lock()
	if err != nil {
		return nil, failure("lock", dir, err)
	}
	defer unlock()

	version, err := in.resolveVersion(ctx)
	if err != nil {
		return nil, failure("resolve", dir, err)
	}
	layout, err := tcl.LayoutFor(in.Toolchain, version)
	if err != nil {
		return nil, failure("resolve", dir, err)
	}
	result := &Result{Version: version, Dir: dir, Layout: layout}

	marker, err := ReadMarker(dir)
	if err != nil {
		in.log().Warn().Err(err).Str("dir", dir).Msg("Ignoring unreadable install marker")
		marker = nil
	}
	fresh := marker == nil
	if marker != nil && !marker.matches(version, in.Toolchain.Name, int(res.Width)) {
		in.log().Info().Str("dir", dir).Str("installed", marker.Version).Str("wanted", version).Msg("Install marker is for another build; reinstalling")
		marker = nil
	}
	if marker == nil {
		marker = &Marker{Version: version, Toolchain: in.Toolchain.Name, Width: int(res.Width)}
	}

	var src string
	sources := func() (string, error) {
		if src != "" {
			return src, nil
		}
		s, err := in.sources(ctx, version, marker)
		if err != nil {
			return "", err
		}
		src = s
		return src, nil
	}

	installed := fileExists(filepath.Join(dir, "lib", layout.Library)) &&
		fileExists(filepath.Join(dir, "bin", layout.Interpreter))
	if !installed || !(fresh || marker.Done(StageInstall)) {
		s, err := sources()
		if err != nil {
			return nil, failure("fetch", dir, err)
		}
		if err := in.buildRelease(ctx, s, res); err != nil {
			return nil, err
		}
		delete(marker.Stages, StageCanonical)
		if err := in.record(dir, marker, StageInstall, result); err != nil {
			return nil, err
		}
	}

	copied, err := Canonicalize(dir, layout)
	if err != nil {
		return nil, failure(StageCanonical, dir, err)
	}
	result.Copied = copied
	if len(copied) > 0 || !marker.Done(StageCanonical) {
		if err := in.record(dir, marker, StageCanonical, result); err != nil {
			return nil, err
		}
	}

	if res.Link == variant.Static {
		static := filepath.Join(dir, "lib", layout.StaticLibrary)
		if !fileExists(static) || !(fresh || marker.Done(StageStatic)) {
			s, err := sources()
			if err != nil {
				return nil, failure("fetch", dir, err)
			}
			if err := in.buildStatic(ctx, s, res, layout); err != nil {
				return nil, err
			}
			if err := in.record(dir, marker, StageStatic, result); err != nil {
				return nil, err
			}
		}
	}

	if len(result.Ran) == 0 {
		in.log().Info().Str("dir", dir).Str("version", version).Msg("Tcl already installed")
	} else {
		in.log().Info().Str("dir", dir).Str("version", version).Strs("stages", result.Ran).Msg("Tcl installed")
	}
	return result, nil
}

func (in *Installer) record(dir string, m *Marker, stage string, result *Result) error {
	m.mark(stage)
	result.Ran = append(result.Ran, stage)
	if err := writeMarker(dir, m); err != nil {
		return failure(stage, dir, err)
	}
	return nil
}

// sources returns the unpacked source tree for version, fetching it into
// the cache if needed.
func (in *Installer) sources(ctx context.Context, version string, m *Marker) (string, error) {
	dir := in.Source.Dir
	if dir == "" {
		var err error
		if dir, err = env.SourceCacheDir("tcl", version); err != nil {
			return "", err
		}
	}
	m.Source = in.Source.describe(version)
	if fileExists(filepath.Join(dir, in.platformDir(), in.tclMakefile())) {
		in.log().Debug().Str("dir", dir).Msg("Using cached Tcl sources")
		return dir, nil
	}
	commit, err := in.fetch(ctx, version, dir)
	if err != nil {
		return "", err
	}
	m.Commit = commit
	if !fileExists(filepath.Join(dir, in.platformDir(), in.tclMakefile())) {
		return "", fmt.Errorf("%s does not look like a Tcl source tree: %s/%s is missing", dir, in.platformDir(), in.tclMakefile())
	}
	return dir, nil
}

// platformDir is the Tcl source subdirectory holding the native build.
func (in *Installer) platformDir() string {
	if in.Toolchain.IsMSVC() {
		return "win"
	}
	return "unix"
}

func (in *Installer) tclMakefile() string {
	if in.Toolchain.IsMSVC() {
		return "makefile.vc"
	}
	return "configure"
}

func (in *Installer) nmake(src string) *makefile.Makefile {
	m := makefile.New(in.Toolchain.BuildTool, makefile.NMake, "makefile.vc").
		BaseEnv(in.Env.Environ()).
		Output(in.Stdout, in.Stderr)
	m.Source(filepath.Join(src, "win"))
	return m
}

func (in *Installer) autotools(src, buildDir string, res variant.Resolution) *autotools.AutoTools {
	a := autotools.New(filepath.Join(src, "unix")).
		BuildDir(filepath.Join(src, buildDir)).
		MakeTool(in.Toolchain.BuildTool).
		BaseEnv(in.Env.Environ()).
		Output(in.Stdout, in.Stderr)
	if res.Width == variant.W32 {
		a.Env("CFLAGS", res.Selector)
		a.Env("LDFLAGS", res.Selector)
	}
	return a
}

func (in *Installer) configureArgs(res variant.Resolution, extra ...string) []string {
	var args []string
	if res.Width == variant.W64 {
		args = append(args, "--enable-64bit")
	}
	return append(args, extra...)
}

// buildRelease builds the release configuration and installs it.
func (in *Installer) buildRelease(ctx context.Context, src string, res variant.Resolution) error {
	dir := res.InstallDir
	in.log().Info().Str("src", src).Str("dir", dir).Str("variant", res.Variant.String()).Msg("Building Tcl")
	if in.Toolchain.IsMSVC() {
		m := in.nmake(src)
		if err := m.Build(ctx, "release"); err != nil {
			return failure("build", dir, err)
		}
		m.InstallDir(dir)
		if err := m.Install(ctx); err != nil {
			return failure(StageInstall, dir, err)
		}
		return nil
	}
	a := in.autotools(src, fmt.Sprintf("build-%d", res.Width), res)
	a.InstallDir(dir)
	if err := a.Configure(ctx, in.configureArgs(res)...); err != nil {
		return failure("configure", dir, err)
	}
	if err := a.Build(ctx); err != nil {
		return failure("build", dir, err)
	}
	if err := a.Install(ctx); err != nil {
		return failure(StageInstall, dir, err)
	}
	return nil
}

// buildStatic builds the single-threaded static configuration and copies
// its library next to the dynamic one.
func (in *Installer) buildStatic(ctx context.Context, src string, res variant.Resolution, l tcl.Layout) error {
	dir := res.InstallDir
	in.log().Info().Str("src", src).Str("dir", dir).Msg("Building static Tcl")
	var lib string
	if in.Toolchain.IsMSVC() {
		m := in.nmake(src).Define("OPTS", "nothreads,static")
		if err := m.Build(ctx, "shell"); err != nil {
			return failure(StageStatic, dir, err)
		}
		found, err := findReleaseOutput(filepath.Join(src, "win"), res.Width, l.StaticLibrary)
		if err != nil {
			return failure(StageStatic, dir, err)
		}
		lib = found
	} else {
		buildDir := fmt.Sprintf("build-%d-static", res.Width)
		a := in.autotools(src, buildDir, res)
		a.InstallDir(dir)
		if err := a.Configure(ctx, in.configureArgs(res, "--disable-shared", "--disable-threads")...); err != nil {
			return failure(StageStatic, dir, err)
		}
		if err := a.Build(ctx); err != nil {
			return failure(StageStatic, dir, err)
		}
		lib = filepath.Join(src, buildDir, l.StaticLibrary)
	}
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		return failure(StageStatic, dir, err)
	}
	if _, err := copyFile(lib, filepath.Join(dir, "lib", l.StaticLibrary)); err != nil {
		return failure(StageStatic, dir, err)
	}
	return nil
}

// findReleaseOutput locates name in the makefile.vc output directory for
// width (Release_AMD64_* or Release_IX86_*), preferring the newest.
func findReleaseOutput(winDir string, width variant.Width, name string) (string, error) {
	machine := "AMD64"
	if width == variant.W32 {
		machine = "IX86"
	}
	matches, err := filepath.Glob(filepath.Join(winDir, "Release_"+machine+"*", name))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%s not found under %s", name, filepath.Join(winDir, "Release_"+machine+"*"))
	}
	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]) > modTime(matches[j])
	})
	return matches[0], nil
}

func modTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Describe renders a result for terminal output.
func (r *Result) Describe() string {
	if len(r.Ran) == 0 {
		return fmt.Sprintf("Tcl %s already installed in %s", r.Version, r.Dir)
	}
	return fmt.Sprintf("Tcl %s installed in %s (%s)", r.Version, r.Dir, strings.Join(r.Ran, ", "))
}
