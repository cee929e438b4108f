// Package invoke runs the engine's makefile for one target and feature
// set and reports the artifacts it produced.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
	"github.com/goplus/sqlmk/pkgs/buildsys"
	"github.com/goplus/sqlmk/pkgs/buildsys/makefile"
)

// Makefile macros understood by the engine's makefiles.
const (
	macroOpts       = "OPTS"
	macroTclDir     = "TCLDIR"
	macroNativeLibs = "USE_NATIVE_LIBPATHS"
	macroStaticTcl  = "STATICALLY_LINK_TCL"
	macroCCOpts     = "CCOPTS"
	macroLibTcl     = "LIBTCL"
	macroEnabled    = "1"
)

// Request is one build.
type Request struct {
	Target Target
	Flags  FlagSet
	// Release adds ReleaseFlags and native library paths.
	Release bool
	// Static links the target's Tcl statically; Link must then be complete.
	Static bool
	Link   LinkSpec
	// TclDir is passed as TCLDIR when set.
	TclDir string
}

// EffectiveFlags returns the flags the build will enable.
func (r Request) EffectiveFlags() FlagSet {
	if r.Release {
		return r.Flags.Union(ReleaseFlags)
	}
	return r.Flags
}

// BuildToolError reports a non-zero exit of the build tool. It is never
// retried.
type BuildToolError struct {
	Args     []string
	ExitCode int // -1 if the tool could not be started
	Output   string
	Err      error
}

func (e *BuildToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Args[0], e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
}

func (e *BuildToolError) Unwrap() error { return e.Err }

// MissingArtifactError reports a build that exited zero but did not
// produce what its target promises.
type MissingArtifactError struct {
	Target  Target
	Missing []string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("build of %s succeeded but did not produce %s", e.Target, strings.Join(e.Missing, ", "))
}

// Result describes a finished build.
type Result struct {
	Args      []string
	Artifacts []string
	Elapsed   time.Duration
}

// Invoker runs the makefile in SourceDir.
type Invoker struct {
	Toolchain toolchain.Toolchain
	// Layout supplies the static Tcl library name for link checks.
	Layout    tcl.Layout
	SourceDir string
	Env       *env.Env
	Logger    arbor.ILogger
	Stdout    io.Writer
	Stderr    io.Writer
}

func (iv *Invoker) log() arbor.ILogger {
	if iv.Logger == nil {
		return arbor.NewNoOpLogger()
	}
	return iv.Logger
}

// Validate rejects requests that cannot be run.
func (iv *Invoker) Validate(req Request) error {
	if req.Target.Kind == Utility && req.Target.Utility == "" {
		return errors.New("utility target needs a program name")
	}
	if req.Static {
		if !req.Target.LinksTcl() {
			return fmt.Errorf("target %s does not link Tcl; static linking applies to util:<name>, devtest and releasetest", req.Target)
		}
		return req.Link.Validate(req.Target, iv.Toolchain, iv.Layout)
	}
	return nil
}

// driver returns the configured makefile driver and goals for req.
func (iv *Invoker) driver(req Request) (*makefile.Makefile, []string) {
	m := iv.Toolchain.Driver()
	m.Source(iv.SourceDir)
	if flags := req.EffectiveFlags(); flags.Len() > 0 {
		m.Define(macroOpts, strings.Join(flags.Defines(), " "))
	}
	if req.TclDir != "" {
		m.Define(macroTclDir, req.TclDir)
	}
	if req.Release {
		m.Define(macroNativeLibs, macroEnabled)
	}
	if req.Static {
		m.Define(macroStaticTcl, macroEnabled)
		m.Define(macroCCOpts, req.Link.CCOpts)
		m.Define(macroLibTcl, strings.Join(req.Link.Libs, " "))
	}
	return m, req.Target.Goals(iv.Toolchain)
}

// Command returns the full command line for req without running it.
func (iv *Invoker) Command(req Request) ([]string, error) {
	if err := iv.Validate(req); err != nil {
		return nil, err
	}
	m, goals := iv.driver(req)
	return append([]string{m.Tool()}, m.Args(goals...)...), nil
}

// Run builds req synchronously, streaming tool output, and returns the
// artifacts produced.
func (iv *Invoker) Run(ctx context.Context, req Request) (*Result, error) {
	if err := iv.Validate(req); err != nil {
		return nil, err
	}
	m, goals := iv.driver(req)
	if iv.Env != nil {
		m.BaseEnv(iv.Env.Environ())
	}
	m.Output(iv.Stdout, iv.Stderr)
	args := append([]string{m.Tool()}, m.Args(goals...)...)

	iv.log().Info().
		Str("target", req.Target.String()).
		Strs("flags", req.EffectiveFlags().Names()).
		Bool("static", req.Static).
		Str("dir", iv.SourceDir).
		Msg("Running build tool")

	start := time.Now()
	if err := m.Build(ctx, goals...); err != nil {
		var ee *buildsys.ExitError
		if errors.As(err, &ee) {
			return nil, &BuildToolError{Args: args, ExitCode: ee.Code, Output: ee.Output, Err: ee.Err}
		}
		return nil, err
	}
	result := &Result{Args: args, Elapsed: time.Since(start)}

	var missing []string
	for _, name := range req.Target.Artifacts(iv.Toolchain) {
		path := filepath.Join(iv.SourceDir, name)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			missing = append(missing, name)
			continue
		}
		result.Artifacts = append(result.Artifacts, path)
	}
	if len(missing) > 0 {
		return nil, &MissingArtifactError{Target: req.Target, Missing: missing}
	}
	iv.log().Info().
		Str("target", req.Target.String()).
		Int("artifacts", len(result.Artifacts)).
		Str("elapsed", result.Elapsed.Round(time.Millisecond).String()).
		Msg("Build finished")
	return result, nil
}
