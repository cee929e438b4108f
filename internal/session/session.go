// Package session runs one build from a bare environment to finished
// artifacts: Uninitialized, ToolchainVerified, DependenciesSatisfied, then
// Built or Failed.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/install"
	"github.com/goplus/sqlmk/internal/invoke"
	"github.com/goplus/sqlmk/internal/probe"
	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
	"github.com/goplus/sqlmk/internal/variant"
)

// State is the position of a session in its lifecycle.
type State int

const (
	Uninitialized State = iota
	ToolchainVerified
	DependenciesSatisfied
	Built
	Failed
)

var stateNames = [...]string{
	Uninitialized:         "Uninitialized",
	ToolchainVerified:     "ToolchainVerified",
	DependenciesSatisfied: "DependenciesSatisfied",
	Built:                 "Built",
	Failed:                "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stages name the component operation a session failed in.
const (
	StageResolve = "resolve"
	StageProbe   = "probe"
	StageInstall = "install"
	StageBuild   = "build"
)

// StageError is the terminal error of a failed session. Err is the
// originating component's error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrTransition reports an out-of-order state change.
var ErrTransition = errors.New("invalid session state transition")

// Options configure a session.
type Options struct {
	Toolchain   toolchain.Toolchain
	Conventions variant.Conventions
	// TclDir overrides the install root for the requested width.
	TclDir string
	// SourceDir holds the engine's makefile.
	SourceDir     string
	Source        install.Source
	MinTclVersion string
	// AutoInstall lets the session install a missing Tcl.
	AutoInstall bool
	// ForceInstall runs the installer even when Tcl looks ready.
	ForceInstall bool
	// VCVarsAll, when set, is run to import the MSVC environment.
	VCVarsAll    string
	ProbeTimeout time.Duration
	// BuildTimeout bounds the build tool invocation; zero means no limit.
	BuildTimeout time.Duration
}

// Session is a single build. It owns the session environment; only the
// variant resolution writes to it.
type Session struct {
	ID     string
	opts   Options
	env    *env.Env
	log    arbor.ILogger
	Stdout io.Writer
	Stderr io.Writer

	state   State
	history []State
	err     error

	Resolution variant.Resolution
	Layout     tcl.Layout
	Report     *probe.Report
	Installed  *install.Result
	Result     *invoke.Result
}

// New starts a session over a private copy of base.
func New(opts Options, base *env.Env, logger arbor.ILogger) *Session {
	if base == nil {
		base = env.FromOS()
	}
	if logger == nil {
		logger = arbor.NewNoOpLogger()
	}
	id := uuid.New().String()
	return &Session{
		ID:      id,
		opts:    opts,
		env:     base.Clone(),
		log:     logger.WithCorrelationId(id),
		history: []State{Uninitialized},
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// History returns every state the session has been in, in order.
func (s *Session) History() []State { return append([]State(nil), s.history...) }

// Err returns the terminal error of a failed session.
func (s *Session) Err() error { return s.err }

// Environ returns the session environment child processes receive.
func (s *Session) Environ() []string { return s.env.Environ() }

func (s *Session) advance(to State) error {
	if s.state == Failed || s.state == Built || to != s.state+1 {
		return fmt.Errorf("%w: %s to %s", ErrTransition, s.state, to)
	}
	s.log.Debug().Str("from", s.state.String()).Str("to", to.String()).Msg("Session state changed")
	s.state = to
	s.history = append(s.history, to)
	return nil
}

func (s *Session) fail(stage string, err error) error {
	if s.state == Failed {
		return s.err
	}
	s.err = &StageError{Stage: stage, Err: err}
	s.state = Failed
	s.history = append(s.history, Failed)
	s.log.Error().Err(err).Str("stage", stage).Msg("Session failed")
	return s.err
}

// Resolve fixes the variant, checks PATH ordering and points the session
// environment at the variant's Tcl installation.
func (s *Session) Resolve(ctx context.Context, v variant.Variant) error {
	if s.state != Uninitialized {
		return fmt.Errorf("%w: resolve in state %s", ErrTransition, s.state)
	}
	r := &variant.Resolver{Toolchain: s.opts.Toolchain, Conventions: s.opts.Conventions, TclDir: s.opts.TclDir}
	res, err := r.Resolve(v)
	if err != nil {
		return s.fail(StageResolve, err)
	}
	if err := res.Apply(s.env); err != nil {
		return s.fail(StageResolve, err)
	}
	if s.opts.VCVarsAll != "" && s.opts.Toolchain.IsMSVC() {
		if err := variant.ImportDevEnv(ctx, s.env, s.opts.VCVarsAll, res.Selector); err != nil {
			return s.fail(StageResolve, err)
		}
		// vcvarsall rewrites PATH; put Tcl back in front.
		if err := res.Apply(s.env); err != nil {
			return s.fail(StageResolve, err)
		}
	}
	s.Resolution = res
	s.Layout, err = s.layout(res)
	if err != nil {
		return s.fail(StageResolve, err)
	}
	s.log.Info().
		Str("variant", v.String()).
		Str("selector", res.Selector).
		Str("tcl_dir", res.InstallDir).
		Msg("Variant resolved")
	return nil
}

// layout picks the Tcl file names to expect: the configured version, else
// the installed one, else the minimum supported series.
func (s *Session) layout(res variant.Resolution) (tcl.Layout, error) {
	version := s.opts.Source.Version
	if version == "" || version == install.Latest {
		version = tcl.MinVersion
		if m, err := install.ReadMarker(res.InstallDir); err == nil && m != nil && m.Version != "" {
			version = m.Version
		}
	}
	return tcl.LayoutFor(s.opts.Toolchain, version)
}

func (s *Session) prober() *probe.Prober {
	return &probe.Prober{
		Env:           s.env,
		Toolchain:     s.opts.Toolchain,
		TclDir:        s.Resolution.InstallDir,
		Layout:        s.Layout,
		MinTclVersion: s.opts.MinTclVersion,
		Timeout:       s.opts.ProbeTimeout,
	}
}

// VerifyToolchain probes the environment and moves to ToolchainVerified.
func (s *Session) VerifyToolchain(ctx context.Context) error {
	if s.state != Uninitialized || s.Resolution.InstallDir == "" {
		return fmt.Errorf("%w: verify toolchain before resolve", ErrTransition)
	}
	report, err := s.prober().Probe(ctx)
	s.Report = report
	if err != nil {
		return s.fail(StageProbe, err)
	}
	for _, t := range report.Tools() {
		s.log.Debug().Str("tool", t.Name).Bool("found", t.Found).Str("version", t.Version).Str("path", t.Path).Msg("Probed")
	}
	if arch := report.Compiler.Arch; arch != "" && arch != archFor(s.Resolution.Width) {
		s.log.Warn().Str("compiler_arch", arch).Str("variant", s.Resolution.Variant.String()).Msg("Compiler targets a different width than requested")
	}
	return s.advance(ToolchainVerified)
}

func archFor(w variant.Width) string {
	if w == variant.W32 {
		return "x86"
	}
	return "x64"
}

func (s *Session) tclReady() bool {
	if s.Resolution.Link == variant.Static {
		return s.Report.StaticReady()
	}
	return s.Report.TclReady()
}

// SatisfyDependencies installs Tcl if needed and moves to
// DependenciesSatisfied.
func (s *Session) SatisfyDependencies(ctx context.Context, in *install.Installer) error {
	if s.state != ToolchainVerified {
		return fmt.Errorf("%w: satisfy dependencies in state %s", ErrTransition, s.state)
	}
	if s.tclReady() && !s.opts.ForceInstall {
		s.log.Info().Str("tcl", s.Report.Interpreter.Path).Str("version", s.Report.Interpreter.Version).Msg("Tcl dependency satisfied")
		return s.advance(DependenciesSatisfied)
	}
	if !s.opts.AutoInstall && !s.opts.ForceInstall {
		return s.fail(StageInstall, fmt.Errorf("%w under %s", install.ErrDependencyMissing, s.Resolution.InstallDir))
	}
	if in == nil {
		in = &install.Installer{}
	}
	in.Toolchain = s.opts.Toolchain
	in.Source = s.opts.Source
	in.Env = s.env
	in.Logger = s.log
	if in.Stdout == nil {
		in.Stdout = s.Stdout
	}
	if in.Stderr == nil {
		in.Stderr = s.Stderr
	}
	result, err := in.Install(ctx, s.Resolution)
	if err != nil {
		return s.fail(StageInstall, err)
	}
	s.Installed = result
	s.Layout = result.Layout

	// Confirm the install is what the build will see.
	report, err := s.prober().Probe(ctx)
	s.Report = report
	if err != nil {
		return s.fail(StageProbe, err)
	}
	if !s.tclReady() {
		return s.fail(StageInstall, &install.DependencyBuildFailure{
			Stage:    "verify",
			Dir:      s.Resolution.InstallDir,
			ExitCode: -1,
			Err:      fmt.Errorf("%w: %s", install.ErrDependencyMissing, describeMissing(report, s.Resolution.Link)),
		})
	}
	return s.advance(DependenciesSatisfied)
}

func describeMissing(r *probe.Report, link variant.LinkMode) string {
	tools := []probe.Tool{r.Interpreter, r.Library}
	if link == variant.Static {
		tools = append(tools, r.StaticLibrary)
	}
	for _, t := range tools {
		if !t.Found {
			return t.Name + " not found"
		}
		if t.Note != "" {
			return t.Name + ": " + t.Note
		}
	}
	return "interpreter version unsupported"
}

// NewInvoker returns an invoker bound to the session environment.
func (s *Session) NewInvoker() *invoke.Invoker {
	return &invoke.Invoker{
		Toolchain: s.opts.Toolchain,
		Layout:    s.Layout,
		SourceDir: s.opts.SourceDir,
		Env:       s.env,
		Logger:    s.log,
		Stdout:    s.Stdout,
		Stderr:    s.Stderr,
	}
}

// RunBuild invokes the build tool and moves to Built.
func (s *Session) RunBuild(ctx context.Context, req invoke.Request) (*invoke.Result, error) {
	if s.state != DependenciesSatisfied {
		return nil, fmt.Errorf("%w: build in state %s", ErrTransition, s.state)
	}
	if req.TclDir == "" {
		req.TclDir = s.Resolution.InstallDir
	}
	if s.opts.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BuildTimeout)
		defer cancel()
	}
	result, err := s.NewInvoker().Run(ctx, req)
	if err != nil {
		return nil, s.fail(StageBuild, err)
	}
	s.Result = result
	if err := s.advance(Built); err != nil {
		return nil, err
	}
	return result, nil
}

// Prepare resolves v and drives the session to DependenciesSatisfied.
// A request, if given, is validated first so configuration errors surface
// before any tool runs.
func (s *Session) Prepare(ctx context.Context, v variant.Variant, req *invoke.Request, in *install.Installer) error {
	if err := s.Resolve(ctx, v); err != nil {
		return err
	}
	if req != nil {
		if err := s.NewInvoker().Validate(*req); err != nil {
			return s.fail(StageBuild, err)
		}
	}
	if err := s.VerifyToolchain(ctx); err != nil {
		return err
	}
	return s.SatisfyDependencies(ctx, in)
}

// Build runs the whole session for req.
func (s *Session) Build(ctx context.Context, v variant.Variant, req invoke.Request, in *install.Installer) (*invoke.Result, error) {
	if req.Static {
		v.Link = variant.Static
	}
	req.Static = v.Link == variant.Static
	if err := s.Prepare(ctx, v, &req, in); err != nil {
		return nil, err
	}
	return s.RunBuild(ctx, req)
}
