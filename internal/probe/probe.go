// Package probe detects the native toolchain and the Tcl development
// files a build needs. Probing never writes to the filesystem.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
)

// Kind classifies a probed prerequisite.
type Kind int

const (
	Compiler Kind = iota
	BuildTool
	Interpreter
	ImportLibrary
	StaticLibrary
)

func (k Kind) String() string {
	switch k {
	case Compiler:
		return "compiler"
	case BuildTool:
		return "build tool"
	case Interpreter:
		return "tcl interpreter"
	case ImportLibrary:
		return "tcl library"
	case StaticLibrary:
		return "tcl static library"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tool is the probe result for one prerequisite.
type Tool struct {
	Kind    Kind
	Name    string // file name searched for
	Path    string // where it was found
	Version string // reported version, if determinable
	Arch    string // target architecture for compilers ("x64", "x86")
	Found   bool
	Note    string
}

// Report summarizes a probe.
type Report struct {
	Toolchain     string
	TclDir        string
	Compiler      Tool
	BuildTool     Tool
	Interpreter   Tool
	Library       Tool
	StaticLibrary Tool
	// MinTclVersion is the version the interpreter was checked against.
	MinTclVersion string
}

// Tools returns the probed prerequisites in report order.
func (r *Report) Tools() []Tool {
	return []Tool{r.Compiler, r.BuildTool, r.Interpreter, r.Library, r.StaticLibrary}
}

// ToolchainReady reports whether both compiler and build tool were found.
func (r *Report) ToolchainReady() bool {
	return r.Compiler.Found && r.BuildTool.Found
}

// TclReady reports whether a supported Tcl interpreter and its import
// library are installed under their canonical names.
func (r *Report) TclReady() bool {
	if !r.Interpreter.Found || !r.Library.Found {
		return false
	}
	return tcl.AtLeast(r.Interpreter.Version, r.MinTclVersion)
}

// StaticReady reports whether the static Tcl library is present too.
func (r *Report) StaticReady() bool {
	return r.TclReady() && r.StaticLibrary.Found
}

// MissingToolchainError reports that the compiler or build tool is absent.
// Nothing can be built until a human installs them.
type MissingToolchainError struct {
	Toolchain string
	Missing   []string
}

func (e *MissingToolchainError) Error() string {
	return fmt.Sprintf("missing %s toolchain: %s not found on PATH", e.Toolchain, strings.Join(e.Missing, ", "))
}

// Prober inspects a session environment.
type Prober struct {
	Env       *env.Env
	Toolchain toolchain.Toolchain
	// TclDir is the Tcl installation root to inspect.
	TclDir string
	// Layout names the Tcl files expected under TclDir.
	Layout tcl.Layout
	// MinTclVersion defaults to tcl.MinVersion.
	MinTclVersion string
	// Timeout bounds each version query; defaults to 10s.
	Timeout time.Duration
}

// Probe checks every prerequisite. It always returns a report; the error
// is a *MissingToolchainError when the compiler or build tool is absent.
// A missing Tcl is reported but not treated as an error.
func (p *Prober) Probe(ctx context.Context) (*Report, error) {
	r := &Report{
		Toolchain:     p.Toolchain.Name,
		TclDir:        p.TclDir,
		MinTclVersion: p.MinTclVersion,
	}
	if r.MinTclVersion == "" {
		r.MinTclVersion = tcl.MinVersion
	}

	r.Compiler = p.probeCompiler(ctx)
	r.BuildTool = p.probeBuildTool(ctx)
	r.Interpreter = p.probeInterpreter(ctx)
	r.Library = p.probeFile(ImportLibrary, "lib", p.Layout.CanonicalLibrary, p.Layout.Library)
	r.StaticLibrary = p.probeFile(StaticLibrary, "lib", p.Layout.StaticLibrary, "")

	if r.Interpreter.Found && !tcl.AtLeast(r.Interpreter.Version, r.MinTclVersion) {
		r.Interpreter.Note = fmt.Sprintf("version %q is older than required %s", r.Interpreter.Version, r.MinTclVersion)
	}

	if !r.ToolchainReady() {
		var missing []string
		for _, t := range []Tool{r.Compiler, r.BuildTool} {
			if !t.Found {
				missing = append(missing, t.Name)
			}
		}
		return r, &MissingToolchainError{Toolchain: p.Toolchain.Name, Missing: missing}
	}
	return r, nil
}

var (
	msvcVersionRE = regexp.MustCompile(`Version\s+([0-9][0-9.]*)(?:\s+for\s+(\S+))?`)
	dottedRE      = regexp.MustCompile(`[0-9]+\.[0-9]+(?:\.[0-9]+)*`)
)

func (p *Prober) probeCompiler(ctx context.Context) Tool {
	t := Tool{Kind: Compiler, Name: p.Toolchain.Compiler}
	path, err := p.Env.LookPath(t.Name)
	if err != nil {
		return t
	}
	t.Path, t.Found = path, true

	if p.Toolchain.IsMSVC() {
		// cl prints its banner on stderr when run without arguments.
		out, _ := p.output(ctx, path, "")
		if m := msvcVersionRE.FindStringSubmatch(out); m != nil {
			t.Version = m[1]
			t.Arch = normalizeArch(m[2])
		}
		return t
	}
	out, _ := p.output(ctx, path, "", "--version")
	t.Version = firstDotted(out)
	if machine, err := p.output(ctx, path, "", "-dumpmachine"); err == nil {
		t.Arch = normalizeArch(strings.SplitN(strings.TrimSpace(machine), "-", 2)[0])
	}
	return t
}

func (p *Prober) probeBuildTool(ctx context.Context) Tool {
	t := Tool{Kind: BuildTool, Name: p.Toolchain.BuildTool}
	path, err := p.Env.LookPath(t.Name)
	if err != nil {
		return t
	}
	t.Path, t.Found = path, true

	if p.Toolchain.IsMSVC() {
		out, _ := p.output(ctx, path, "", "/?")
		if m := msvcVersionRE.FindStringSubmatch(out); m != nil {
			t.Version = m[1]
		}
		return t
	}
	out, _ := p.output(ctx, path, "", "--version")
	t.Version = firstDotted(out)
	return t
}

func (p *Prober) probeInterpreter(ctx context.Context) Tool {
	t := Tool{Kind: Interpreter, Name: p.Layout.CanonicalInterpreter}
	if t.Name == "" {
		return t
	}
	var path string
	if p.TclDir != "" {
		// Only this width's install counts; a tclsh elsewhere on PATH may
		// belong to the other width.
		cand := filepath.Join(p.TclDir, "bin", t.Name)
		switch {
		case isFile(cand):
			path = cand
		case p.Layout.Interpreter != "" && isFile(filepath.Join(p.TclDir, "bin", p.Layout.Interpreter)):
			t.Note = "only " + p.Layout.Interpreter + " is installed; canonical copy missing"
			return t
		default:
			if found, err := p.Env.LookPath(t.Name); err == nil {
				t.Note = "ignoring " + found + " outside " + p.TclDir
			}
			return t
		}
	} else {
		found, err := p.Env.LookPath(t.Name)
		if err != nil {
			return t
		}
		path = found
	}
	t.Path, t.Found = path, true

	out, err := p.output(ctx, path, "puts [info patchlevel]\nexit\n")
	if err == nil {
		t.Version = strings.TrimSpace(out)
	}
	return t
}

func (p *Prober) probeFile(kind Kind, sub, canonical, versioned string) Tool {
	t := Tool{Kind: kind, Name: canonical}
	if canonical == "" || p.TclDir == "" {
		return t
	}
	path := filepath.Join(p.TclDir, sub, canonical)
	if isFile(path) {
		t.Path, t.Found = path, true
		t.Version = p.Layout.Version
		return t
	}
	if versioned != "" && isFile(filepath.Join(p.TclDir, sub, versioned)) {
		t.Note = "only " + versioned + " is installed; canonical copy missing"
	}
	return t
}

// output runs path with args and returns combined stdout and stderr.
func (p *Prober) output(ctx context.Context, path, stdin string, args ...string) (string, error) {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = p.Env.Environ()
	cmd.Stdout = &out
	cmd.Stderr = &out
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	err := cmd.Run()
	return out.String(), err
}

func firstDotted(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	matches := dottedRE.FindAllString(line, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

func normalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "x64", "amd64", "x86_64":
		return "x64"
	case "x86", "i386", "i486", "i586", "i686":
		return "x86"
	}
	return strings.ToLower(arch)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
