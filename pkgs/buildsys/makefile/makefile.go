// Package makefile drives makefile-only builds: "nmake /f Makefile.msc"
// on MSVC and "make -f Makefile" elsewhere.
package makefile

import (
	"context"
	"io"
	"sort"

	"github.com/goplus/sqlmk/pkgs/buildsys"
)

// Flavor selects the command-line dialect of the make tool.
type Flavor int

const (
	NMake Flavor = iota
	GNUMake
)

func (f Flavor) String() string {
	if f == NMake {
		return "nmake"
	}
	return "make"
}

// Makefile wraps a make tool invocation against one makefile, with
// chainable macro definitions.
type Makefile struct {
	tool       string
	flavor     Flavor
	file       string
	sourceDir  string
	installDir string
	macros     map[string]string
	env        map[string]string
	baseEnv    []string
	stdout     io.Writer
	stderr     io.Writer
}

var _ buildsys.BuildSystem = (*Makefile)(nil)

// New returns a driver running tool against file. An empty tool defaults
// to the flavor's usual binary name.
func New(tool string, flavor Flavor, file string) *Makefile {
	if tool == "" {
		tool = flavor.String()
	}
	return &Makefile{
		tool:   tool,
		flavor: flavor,
		file:   file,
		macros: map[string]string{},
		env:    map[string]string{},
	}
}

func (m *Makefile) Source(dir string) {
	m.sourceDir = dir
}

// InstallDir sets the install location passed to the "install" goal:
// INSTALLDIR for nmake makefiles, prefix for GNU ones.
func (m *Makefile) InstallDir(dir string) {
	m.installDir = dir
}

func (m *Makefile) Env(key, value string) {
	m.env[key] = value
}

// BaseEnv replaces the environment that Env overrides are layered on.
// Without it the process environment is used.
func (m *Makefile) BaseEnv(environ []string) *Makefile {
	m.baseEnv = environ
	return m
}

// Output sets where tool output is streamed.
func (m *Makefile) Output(stdout, stderr io.Writer) *Makefile {
	m.stdout, m.stderr = stdout, stderr
	return m
}

// Define sets a command-line macro KEY=VALUE.
func (m *Makefile) Define(key, value string) *Makefile {
	m.macros[key] = value
	return m
}

// Undefine removes a macro set with Define.
func (m *Makefile) Undefine(key string) *Makefile {
	delete(m.macros, key)
	return m
}

// Tool returns the make binary this driver runs.
func (m *Makefile) Tool() string {
	return m.tool
}

// Args returns the argument list for building goals, without the tool
// itself. Macros follow the goals and are sorted by name.
func (m *Makefile) Args(goals ...string) []string {
	var args []string
	switch m.flavor {
	case NMake:
		args = append(args, "/nologo", "/f", m.file)
	default:
		args = append(args, "-f", m.file)
	}
	args = append(args, goals...)
	return append(args, m.macroArgs()...)
}

// Configure is a no-op: makefile-only builds have no configure step.
func (m *Makefile) Configure(ctx context.Context, args ...string) error {
	return nil
}

// Build runs the make tool for goals. With no goals the makefile's
// default goal is built.
func (m *Makefile) Build(ctx context.Context, goals ...string) error {
	return m.run(ctx, m.Args(goals...))
}

// Install runs the "install" goal (or the provided goals) with the
// install directory macro set.
func (m *Makefile) Install(ctx context.Context, goals ...string) error {
	if len(goals) == 0 {
		goals = []string{"install"}
	}
	if m.installDir != "" {
		saved, had := m.macros[m.installMacro()]
		m.macros[m.installMacro()] = m.installDir
		defer func() {
			if had {
				m.macros[m.installMacro()] = saved
			} else {
				delete(m.macros, m.installMacro())
			}
		}()
	}
	return m.run(ctx, m.Args(goals...))
}

// OutputDir returns the install dir if set, otherwise the source dir.
func (m *Makefile) OutputDir() string {
	if m.installDir != "" {
		return m.installDir
	}
	return m.sourceDir
}

func (m *Makefile) installMacro() string {
	if m.flavor == NMake {
		return "INSTALLDIR"
	}
	return "prefix"
}

func (m *Makefile) macroArgs() []string {
	if len(m.macros) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.macros))
	for k := range m.macros {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+m.macros[k])
	}
	return args
}

func (m *Makefile) run(ctx context.Context, args []string) error {
	r := &buildsys.Runner{
		Env:    buildsys.MergeEnv(m.baseEnv, m.env),
		Stdout: m.stdout,
		Stderr: m.stderr,
	}
	return r.Run(ctx, m.sourceDir, m.tool, args...)
}
