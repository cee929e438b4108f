// Package variant resolves a build variant (address width, link mode) to
// the compiler environment and Tcl installation it must use, and is the
// only code that writes the session environment.
package variant

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/toolchain"
)

// Width is the target address width in bits.
type Width int

const (
	W32 Width = 32
	W64 Width = 64
)

// ParseWidth accepts "32" or "64".
func ParseWidth(s string) (Width, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid width %q: want 32 or 64", s)
	}
	return WidthOf(n)
}

// WidthOf validates n as a Width.
func WidthOf(n int) (Width, error) {
	switch Width(n) {
	case W32, W64:
		return Width(n), nil
	}
	return 0, fmt.Errorf("invalid width %d: want 32 or 64", n)
}

// Other returns the opposite width.
func (w Width) Other() Width {
	if w == W32 {
		return W64
	}
	return W32
}

func (w Width) String() string {
	return strconv.Itoa(int(w)) + "-bit"
}

// LinkMode says how the Tcl runtime is linked into tools that embed it.
type LinkMode int

const (
	Dynamic LinkMode = iota
	Static
)

func (m LinkMode) String() string {
	if m == Static {
		return "static"
	}
	return "dynamic"
}

// Variant is the build configuration axis pair.
type Variant struct {
	Width Width
	Link  LinkMode
}

func (v Variant) String() string {
	return fmt.Sprintf("%s/%s", v.Width, v.Link)
}

// Conventions holds the Tcl installation root for each width.
type Conventions struct {
	Root32 string
	Root64 string
}

// DefaultConventions returns C:\Tcl and C:\Tcl32 on Windows, and
// <WorkDir>/tcl64 and <WorkDir>/tcl32 elsewhere.
func DefaultConventions() (Conventions, error) {
	if runtime.GOOS == "windows" {
		return Conventions{Root32: `C:\Tcl32`, Root64: `C:\Tcl`}, nil
	}
	workDir, err := env.WorkDir()
	if err != nil {
		return Conventions{}, err
	}
	return Conventions{
		Root32: filepath.Join(workDir, "tcl32"),
		Root64: filepath.Join(workDir, "tcl64"),
	}, nil
}

// Root returns the installation root for w.
func (c Conventions) Root(w Width) string {
	if w == W32 {
		return c.Root32
	}
	return c.Root64
}

// Resolution is everything later stages need to know about a variant.
type Resolution struct {
	Variant
	// Selector picks the compiler environment: the vcvarsall argument for
	// MSVC ("x64", "x86"), the -m flag for GNU compilers.
	Selector string
	// Prompt names the developer prompt matching Selector, if any.
	Prompt string
	// InstallDir is the Tcl installation root for this width.
	InstallDir string
	// OtherDir is the installation root of the opposite width.
	OtherDir string
}

// BinDir is where the Tcl interpreter for this width lives.
func (r Resolution) BinDir() string { return filepath.Join(r.InstallDir, "bin") }

// LibDir is where the Tcl libraries for this width live.
func (r Resolution) LibDir() string { return filepath.Join(r.InstallDir, "lib") }

func (r Resolution) otherBinDir() string { return filepath.Join(r.OtherDir, "bin") }

// Resolver maps variants to resolutions.
type Resolver struct {
	Toolchain   toolchain.Toolchain
	Conventions Conventions
	// TclDir, when set, overrides the root for whichever width is requested.
	TclDir string
}

// Resolve returns the selector and directory convention for v.
func (r *Resolver) Resolve(v Variant) (Resolution, error) {
	if _, err := WidthOf(int(v.Width)); err != nil {
		return Resolution{}, err
	}
	res := Resolution{
		Variant:    v,
		InstallDir: r.Conventions.Root(v.Width),
		OtherDir:   r.Conventions.Root(v.Width.Other()),
	}
	if r.TclDir != "" {
		res.InstallDir = r.TclDir
	}
	if res.InstallDir == "" {
		return Resolution{}, fmt.Errorf("no Tcl installation directory configured for %s builds", v.Width)
	}
	if err := res.checkRoots(); err != nil {
		return Resolution{}, err
	}
	if r.Toolchain.IsMSVC() {
		res.Selector = "x64"
		if v.Width == W32 {
			res.Selector = "x86"
		}
		res.Prompt = res.Selector + " Native Tools Command Prompt"
	} else {
		res.Selector = "-m" + strconv.Itoa(int(v.Width))
	}
	return res, nil
}

// AmbiguousPathOrderError reports that the other width's Tcl comes first
// on PATH, or that the install root is the other width's, so tools would
// silently pick up the wrong-width library.
type AmbiguousPathOrderError struct {
	Width      Width
	Want       string
	WantIndex  int
	Other      string
	OtherIndex int
	// SharedRoot is set when the requested root is the other width's root.
	SharedRoot bool
}

func (e *AmbiguousPathOrderError) Error() string {
	if e.SharedRoot {
		return fmt.Sprintf("ambiguous Tcl root for %s build: %s is the %s installation (check TCLDIR or --dir)",
			e.Width, e.Want, e.Width.Other())
	}
	return fmt.Sprintf("ambiguous PATH order for %s build: %s (entry %d) precedes %s (entry %d)",
		e.Width, e.Other, e.OtherIndex, e.Want, e.WantIndex)
}

// checkRoots rejects an install root that is the other width's root.
func (r Resolution) checkRoots() error {
	if r.OtherDir != "" && env.SamePath(r.OtherDir, r.InstallDir) {
		return &AmbiguousPathOrderError{
			Width:      r.Width,
			Want:       r.InstallDir,
			WantIndex:  -1,
			Other:      r.OtherDir,
			OtherIndex: -1,
			SharedRoot: true,
		}
	}
	return nil
}

// CheckPathOrder fails if the install root is the other width's, or if
// both widths' bin directories are on PATH and the other width's comes
// first.
func (r Resolution) CheckPathOrder(e *env.Env) error {
	if err := r.checkRoots(); err != nil {
		return err
	}
	if r.OtherDir == "" {
		return nil
	}
	want := e.PathIndex(r.BinDir())
	other := e.PathIndex(r.otherBinDir())
	if want >= 0 && other >= 0 && other < want {
		return &AmbiguousPathOrderError{
			Width:      r.Width,
			Want:       r.BinDir(),
			WantIndex:  want,
			Other:      r.otherBinDir(),
			OtherIndex: other,
		}
	}
	return nil
}

// Apply validates PATH order, then points the session at this width's Tcl:
// its bin directory is prepended to PATH if absent and TCLDIR is set.
func (r Resolution) Apply(e *env.Env) error {
	if err := r.CheckPathOrder(e); err != nil {
		return err
	}
	e.PrependPath(r.BinDir())
	e.Set(env.TclDirVar, r.InstallDir)
	return nil
}
