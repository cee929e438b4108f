// Package toolchain describes the native C toolchains sqlmk can drive.
package toolchain

import (
	"fmt"
	"runtime"

	"github.com/goplus/sqlmk/pkgs/buildsys/makefile"
)

// Toolchain names the compiler, build tool and makefile used for one
// family of native builds.
type Toolchain struct {
	Name      string
	Compiler  string
	BuildTool string
	Makefile  string
	Flavor    makefile.Flavor
}

var (
	// MSVC is the Visual C++ toolchain driven through nmake.
	MSVC = Toolchain{
		Name:      "msvc",
		Compiler:  "cl",
		BuildTool: "nmake",
		Makefile:  "Makefile.msc",
		Flavor:    makefile.NMake,
	}
	// GNU is a Unix cc toolchain driven through make.
	GNU = Toolchain{
		Name:      "gnu",
		Compiler:  "cc",
		BuildTool: "make",
		Makefile:  "Makefile",
		Flavor:    makefile.GNUMake,
	}
)

// Names lists the accepted toolchain names.
var Names = []string{MSVC.Name, GNU.Name}

// Lookup returns the toolchain called name. An empty name selects Default.
func Lookup(name string) (Toolchain, error) {
	switch name {
	case "":
		return Default(), nil
	case MSVC.Name:
		return MSVC, nil
	case GNU.Name:
		return GNU, nil
	}
	return Toolchain{}, fmt.Errorf("unknown toolchain %q (want one of %v)", name, Names)
}

// Default returns MSVC on Windows and GNU elsewhere.
func Default() Toolchain {
	if runtime.GOOS == "windows" {
		return MSVC
	}
	return GNU
}

// IsMSVC reports whether t follows MSVC naming conventions.
func (t Toolchain) IsMSVC() bool {
	return t.Flavor == makefile.NMake
}

// Exe returns the executable file name for base under t.
func (t Toolchain) Exe(base string) string {
	if t.IsMSVC() {
		return base + ".exe"
	}
	return base
}

// With returns t with the non-empty overrides applied.
func (t Toolchain) With(compiler, buildTool, makefileName string) Toolchain {
	if compiler != "" {
		t.Compiler = compiler
	}
	if buildTool != "" {
		t.BuildTool = buildTool
	}
	if makefileName != "" {
		t.Makefile = makefileName
	}
	return t
}

// Driver returns a makefile driver for t's build tool and makefile.
func (t Toolchain) Driver() *makefile.Makefile {
	return makefile.New(t.BuildTool, t.Flavor, t.Makefile)
}
