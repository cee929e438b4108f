package invoke

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
)

// LinkSpec carries the compiler options and link libraries a statically
// linked Tcl program needs. The makefiles cannot infer them.
type LinkSpec struct {
	CCOpts string
	Libs   []string
}

// ParseLibs splits a space separated library list.
func ParseLibs(s string) []string {
	return strings.Fields(s)
}

// MissingLinkSpecError reports a static build requested without the
// options it needs. It is raised before any process starts.
type MissingLinkSpecError struct {
	Target  Target
	Missing []string
	// Suggested is a spec that would work with the default layout.
	Suggested LinkSpec
}

func (e *MissingLinkSpecError) Error() string {
	msg := fmt.Sprintf("static %s build needs %s", e.Target, strings.Join(e.Missing, " and "))
	if e.Suggested.CCOpts != "" || len(e.Suggested.Libs) > 0 {
		msg += fmt.Sprintf(" (for example --ccopts=%q --ltlibs=%q)", e.Suggested.CCOpts, strings.Join(e.Suggested.Libs, " "))
	}
	return msg
}

// Validate checks that s names compiler options, the static Tcl library
// and at least one system library.
func (s LinkSpec) Validate(t Target, tc toolchain.Toolchain, l tcl.Layout) error {
	var missing []string
	if strings.TrimSpace(s.CCOpts) == "" {
		missing = append(missing, "compiler options")
	}
	hasTcl, hasSystem := false, false
	for _, lib := range s.Libs {
		if filepath.Base(lib) == l.StaticLibrary {
			hasTcl = true
		} else {
			hasSystem = true
		}
	}
	if !hasTcl {
		missing = append(missing, "the static Tcl library "+l.StaticLibrary)
	}
	if !hasSystem {
		missing = append(missing, "system libraries")
	}
	if len(missing) > 0 {
		return &MissingLinkSpecError{Target: t, Missing: missing, Suggested: SuggestedLinkSpec(tc, l)}
	}
	return nil
}

// SuggestedLinkSpec returns the options that usually work for tc.
func SuggestedLinkSpec(tc toolchain.Toolchain, l tcl.Layout) LinkSpec {
	if tc.IsMSVC() {
		return LinkSpec{CCOpts: "-DSTATIC_BUILD", Libs: []string{l.StaticLibrary, "netapi32.lib", "user32.lib"}}
	}
	return LinkSpec{CCOpts: "-static", Libs: []string{l.StaticLibrary, "-lm", "-ldl", "-lz", "-lpthread"}}
}
