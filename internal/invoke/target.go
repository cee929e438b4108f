package invoke

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goplus/sqlmk/internal/toolchain"
)

// Kind enumerates the makefile targets sqlmk knows how to build.
type Kind int

const (
	Default       Kind = iota // command-line shell
	Amalgamation              // single-file sqlite3.c and sqlite3.h
	DevTest                   // developer test suite
	ReleaseTest               // release test suite
	SharedLibrary             // sqlite3.dll / libsqlite3.so
	Utility                   // one named utility program
)

var kindNames = [...]string{
	Default:       "default",
	Amalgamation:  "amalgamation",
	DevTest:       "devtest",
	ReleaseTest:   "releasetest",
	SharedLibrary: "dll",
	Utility:       "util",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Target is a build target. Utility names the program for Kind Utility.
type Target struct {
	Kind    Kind
	Utility string
}

var utilityRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// TargetNames lists the accepted spellings for usage messages.
var TargetNames = []string{"default", "amalgamation", "devtest", "releasetest", "dll", "util:<name>"}

// ParseTarget parses one of TargetNames.
func ParseTarget(s string) (Target, error) {
	if name, ok := strings.CutPrefix(s, "util:"); ok {
		if !utilityRE.MatchString(name) {
			return Target{}, fmt.Errorf("invalid utility name %q", name)
		}
		return Target{Kind: Utility, Utility: name}, nil
	}
	for k, name := range kindNames {
		if Kind(k) != Utility && s == name {
			return Target{Kind: Kind(k)}, nil
		}
	}
	return Target{}, fmt.Errorf("unknown target %q (want one of %s)", s, strings.Join(TargetNames, ", "))
}

func (t Target) String() string {
	if t.Kind == Utility {
		return "util:" + t.Utility
	}
	return t.Kind.String()
}

// LinksTcl reports whether the target's programs embed the Tcl library,
// which is what makes static linking meaningful for it.
func (t Target) LinksTcl() bool {
	switch t.Kind {
	case Utility, DevTest, ReleaseTest:
		return true
	}
	return false
}

// Goals returns the makefile goals for t. The default target builds the
// makefile's default goal.
func (t Target) Goals(tc toolchain.Toolchain) []string {
	switch t.Kind {
	case Amalgamation:
		return []string{"sqlite3.c"}
	case DevTest:
		return []string{"devtest"}
	case ReleaseTest:
		return []string{"releasetest"}
	case SharedLibrary:
		if tc.IsMSVC() {
			return []string{"sqlite3.dll"}
		}
		return []string{"so"}
	case Utility:
		return []string{tc.Exe(t.Utility)}
	}
	return nil
}

// Artifacts returns the files a successful build of t leaves in the build
// directory. Test targets produce none.
func (t Target) Artifacts(tc toolchain.Toolchain) []string {
	switch t.Kind {
	case Default:
		return []string{tc.Exe("sqlite3")}
	case Amalgamation:
		return []string{"sqlite3.c", "sqlite3.h"}
	case SharedLibrary:
		if tc.IsMSVC() {
			return []string{"sqlite3.dll", "sqlite3.def"}
		}
		return []string{"libsqlite3.so"}
	case Utility:
		return []string{tc.Exe(t.Utility)}
	}
	return nil
}
