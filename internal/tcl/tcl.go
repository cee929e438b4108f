// Package tcl knows how Tcl releases are versioned and how their build
// outputs are named for each toolchain.
package tcl

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goplus/sqlmk/internal/toolchain"
)

// MinVersion is the oldest Tcl the engine's build scripts accept.
const MinVersion = "8.6"

// Layout names the files a Tcl install produces. The versioned names are
// what the Tcl build emits; the canonical names are what downstream
// makefiles link against.
type Layout struct {
	Version              string
	Library              string
	CanonicalLibrary     string
	Interpreter          string
	CanonicalInterpreter string
	StaticLibrary        string
}

// LayoutFor returns the Layout for Tcl version (e.g. "8.6.13") built with tc.
func LayoutFor(tc toolchain.Toolchain, version string) (Layout, error) {
	major, minor, err := majorMinor(version)
	if err != nil {
		return Layout{}, err
	}
	l := Layout{Version: version}
	if tc.IsMSVC() {
		// 8.x threaded builds carry a "t" suffix; 9.x dropped it.
		suffix := ""
		if major < 9 {
			suffix = "t"
		}
		short := fmt.Sprintf("%d%d", major, minor)
		l.Library = "tcl" + short + suffix + ".lib"
		l.CanonicalLibrary = "tcl" + short + ".lib"
		l.Interpreter = "tclsh" + short + suffix + ".exe"
		l.CanonicalInterpreter = "tclsh.exe"
		l.StaticLibrary = "tcl" + short + "s.lib"
		return l, nil
	}
	dot := fmt.Sprintf("%d.%d", major, minor)
	l.Library = "libtcl" + dot + ".so"
	l.CanonicalLibrary = "libtcl.so"
	l.Interpreter = "tclsh" + dot
	l.CanonicalInterpreter = "tclsh"
	l.StaticLibrary = "libtcl" + dot + ".a"
	return l, nil
}

func majorMinor(version string) (int, int, error) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid Tcl version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Tcl version %q", version)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Tcl version %q", version)
	}
	return major, minor, nil
}

// Semver converts a Tcl patchlevel such as "8.6.13" or "8.6b1" to a
// semantic version string. It returns "" if v cannot be understood.
func Semver(v string) string {
	v = strings.TrimSpace(v)
	// Tcl spells pre-releases as 8.6a3 / 8.6b1.
	for _, tag := range []string{"a", "b"} {
		if i := strings.LastIndex(v, tag); i > 0 {
			if _, err := strconv.Atoi(v[i+1:]); err == nil {
				base := v[:i]
				if strings.Count(base, ".") == 1 {
					base += ".0"
				}
				v = base + "-" + tag + "." + v[i+1:]
				break
			}
		}
	}
	sv := "v" + v
	if !semver.IsValid(sv) {
		return ""
	}
	return sv
}

// AtLeast reports whether Tcl version v is at least min.
func AtLeast(v, min string) bool {
	sv, smin := Semver(v), Semver(min)
	if sv == "" || smin == "" {
		return false
	}
	return semver.Compare(sv, smin) >= 0
}

// TagVersion maps a release tag such as "core-8-6-13" to "8.6.13".
func TagVersion(tag string) (string, bool) {
	rest, ok := strings.CutPrefix(tag, "core-")
	if !ok {
		return "", false
	}
	v := strings.ReplaceAll(rest, "-", ".")
	if sv := Semver(v); sv == "" || semver.Prerelease(sv) != "" {
		return "", false
	}
	return v, true
}

// VersionTag is the inverse of TagVersion.
func VersionTag(version string) string {
	return "core-" + strings.ReplaceAll(version, ".", "-")
}

// Latest returns the newest final release among tags, restricted to the
// major.minor series of prefix when prefix is non-empty.
func Latest(tags []string, prefix string) (string, bool) {
	best := ""
	for _, tag := range tags {
		v, ok := TagVersion(tag)
		if !ok {
			continue
		}
		if prefix != "" && v != prefix && !strings.HasPrefix(v, prefix+".") {
			continue
		}
		if best == "" || semver.Compare(Semver(v), Semver(best)) > 0 {
			best = v
		}
	}
	return best, best != ""
}
