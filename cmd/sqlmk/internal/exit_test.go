package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goplus/sqlmk/internal/install"
	"github.com/goplus/sqlmk/internal/invoke"
	"github.com/goplus/sqlmk/internal/probe"
	"github.com/goplus/sqlmk/internal/session"
	"github.com/goplus/sqlmk/internal/variant"
)

func staged(stage string, err error) error {
	return &session.StageError{Stage: stage, Err: err}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"usage", &usageError{errors.New("bad flag")}, 2},
		{"missing toolchain", staged(session.StageProbe, &probe.MissingToolchainError{Toolchain: "msvc", Missing: []string{"cl"}}), 10},
		{"dependency build", staged(session.StageInstall, &install.DependencyBuildFailure{Stage: "release", ExitCode: 2}), 11},
		{"dependency verify", staged(session.StageInstall, &install.DependencyBuildFailure{Stage: "verify", ExitCode: -1, Err: install.ErrDependencyMissing}), 11},
		{"link spec", staged(session.StageBuild, &invoke.MissingLinkSpecError{Missing: []string{"compiler options"}}), 12},
		{"path order", staged(session.StageResolve, &variant.AmbiguousPathOrderError{Width: variant.W32}), 13},
		{"dependency missing", staged(session.StageInstall, fmt.Errorf("%w under C:\\Tcl", install.ErrDependencyMissing)), 14},
		{"build tool", staged(session.StageBuild, &invoke.BuildToolError{Args: []string{"nmake"}, ExitCode: 2}), 2},
		{"build tool not started", staged(session.StageBuild, &invoke.BuildToolError{Args: []string{"nmake"}, ExitCode: -1, Err: errors.New("not found")}), 1},
		{"timeout", staged(session.StageBuild, context.DeadlineExceeded), 124},
		{"interrupted", staged(session.StageBuild, context.Canceled), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a\nb\nc\n", 2, "b\nc"},
		{"a\nb", 5, "a\nb"},
		{"one\r\n", 1, "one"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := lastLines(tt.in, tt.n); got != tt.want {
			t.Errorf("lastLines(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestReportIncludesToolOutput(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	lines = append(lines, "fatal error C1083: Cannot open include file: 'tcl.h'")
	err := staged(session.StageBuild, &invoke.BuildToolError{
		Args:     []string{"nmake", "/f", "Makefile.msc"},
		ExitCode: 2,
		Output:   strings.Join(lines, "\n"),
	})

	var buf bytes.Buffer
	report(&buf, err)
	out := buf.String()
	if !strings.Contains(out, "build: nmake /f Makefile.msc exited with code 2") {
		t.Errorf("report does not name the stage and command:\n%s", out)
	}
	if !strings.Contains(out, "C1083") {
		t.Errorf("report does not include the tool output:\n%s", out)
	}
	if strings.Contains(out, "line 5\n") {
		t.Errorf("report repeats more than %d lines:\n%s", outputLines, out)
	}
}

func TestReportUsage(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, &usageError{errors.New(`invalid width "48": want 32 or 64`)})
	if !strings.Contains(buf.String(), "--help") {
		t.Errorf("usage report = %q, want a pointer to --help", buf.String())
	}
}
