package internal

import (
	"context"
	"errors"
	"strings"

	"github.com/goplus/sqlmk/internal/install"
	"github.com/goplus/sqlmk/internal/invoke"
	"github.com/goplus/sqlmk/internal/probe"
	"github.com/goplus/sqlmk/internal/variant"
)

// Exit codes other than the build tool's own.
const (
	exitFailure           = 1
	exitUsage             = 2
	exitMissingToolchain  = 10
	exitDependencyFailure = 11
	exitMissingLinkSpec   = 12
	exitAmbiguousPath     = 13
	exitDependencyMissing = 14
	exitTimeout           = 124
)

// outputLines is how much tool output a failure report repeats.
const outputLines = 20

// usageError wraps bad flags, arguments and configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		usage     *usageError
		toolchain *probe.MissingToolchainError
		depFail   *install.DependencyBuildFailure
		linkSpec  *invoke.MissingLinkSpecError
		pathOrder *variant.AmbiguousPathOrderError
		buildTool *invoke.BuildToolError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, context.DeadlineExceeded):
		return exitTimeout
	case errors.As(err, &toolchain):
		return exitMissingToolchain
	case errors.As(err, &pathOrder):
		return exitAmbiguousPath
	case errors.As(err, &linkSpec):
		return exitMissingLinkSpec
	case errors.As(err, &depFail):
		return exitDependencyFailure
	case errors.Is(err, install.ErrDependencyMissing):
		return exitDependencyMissing
	case errors.As(err, &buildTool):
		if buildTool.ExitCode > 0 {
			return buildTool.ExitCode
		}
	}
	return exitFailure
}

// toolOutput returns the captured output of a failed native tool, if any.
func toolOutput(err error) string {
	var (
		depFail   *install.DependencyBuildFailure
		buildTool *invoke.BuildToolError
	)
	switch {
	case errors.As(err, &buildTool):
		return buildTool.Output
	case errors.As(err, &depFail):
		return depFail.Output
	}
	return ""
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
