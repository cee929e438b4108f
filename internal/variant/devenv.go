package variant

import (
	"context"
	"fmt"
	"strings"

	"github.com/goplus/sqlmk/internal/env"
)

// ImportDevEnv runs the MSVC vcvarsall script for selector and merges the
// environment it produces into e.
func ImportDevEnv(ctx context.Context, e *env.Env, vcvarsall, selector string) error {
	out, err := devEnvOutput(ctx, e, vcvarsall, selector)
	if err != nil {
		return fmt.Errorf("vcvarsall %s: %w", selector, err)
	}
	vars := ParseSetOutput(out)
	if len(vars) == 0 {
		return fmt.Errorf("vcvarsall %s: produced no environment", selector)
	}
	for _, kv := range vars {
		k, v, _ := strings.Cut(kv, "=")
		e.Set(k, v)
	}
	return nil
}

// ParseSetOutput extracts "KEY=VALUE" lines from the output of cmd's
// "set" command. Hidden per-drive variables ("=C:=C:\") are skipped.
func ParseSetOutput(out string) []string {
	var vars []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		k, _, ok := strings.Cut(line, "=")
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		vars = append(vars, line)
	}
	return vars
}
