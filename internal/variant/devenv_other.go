//go:build !windows

package variant

import (
	"context"
	"errors"

	"github.com/goplus/sqlmk/internal/env"
)

func devEnvOutput(ctx context.Context, e *env.Env, vcvarsall, selector string) (string, error) {
	return "", errors.New("vcvarsall is only available on Windows")
}
