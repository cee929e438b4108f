//go:build windows

package variant

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/goplus/sqlmk/internal/env"
)

func devEnvOutput(ctx context.Context, e *env.Env, vcvarsall, selector string) (string, error) {
	cmdExe, err := e.LookPath("cmd.exe")
	if err != nil {
		return "", err
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdExe)
	// cmd.exe needs the whole line quoted its own way; Go's argv escaping
	// breaks on "Program Files (x86)".
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: fmt.Sprintf(`cmd.exe /s /c ""%s" %s >nul && set"`, vcvarsall, selector),
	}
	cmd.Env = e.Environ()
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := stderr.String(); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return out.String(), nil
}
