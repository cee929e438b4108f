package buildsys

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunStreamsAndCaptures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	bin := t.TempDir()
	writeScript(t, bin, "tool", `echo "out $1"; echo "err $2" >&2; exit 3`)

	var stdout, stderr bytes.Buffer
	r := &Runner{
		Env:    []string{"PATH=" + bin + ":/bin:/usr/bin"},
		Stdout: &stdout,
		Stderr: &stderr,
	}
	err := r.Run(context.Background(), t.TempDir(), "tool", "a", "b")

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Run error = %v, want *ExitError", err)
	}
	if ee.Code != 3 {
		t.Errorf("Code = %d, want 3", ee.Code)
	}
	if !strings.Contains(ee.Output, "out a") || !strings.Contains(ee.Output, "err b") {
		t.Errorf("Output = %q, want both streams", ee.Output)
	}
	if stdout.String() != "out a\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "err b\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
	if got := ee.CommandLine(); got != "tool a b" {
		t.Errorf("CommandLine() = %q", got)
	}
}

func TestRunUsesRunnerPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	bin := t.TempDir()
	writeScript(t, bin, "only-here", `exit 0`)

	r := &Runner{Env: []string{"PATH=" + bin}}
	if err := r.Run(context.Background(), "", "only-here"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r = &Runner{Env: []string{"PATH=" + t.TempDir()}}
	err := r.Run(context.Background(), "", "only-here")
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != -1 {
		t.Fatalf("Run with tool off PATH = %v, want *ExitError with Code -1", err)
	}
}

func TestRunContextDeadline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	bin := t.TempDir()
	writeScript(t, bin, "hang", `exec sleep 10`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := &Runner{Env: []string{"PATH=" + bin + ":/bin:/usr/bin"}}
	err := r.Run(ctx, "", "hang")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want DeadlineExceeded", err)
	}
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"B=1", "A=0"}, map[string]string{"B": "2", "C": "3"})
	want := "A=0 B=2 C=3"
	if strings.Join(got, " ") != want {
		t.Errorf("MergeEnv = %v, want %s", got, want)
	}
}

func TestTailKeepsLastBytes(t *testing.T) {
	tail := NewTail(4)
	tail.Write([]byte("ab"))
	if got := tail.String(); got != "ab" {
		t.Errorf("String() = %q, want ab", got)
	}
	tail.Write([]byte("cdefghij"))
	if got := tail.String(); got != "...\nghij" {
		t.Errorf("String() = %q, want truncated ghij", got)
	}
}
