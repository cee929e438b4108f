package install

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/toolchain"
)

func TestCanonicalize(t *testing.T) {
	dir := t.TempDir()
	layout, err := tcl.LayoutFor(toolchain.MSVC, "8.6.13")
	if err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(dir, "lib", layout.Library)
	exe := filepath.Join(dir, "bin", layout.Interpreter)
	mustWrite(t, lib, "import library", 0o644)
	mustWrite(t, exe, "interpreter", 0o755)

	written, err := Canonicalize(dir, layout)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := []string{
		filepath.Join(dir, "lib", "tcl86.lib"),
		filepath.Join(dir, "bin", "tclsh.exe"),
	}
	if !cmp.Equal(want, written) {
		t.Error(cmp.Diff(want, written))
	}
	for _, p := range []string{lib, exe} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("original %s was removed: %v", filepath.Base(p), err)
		}
	}
	if got := readFile(t, want[0]); got != "import library" {
		t.Errorf("canonical library = %q", got)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(want[1])
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("canonical interpreter mode = %v, want 0755", info.Mode().Perm())
		}
	}

	again, err := Canonicalize(dir, layout)
	if err != nil {
		t.Fatalf("second Canonicalize: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Canonicalize wrote %v, want nothing", again)
	}

	// A stale canonical copy is replaced.
	mustWrite(t, lib, "rebuilt library", 0o644)
	again, err = Canonicalize(dir, layout)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(want[:1], again) {
		t.Error(cmp.Diff(want[:1], again))
	}
	if got := readFile(t, want[0]); got != "rebuilt library" {
		t.Errorf("canonical library = %q after rebuild", got)
	}
}

func TestCanonicalizeMissingOriginal(t *testing.T) {
	layout, err := tcl.LayoutFor(toolchain.GNU, "8.6.13")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Canonicalize(t.TempDir(), layout); !os.IsNotExist(err) {
		t.Fatalf("Canonicalize() error = %v, want not-exist", err)
	}
}

func mustWrite(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
