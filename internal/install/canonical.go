package install

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/sqlmk/internal/tcl"
)

// Canonicalize copies the versioned Tcl library and interpreter under dir
// to the unversioned names downstream makefiles expect. The originals are
// kept. Copies that already match byte for byte are skipped, so calling it
// again is a no-op. It returns the paths it wrote.
func Canonicalize(dir string, l tcl.Layout) ([]string, error) {
	pairs := [][2]string{
		{filepath.Join(dir, "lib", l.Library), filepath.Join(dir, "lib", l.CanonicalLibrary)},
		{filepath.Join(dir, "bin", l.Interpreter), filepath.Join(dir, "bin", l.CanonicalInterpreter)},
	}
	var written []string
	for _, p := range pairs {
		if p[0] == p[1] {
			continue
		}
		changed, err := copyFile(p[0], p[1])
		if err != nil {
			return written, err
		}
		if changed {
			written = append(written, p[1])
		}
	}
	return written, nil
}

// copyFile copies src to dst through a temporary file and rename, keeping
// src's permission bits. It reports false if dst already had src's content.
func copyFile(src, dst string) (bool, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if old, err := os.ReadFile(dst); err == nil && bytes.Equal(old, data) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return false, fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return true, nil
}
