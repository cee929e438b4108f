package install

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

type archiveFile struct {
	name string
	body string
	mode int64
}

func tarBytes(t *testing.T, files []archiveFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: f.mode, Size: int64(len(f.body)), Typeflag: tar.TypeReg}
		if strings.HasSuffix(f.name, "/") {
			hdr = &tar.Header{Name: f.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeTarGz(t *testing.T, path string, files []archiveFile) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(tarBytes(t, files)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTarXz(t *testing.T, path string, files []archiveFile) {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := xw.Write(tarBytes(t, files)); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, files []archiveFile) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractStripsTopDirectory(t *testing.T) {
	files := []archiveFile{
		{name: "tcl8.6.13/", mode: 0o755},
		{name: "tcl8.6.13/unix/configure", body: "#!/bin/sh\n", mode: 0o755},
		{name: "tcl8.6.13/win/makefile.vc", body: "all:\n", mode: 0o644},
	}
	tests := []struct {
		name  string
		write func(*testing.T, string, []archiveFile)
	}{
		{"tcl8.6.13-src.tar.gz", writeTarGz},
		{"tcl8.6.13-src.tgz", writeTarGz},
		{"tcl8.6.13-src.tar.xz", writeTarXz},
		{"tcl8613-src.zip", writeZip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			archive := filepath.Join(tmp, tt.name)
			tt.write(t, archive, files)
			dest := filepath.Join(tmp, "src", "tcl-8.6.13")

			if err := extract(archive, dest); err != nil {
				t.Fatalf("extract: %v", err)
			}
			if got := readFile(t, filepath.Join(dest, "win", "makefile.vc")); got != "all:\n" {
				t.Errorf("makefile.vc = %q", got)
			}
			if _, err := os.Stat(filepath.Join(dest, "unix", "configure")); err != nil {
				t.Errorf("configure missing: %v", err)
			}
			leftovers, _ := filepath.Glob(filepath.Join(tmp, "src", ".extract-*"))
			if len(leftovers) != 0 {
				t.Errorf("temporary directories left behind: %v", leftovers)
			}
		})
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "evil.tar.gz")
	writeTarGz(t, archive, []archiveFile{{name: "../evil", body: "x", mode: 0o644}})
	if err := extract(archive, filepath.Join(tmp, "out")); err == nil {
		t.Fatal("extract accepted an entry outside the destination")
	}
	if _, err := os.Stat(filepath.Join(tmp, "evil")); !os.IsNotExist(err) {
		t.Errorf("escaping entry was written: %v", err)
	}
}

func TestExtractUnsupported(t *testing.T) {
	if err := extract(filepath.Join(t.TempDir(), "tcl.rar"), t.TempDir()); err == nil {
		t.Fatal("extract accepted .rar")
	}
}
