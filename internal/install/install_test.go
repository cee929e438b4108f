package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ternarybob/arbor"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/toolchain"
	"github.com/goplus/sqlmk/internal/variant"
)

const fakeConfigure = `#!/bin/sh
prefix=/usr/local
for a in "$@"; do
	case "$a" in --prefix=*) prefix="${a#--prefix=}";; esac
done
echo "$prefix" > prefix.txt
echo "configure $*" >> "$SQLMK_TEST_LOG"
`

const fakeMake = `#!/bin/sh
echo "make $*" >> "$SQLMK_TEST_LOG"
if [ -n "$FAIL_MAKE" ]; then
	echo "boom: $FAIL_MAKE"
	exit 2
fi
prefix=$(cat prefix.txt)
if [ "$1" = install ]; then
	mkdir -p "$prefix/lib" "$prefix/bin"
	echo "shared library" > "$prefix/lib/libtcl8.6.so"
	echo "interpreter" > "$prefix/bin/tclsh8.6"
	chmod +x "$prefix/bin/tclsh8.6"
else
	echo "static library" > libtcl8.6.a
fi
`

const fakeNmake = `#!/bin/sh
echo "nmake $*" >> "$SQLMK_TEST_LOG"
case "$4" in
install)
	dir="${5#INSTALLDIR=}"
	mkdir -p "$dir/lib" "$dir/bin"
	echo "import library" > "$dir/lib/tcl86t.lib"
	echo "interpreter" > "$dir/bin/tclsh86t.exe"
	;;
shell)
	mkdir -p Release_AMD64_VC1938
	echo "static library" > Release_AMD64_VC1938/tcl86s.lib
	;;
esac
`

type fixture struct {
	src  string
	log  string
	tool string
	env  *env.Env
}

func newFixture(t *testing.T, msvc bool) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake build tools are shell scripts")
	}
	tmp := t.TempDir()
	f := &fixture{
		src: filepath.Join(tmp, "tcl-src"),
		log: filepath.Join(tmp, "tools.log"),
	}
	bin := filepath.Join(tmp, "bin")
	if msvc {
		f.tool = filepath.Join(bin, "nmake")
		mustWrite(t, f.tool, fakeNmake, 0o755)
		mustWrite(t, filepath.Join(f.src, "win", "makefile.vc"), "# makefile.vc\n", 0o644)
	} else {
		f.tool = filepath.Join(bin, "make")
		mustWrite(t, f.tool, fakeMake, 0o755)
		mustWrite(t, filepath.Join(f.src, "unix", "configure"), fakeConfigure, 0o755)
	}
	f.env = env.New([]string{
		"PATH=" + strings.Join([]string{bin, "/usr/bin", "/bin"}, string(os.PathListSeparator)),
		"SQLMK_TEST_LOG=" + f.log,
	})
	return f
}

func (f *fixture) installer(tc toolchain.Toolchain) *Installer {
	return &Installer{
		Toolchain: tc.With("", f.tool, ""),
		Source:    Source{Version: "8.6.13", Dir: f.src},
		Env:       f.env,
		Logger:    arbor.NewNoOpLogger(),
	}
}

func (f *fixture) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func resolve(t *testing.T, tc toolchain.Toolchain, width variant.Width, link variant.LinkMode) variant.Resolution {
	t.Helper()
	root := t.TempDir()
	r := &variant.Resolver{
		Toolchain: tc,
		Conventions: variant.Conventions{
			Root32: filepath.Join(root, "tcl32"),
			Root64: filepath.Join(root, "tcl64"),
		},
	}
	res, err := r.Resolve(variant.Variant{Width: width, Link: link})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestInstallIsIdempotent(t *testing.T) {
	for _, width := range []variant.Width{variant.W32, variant.W64} {
		t.Run(width.String(), func(t *testing.T) {
			f := newFixture(t, false)
			in := f.installer(toolchain.GNU)
			res := resolve(t, toolchain.GNU, width, variant.Dynamic)
			ctx := context.Background()

			first, err := in.Install(ctx, res)
			if err != nil {
				t.Fatalf("first Install: %v", err)
			}
			if want := []string{StageInstall, StageCanonical}; !cmp.Equal(want, first.Ran) {
				t.Error(cmp.Diff(want, first.Ran))
			}
			for _, p := range []string{"lib/libtcl8.6.so", "lib/libtcl.so", "bin/tclsh8.6", "bin/tclsh"} {
				if !fileExists(filepath.Join(res.InstallDir, filepath.FromSlash(p))) {
					t.Errorf("%s missing after install", p)
				}
			}
			calls := f.calls(t)
			if len(calls) != 3 {
				t.Fatalf("tool calls = %q, want configure, make, make install", calls)
			}
			configure := calls[0]
			if has := strings.Contains(configure, "--enable-64bit"); has != (width == variant.W64) {
				t.Errorf("configure call %q: --enable-64bit present = %v for %s", configure, has, width)
			}
			if !strings.Contains(configure, "--prefix="+res.InstallDir) {
				t.Errorf("configure call %q lacks --prefix", configure)
			}

			second, err := in.Install(ctx, res)
			if err != nil {
				t.Fatalf("second Install: %v", err)
			}
			if len(second.Ran) != 0 || len(second.Copied) != 0 {
				t.Errorf("second Install ran %v and copied %v, want nothing", second.Ran, second.Copied)
			}
			if got := f.calls(t); len(got) != len(calls) {
				t.Errorf("second Install invoked build tools: %q", got[len(calls):])
			}

			m, err := ReadMarker(res.InstallDir)
			if err != nil || m == nil {
				t.Fatalf("ReadMarker = %v, %v", m, err)
			}
			if m.Version != "8.6.13" || m.Width != int(width) || !m.Done(StageInstall) || !m.Done(StageCanonical) {
				t.Errorf("marker = %+v", m)
			}
		})
	}
}

func TestInstallStatic(t *testing.T) {
	f := newFixture(t, false)
	in := f.installer(toolchain.GNU)
	res := resolve(t, toolchain.GNU, variant.W64, variant.Static)
	ctx := context.Background()

	result, err := in.Install(ctx, res)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if want := []string{StageInstall, StageCanonical, StageStatic}; !cmp.Equal(want, result.Ran) {
		t.Error(cmp.Diff(want, result.Ran))
	}
	if got := readFile(t, filepath.Join(res.InstallDir, "lib", "libtcl8.6.a")); got != "static library\n" {
		t.Errorf("static library = %q", got)
	}
	if !fileExists(filepath.Join(res.InstallDir, "lib", "libtcl8.6.so")) {
		t.Error("dynamic library missing next to static one")
	}
	var staticConfigure bool
	for _, c := range f.calls(t) {
		if strings.HasPrefix(c, "configure") && strings.Contains(c, "--disable-shared --disable-threads") {
			staticConfigure = true
		}
	}
	if !staticConfigure {
		t.Errorf("no static configure call in %q", f.calls(t))
	}

	n := len(f.calls(t))
	again, err := in.Install(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Ran) != 0 || len(f.calls(t)) != n {
		t.Errorf("second static Install ran %v", again.Ran)
	}
}

func TestInstallMSVC(t *testing.T) {
	f := newFixture(t, true)
	in := f.installer(toolchain.MSVC)
	res := resolve(t, toolchain.MSVC, variant.W64, variant.Static)

	result, err := in.Install(context.Background(), res)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if want := []string{StageInstall, StageCanonical, StageStatic}; !cmp.Equal(want, result.Ran) {
		t.Error(cmp.Diff(want, result.Ran))
	}
	want := []string{
		"nmake /nologo /f makefile.vc release",
		"nmake /nologo /f makefile.vc install INSTALLDIR=" + res.InstallDir,
		"nmake /nologo /f makefile.vc shell OPTS=nothreads,static",
	}
	if got := f.calls(t); !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
	for _, name := range []string{"lib/tcl86t.lib", "lib/tcl86.lib", "lib/tcl86s.lib", "bin/tclsh86t.exe", "bin/tclsh.exe"} {
		if !fileExists(filepath.Join(res.InstallDir, filepath.FromSlash(name))) {
			t.Errorf("%s missing", name)
		}
	}
}

func TestInstallResumesAtCanonicalCopy(t *testing.T) {
	f := newFixture(t, false)
	in := f.installer(toolchain.GNU)
	res := resolve(t, toolchain.GNU, variant.W64, variant.Dynamic)
	ctx := context.Background()
	if _, err := in.Install(ctx, res); err != nil {
		t.Fatal(err)
	}
	n := len(f.calls(t))

	if err := os.Remove(filepath.Join(res.InstallDir, "lib", "libtcl.so")); err != nil {
		t.Fatal(err)
	}
	result, err := in.Install(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{StageCanonical}; !cmp.Equal(want, result.Ran) {
		t.Error(cmp.Diff(want, result.Ran))
	}
	if len(f.calls(t)) != n {
		t.Errorf("restoring a canonical copy rebuilt Tcl: %q", f.calls(t)[n:])
	}
}

func TestInstallBuildFailure(t *testing.T) {
	f := newFixture(t, false)
	f.env.Set("FAIL_MAKE", "compile error")
	in := f.installer(toolchain.GNU)
	res := resolve(t, toolchain.GNU, variant.W32, variant.Dynamic)

	_, err := in.Install(context.Background(), res)
	var dbf *DependencyBuildFailure
	if !errors.As(err, &dbf) {
		t.Fatalf("Install() error = %v, want DependencyBuildFailure", err)
	}
	if dbf.Stage != "build" || dbf.ExitCode != 2 {
		t.Errorf("failure = stage %q exit %d, want build/2", dbf.Stage, dbf.ExitCode)
	}
	if !strings.Contains(dbf.Output, "boom: compile error") {
		t.Errorf("failure output = %q", dbf.Output)
	}
	if m, _ := ReadMarker(res.InstallDir); m != nil && m.Done(StageInstall) {
		t.Error("failed install was recorded as done")
	}
}

func TestInstallNoSource(t *testing.T) {
	f := newFixture(t, false)
	in := f.installer(toolchain.GNU)
	in.Source.Dir = filepath.Join(t.TempDir(), "empty")
	res := resolve(t, toolchain.GNU, variant.W64, variant.Dynamic)

	_, err := in.Install(context.Background(), res)
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("Install() error = %v, want ErrNoSource", err)
	}
	var dbf *DependencyBuildFailure
	if !errors.As(err, &dbf) || dbf.Stage != "fetch" {
		t.Errorf("Install() error = %v, want fetch-stage failure", err)
	}
}

func TestInstallFromArchive(t *testing.T) {
	f := newFixture(t, false)
	archive := filepath.Join(t.TempDir(), "tcl8.6.13-src.tar.gz")
	writeTarGz(t, archive, []archiveFile{
		{name: "tcl8.6.13/unix/configure", body: fakeConfigure, mode: 0o755},
	})
	in := f.installer(toolchain.GNU)
	in.Source = Source{
		Version: "8.6.13",
		URL:     strings.Replace(archive, "8.6.13", "{version}", 1),
		Dir:     filepath.Join(t.TempDir(), "src", "tcl-8.6.13"),
	}
	res := resolve(t, toolchain.GNU, variant.W64, variant.Dynamic)

	if _, err := in.Install(context.Background(), res); err != nil {
		t.Fatalf("Install: %v", err)
	}
	m, err := ReadMarker(res.InstallDir)
	if err != nil || m == nil {
		t.Fatalf("ReadMarker = %v, %v", m, err)
	}
	if m.Source != archive {
		t.Errorf("marker source = %q, want %q", m.Source, archive)
	}
}

func TestInstallMarkerForOtherVersion(t *testing.T) {
	f := newFixture(t, false)
	in := f.installer(toolchain.GNU)
	res := resolve(t, toolchain.GNU, variant.W64, variant.Dynamic)
	ctx := context.Background()
	if _, err := in.Install(ctx, res); err != nil {
		t.Fatal(err)
	}

	in.Source.Version = "8.6.14"
	result, err := in.Install(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{StageInstall, StageCanonical}; !cmp.Equal(want, result.Ran) {
		t.Error(cmp.Diff(want, result.Ran))
	}
}
