package env

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// TclDirVar names the variable that points build scripts at the Tcl installation root.
const TclDirVar = "TCLDIR"

// ErrNotFound is returned by LookPath when no executable matches.
var ErrNotFound = errors.New("executable file not found in PATH")

// WorkDir returns the root directory sqlmk uses for caches: <UserCacheDir>/.sqlmk.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".sqlmk"), nil
}

// SourceCacheDir returns the directory where sources of name@version are unpacked.
// It creates the directory with 0700 permissions if it doesn't exist.
func SourceCacheDir(name, version string) (string, error) {
	workDir, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(workDir, "src", name+"-"+version)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

type entry struct {
	name  string
	value string
}

// Env is the environment of a build session. Child processes receive
// Environ(); the process environment itself is never modified.
type Env struct {
	vars map[string]entry
}

// New returns an Env populated from "KEY=VALUE" pairs.
func New(kvs []string) *Env {
	e := &Env{vars: make(map[string]entry, len(kvs))}
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			e.Set(k, v)
		}
	}
	return e
}

// FromOS snapshots the current process environment.
func FromOS() *Env {
	return New(os.Environ())
}

// Windows treats variable names case-insensitively ("Path" == "PATH").
func keyOf(name string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(name)
	}
	return name
}

func (e *Env) Lookup(key string) (string, bool) {
	ent, ok := e.vars[keyOf(key)]
	return ent.value, ok
}

func (e *Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Set assigns key. An existing spelling of the name is kept.
func (e *Env) Set(key, value string) {
	if e.vars == nil {
		e.vars = make(map[string]entry)
	}
	k := keyOf(key)
	name := key
	if old, ok := e.vars[k]; ok {
		name = old.name
	}
	e.vars[k] = entry{name: name, value: value}
}

func (e *Env) Unset(key string) {
	delete(e.vars, keyOf(key))
}

// Clone returns an independent copy.
func (e *Env) Clone() *Env {
	c := &Env{vars: make(map[string]entry, len(e.vars))}
	for k, v := range e.vars {
		c.vars[k] = v
	}
	return c
}

// Environ returns the variables as sorted "KEY=VALUE" pairs.
func (e *Env) Environ() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		ent := e.vars[k]
		out = append(out, ent.name+"="+ent.value)
	}
	return out
}

// Path returns the PATH entries in search order. Empty entries are dropped.
func (e *Env) Path() []string {
	var dirs []string
	for _, dir := range filepath.SplitList(e.Get("PATH")) {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// PrependPath puts dir at the front of PATH. It reports false if dir was
// already on PATH, in which case PATH is left unchanged.
func (e *Env) PrependPath(dir string) bool {
	for _, d := range e.Path() {
		if SamePath(d, dir) {
			return false
		}
	}
	cur := e.Get("PATH")
	if cur == "" {
		e.Set("PATH", dir)
	} else {
		e.Set("PATH", dir+string(os.PathListSeparator)+cur)
	}
	return true
}

// PathIndex returns the position of dir in PATH, or -1.
func (e *Env) PathIndex(dir string) int {
	for i, d := range e.Path() {
		if SamePath(d, dir) {
			return i
		}
	}
	return -1
}

// SamePath compares two directory names after cleaning, ignoring case and
// trailing separators on Windows.
func SamePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// LookPath searches the session PATH for an executable named file.
func (e *Env) LookPath(file string) (string, error) {
	if strings.ContainsRune(file, filepath.Separator) || strings.ContainsRune(file, '/') {
		for _, cand := range candidates(file, e.Get("PATHEXT")) {
			if isExecutable(cand) {
				return cand, nil
			}
		}
		return "", &os.PathError{Op: "lookpath", Path: file, Err: ErrNotFound}
	}
	for _, dir := range e.Path() {
		for _, cand := range candidates(filepath.Join(dir, file), e.Get("PATHEXT")) {
			if isExecutable(cand) {
				return cand, nil
			}
		}
	}
	return "", &os.PathError{Op: "lookpath", Path: file, Err: ErrNotFound}
}

func candidates(path, pathext string) []string {
	if runtime.GOOS != "windows" || filepath.Ext(path) != "" {
		return []string{path}
	}
	if pathext == "" {
		pathext = ".COM;.EXE;.BAT;.CMD"
	}
	var out []string
	for _, ext := range strings.Split(pathext, ";") {
		if ext != "" {
			out = append(out, path+strings.ToLower(ext))
		}
	}
	return out
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&fs.ModePerm&0o111 != 0
}
