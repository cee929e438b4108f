// Package lockedfile provides a cross-process mutex backed by an OS file lock.
package lockedfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file. The file itself is never removed.
type Mutex struct {
	Path string
}

// MutexAt returns a new Mutex with file as the underlying file.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{Path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.Path)
}

// Lock blocks until the lock is held, then returns a function releasing it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, &os.PathError{Op: "lock", Path: mu.Path, Err: err}
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
