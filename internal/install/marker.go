package install

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Install directory layout:
//
//	<dir>/
//	  .sqlmk-install.json   # completed install stages
//	  .sqlmk.lock           # cross-process install lock
//	  bin/                  # tclsh and its canonical copy
//	  lib/                  # import, canonical and static libraries
const (
	markerFile = ".sqlmk-install.json"
	lockFile   = ".sqlmk.lock"
)

// Stages recorded in the marker, in execution order.
const (
	StageInstall   = "install"
	StageCanonical = "canonicalize"
	StageStatic    = "static"
)

// Marker records which install stages completed, so an interrupted
// install resumes at the first unfinished stage.
type Marker struct {
	Version   string               `json:"version"`
	Toolchain string               `json:"toolchain"`
	Width     int                  `json:"width"`
	Source    string               `json:"source,omitempty"`
	Commit    string               `json:"commit,omitempty"`
	Stages    map[string]time.Time `json:"stages"`
}

// Done reports whether stage completed.
func (m *Marker) Done(stage string) bool {
	_, ok := m.Stages[stage]
	return ok
}

func (m *Marker) mark(stage string) {
	if m.Stages == nil {
		m.Stages = make(map[string]time.Time)
	}
	m.Stages[stage] = time.Now().UTC()
}

func (m *Marker) matches(version, toolchain string, width int) bool {
	return m.Version == version && m.Toolchain == toolchain && m.Width == width
}

// ReadMarker loads the marker in dir. It returns nil and no error if none
// exists.
func ReadMarker(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, markerFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeMarker(dir string, m *Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, markerFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
