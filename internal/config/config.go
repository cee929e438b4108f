// Package config loads sqlmk settings from TOML files and SQLMK_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/tcl"
	"github.com/goplus/sqlmk/internal/variant"
)

// FileName is the config file looked up in the engine source directory.
const FileName = "sqlmk.toml"

// Config is the complete sqlmk configuration.
type Config struct {
	Toolchain ToolchainConfig `toml:"toolchain"`
	Tcl       TclConfig       `toml:"tcl"`
	Build     BuildConfig     `toml:"build"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ToolchainConfig selects and optionally overrides the native toolchain.
type ToolchainConfig struct {
	Name      string `toml:"name" validate:"omitempty,oneof=msvc gnu"`
	Compiler  string `toml:"compiler"`
	BuildTool string `toml:"build_tool"`
	Makefile  string `toml:"makefile"`
	// VCVarsAll is the path to vcvarsall.bat; empty means the current
	// environment is already a developer prompt.
	VCVarsAll    string `toml:"vcvarsall"`
	ProbeTimeout string `toml:"probe_timeout" validate:"omitempty,duration"`
}

// TclConfig describes where Tcl comes from and where it is installed.
type TclConfig struct {
	Version     string `toml:"version" validate:"required"`
	MinVersion  string `toml:"min_version" validate:"required"`
	URL         string `toml:"url"`
	Git         string `toml:"git"`
	Ref         string `toml:"ref"`
	Root32      string `toml:"root32" validate:"required"`
	Root64      string `toml:"root64" validate:"required"`
	AutoInstall bool   `toml:"auto_install"`
	// Dir comes from TCLDIR and overrides the root of the requested width.
	Dir string `toml:"-"`
}

// BuildConfig holds defaults for the build command.
type BuildConfig struct {
	SourceDir string       `toml:"source_dir"`
	Timeout   string       `toml:"timeout" validate:"omitempty,duration"`
	Flags     []string     `toml:"flags"`
	Static    StaticConfig `toml:"static"`
}

// StaticConfig holds the compiler options and libraries for statically linked Tcl.
type StaticConfig struct {
	CCOpts string   `toml:"ccopts"`
	Libs   []string `toml:"libs"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	conv, err := variant.DefaultConventions()
	if err != nil {
		conv = variant.Conventions{Root32: "tcl32", Root64: "tcl64"}
	}
	return &Config{
		Toolchain: ToolchainConfig{
			ProbeTimeout: "10s",
		},
		Tcl: TclConfig{
			Version:     "8.6.13",
			MinVersion:  tcl.MinVersion,
			URL:         "https://prdownloads.sourceforge.net/tcl/tcl{version}-src.tar.gz",
			Root32:      conv.Root32,
			Root64:      conv.Root64,
			AutoInstall: true,
		},
		Build: BuildConfig{
			SourceDir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults, then each
// file in order, then environment variables. Empty paths are skipped.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies SQLMK_* and TCLDIR overrides to config.
func applyEnvOverrides(config *Config) error {
	if name := os.Getenv("SQLMK_TOOLCHAIN"); name != "" {
		config.Toolchain.Name = name
	}
	if vcvars := os.Getenv("SQLMK_VCVARSALL"); vcvars != "" {
		config.Toolchain.VCVarsAll = vcvars
	}
	if version := os.Getenv("SQLMK_TCL_VERSION"); version != "" {
		config.Tcl.Version = version
	}
	if url := os.Getenv("SQLMK_TCL_URL"); url != "" {
		config.Tcl.URL = url
	}
	if git := os.Getenv("SQLMK_TCL_GIT"); git != "" {
		config.Tcl.Git = git
		// An explicit remote replaces the default archive.
		if os.Getenv("SQLMK_TCL_URL") == "" {
			config.Tcl.URL = ""
		}
	}
	if root := os.Getenv("SQLMK_TCL_ROOT32"); root != "" {
		config.Tcl.Root32 = root
	}
	if root := os.Getenv("SQLMK_TCL_ROOT64"); root != "" {
		config.Tcl.Root64 = root
	}
	if autoInstall := os.Getenv("SQLMK_TCL_AUTO_INSTALL"); autoInstall != "" {
		v, err := strconv.ParseBool(autoInstall)
		if err != nil {
			return fmt.Errorf("SQLMK_TCL_AUTO_INSTALL: %w", err)
		}
		config.Tcl.AutoInstall = v
	}
	if dir := os.Getenv(env.TclDirVar); dir != "" {
		config.Tcl.Dir = dir
	}
	if src := os.Getenv("SQLMK_SOURCE_DIR"); src != "" {
		config.Build.SourceDir = src
	}
	if timeout := os.Getenv("SQLMK_BUILD_TIMEOUT"); timeout != "" {
		config.Build.Timeout = timeout
	}
	if flags := os.Getenv("SQLMK_FLAGS"); flags != "" {
		config.Build.Flags = strings.Fields(strings.ReplaceAll(flags, ",", " "))
	}
	if level := os.Getenv("SQLMK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Tcl.Version != "latest" && tcl.Semver(c.Tcl.Version) == "" {
		return fmt.Errorf("invalid configuration: tcl.version %q is not a Tcl release", c.Tcl.Version)
	}
	if tcl.Semver(c.Tcl.MinVersion) == "" {
		return fmt.Errorf("invalid configuration: tcl.min_version %q is not a Tcl release", c.Tcl.MinVersion)
	}
	if c.Tcl.Version == "latest" && c.Tcl.Git == "" {
		return fmt.Errorf("invalid configuration: tcl.version \"latest\" needs tcl.git")
	}
	if c.Tcl.Root32 == c.Tcl.Root64 {
		return fmt.Errorf("invalid configuration: tcl.root32 and tcl.root64 are both %q", c.Tcl.Root32)
	}
	return nil
}

// BuildTimeout returns build.timeout, or zero for no limit.
func (c *Config) BuildTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Build.Timeout)
	return d
}

// ProbeTimeout returns toolchain.probe_timeout, or zero for the default.
func (c *Config) ProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Toolchain.ProbeTimeout)
	return d
}

// Conventions returns the install roots per width.
func (c *Config) Conventions() variant.Conventions {
	return variant.Conventions{Root32: c.Tcl.Root32, Root64: c.Tcl.Root64}
}

// String renders the effective configuration as TOML.
func (c *Config) String() string {
	data, err := toml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
