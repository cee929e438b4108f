package internal

import (
	"fmt"
	"path/filepath"

	"github.com/goplus/sqlmk/internal/config"
	"github.com/goplus/sqlmk/internal/install"
	"github.com/goplus/sqlmk/internal/session"
	"github.com/goplus/sqlmk/internal/toolchain"
	"github.com/goplus/sqlmk/internal/variant"
)

// sessionOptions translates the effective configuration.
func sessionOptions(c *config.Config) (session.Options, error) {
	tc, err := toolchain.Lookup(c.Toolchain.Name)
	if err != nil {
		return session.Options{}, &usageError{err}
	}
	tc = tc.With(c.Toolchain.Compiler, c.Toolchain.BuildTool, c.Toolchain.Makefile)

	src, err := filepath.Abs(c.Build.SourceDir)
	if err != nil {
		return session.Options{}, fmt.Errorf("failed to resolve source dir: %w", err)
	}
	return session.Options{
		Toolchain:   tc,
		Conventions: c.Conventions(),
		TclDir:      c.Tcl.Dir,
		SourceDir:   src,
		Source: install.Source{
			Version: c.Tcl.Version,
			URL:     c.Tcl.URL,
			Git:     c.Tcl.Git,
			Ref:     c.Tcl.Ref,
		},
		MinTclVersion: c.Tcl.MinVersion,
		AutoInstall:   c.Tcl.AutoInstall,
		VCVarsAll:     c.Toolchain.VCVarsAll,
		ProbeTimeout:  c.ProbeTimeout(),
		BuildTimeout:  c.BuildTimeout(),
	}, nil
}

// parseVariant reads the --width and --static flags of a command.
func parseVariant(width string, static bool) (variant.Variant, error) {
	w, err := variant.ParseWidth(width)
	if err != nil {
		return variant.Variant{}, &usageError{err}
	}
	v := variant.Variant{Width: w, Link: variant.Dynamic}
	if static {
		v.Link = variant.Static
	}
	return v, nil
}
