package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/logger"
	"github.com/goplus/sqlmk/internal/session"
	"github.com/goplus/sqlmk/internal/variant"
)

var (
	envWidth  string
	envStatic bool
	envAll    bool
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the resolved variant and session environment",
	Long: `Env resolves the requested width to its compiler environment and Tcl
directory, checks PATH ordering and prints the TCLDIR and PATH the build
tools would see.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runEnv,
}

func init() {
	envCmd.Flags().StringVarP(&envWidth, "width", "w", "64", "Address width: 32 or 64")
	envCmd.Flags().BoolVar(&envStatic, "static", false, "Resolve the static link variant")
	envCmd.Flags().BoolVarP(&envAll, "all", "a", false, "Print every session variable")
	rootCmd.AddCommand(envCmd)
}

func runEnv(cmd *cobra.Command, args []string) error {
	v, err := parseVariant(envWidth, envStatic)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	s := session.New(opts, env.FromOS(), logger.Get())
	if err := s.Resolve(cmd.Context(), v); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	res := s.Resolution
	fmt.Fprintf(w, "variant:   %s\n", res.Variant)
	fmt.Fprintf(w, "toolchain: %s\n", opts.Toolchain.Name)
	if res.Prompt != "" {
		fmt.Fprintf(w, "selector:  %s (%s)\n", res.Selector, res.Prompt)
	} else {
		fmt.Fprintf(w, "selector:  %s\n", res.Selector)
	}
	fmt.Fprintf(w, "tcl dir:   %s\n", res.InstallDir)
	fmt.Fprintf(w, "tcl libs:  %s, %s\n", s.Layout.CanonicalLibrary, s.Layout.StaticLibrary)
	fmt.Fprint(w, "path:      ")
	if msg, ok := describePathOrder(env.New(s.Environ()), res); ok {
		okColor.Fprintln(w, msg)
	} else {
		errColor.Fprintln(w, msg)
	}
	fmt.Fprintln(w)
	for _, kv := range s.Environ() {
		if envAll || isBuildVar(kv) {
			fmt.Fprintln(w, kv)
		}
	}
	return nil
}

// describePathOrder reports where each width's bin directory sits on the
// session PATH. ok is false when the other width's comes first.
func describePathOrder(e *env.Env, res variant.Resolution) (msg string, ok bool) {
	want, other := res.BinDir(), filepath.Join(res.OtherDir, "bin")
	wi, oi := e.PathIndex(want), e.PathIndex(other)
	switch {
	case wi < 0:
		return fmt.Sprintf("%s is not on PATH", want), false
	case res.OtherDir == "" || oi < 0:
		return fmt.Sprintf("%s at entry %d; %s not on PATH", want, wi, other), true
	case oi < wi:
		return fmt.Sprintf("%s at entry %d precedes %s at entry %d", other, oi, want, wi), false
	}
	return fmt.Sprintf("%s at entry %d precedes %s at entry %d", want, wi, other, oi), true
}

func isBuildVar(kv string) bool {
	name, _, _ := strings.Cut(kv, "=")
	switch strings.ToUpper(name) {
	case env.TclDirVar, "PATH", "INCLUDE", "LIB", "LIBPATH":
		return true
	}
	return false
}
