package internal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/logger"
	"github.com/goplus/sqlmk/internal/probe"
	"github.com/goplus/sqlmk/internal/session"
)

var (
	probeWidth  string
	probeStatic bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report the toolchain and Tcl installation",
	Long: `Probe looks for the compiler, the build tool, the Tcl interpreter and
the Tcl libraries for one width and prints what it found. It never
changes anything on disk.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVarP(&probeWidth, "width", "w", "64", "Address width: 32 or 64")
	probeCmd.Flags().BoolVar(&probeStatic, "static", false, "Also require the static Tcl library")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	v, err := parseVariant(probeWidth, probeStatic)
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
	err = s.VerifyToolchain(cmd.Context())
	if s.Report != nil {
		printReport(cmd.OutOrStdout(), s.Report)
	}
	return err
}

func printReport(w io.Writer, r *probe.Report) {
	fmt.Fprintf(w, "toolchain: %s\n", r.Toolchain)
	fmt.Fprintf(w, "tcl dir:   %s\n", r.TclDir)
	for _, t := range r.Tools() {
		status := okColor.Sprintf("%-8s", "found")
		if !t.Found {
			status = errColor.Sprintf("%-8s", "missing")
		}
		fmt.Fprintf(w, "  %-20s %s %-12s %s", t.Kind, status, t.Version, t.Path)
		if t.Arch != "" {
			fmt.Fprintf(w, " (%s)", t.Arch)
		}
		if t.Note != "" {
			warnColor.Fprintf(w, " %s", t.Note)
		}
		fmt.Fprintln(w)
	}
	switch {
	case !r.ToolchainReady():
		errColor.Fprintln(w, "toolchain incomplete")
	case !r.TclReady():
		warnColor.Fprintln(w, "Tcl missing; build installs it unless --no-install is given")
	default:
		okColor.Fprintln(w, "ready")
	}
}
