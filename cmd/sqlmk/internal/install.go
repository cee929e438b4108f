package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/logger"
	"github.com/goplus/sqlmk/internal/session"
)

var (
	installWidth  string
	installStatic bool
	installDir    string
	installQuiet  bool
)

var installCmd = &cobra.Command{
	Use:   "install-tcl",
	Short: "Install the Tcl development library",
	Long: `Install-tcl fetches Tcl sources, builds a release configuration for
the requested width, installs it and copies the library and interpreter
to their canonical names. With --static it also builds the static
library. Stages already recorded as done are skipped.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installWidth, "width", "w", "64", "Address width: 32 or 64")
	installCmd.Flags().BoolVar(&installStatic, "static", false, "Also build the static Tcl library")
	installCmd.Flags().StringVar(&installDir, "dir", "", "Install directory (default by width)")
	installCmd.Flags().BoolVarP(&installQuiet, "quiet", "q", false, "Do not stream build tool output")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	v, err := parseVariant(installWidth, installStatic)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	if installDir != "" {
		opts.TclDir = installDir
	}
	opts.ForceInstall = true

	s := session.New(opts, env.FromOS(), logger.Get())
	if !installQuiet {
		s.Stdout = cmd.OutOrStdout()
		s.Stderr = cmd.ErrOrStderr()
	}
	if err := s.Prepare(cmd.Context(), v, nil, nil); err != nil {
		return err
	}
	okColor.Fprintln(cmd.OutOrStdout(), s.Installed.Describe())
	for _, c := range s.Installed.Copied {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
	}
	return nil
}
