package internal

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/goplus/sqlmk/internal/config"
	"github.com/goplus/sqlmk/internal/env"
	"github.com/goplus/sqlmk/internal/invoke"
	"github.com/goplus/sqlmk/internal/logger"
	"github.com/goplus/sqlmk/internal/session"
)

var (
	buildWidth     string
	buildTarget    string
	buildFlags     []string
	buildStatic    bool
	buildCCOpts    string
	buildLTLibs    string
	buildRelease   bool
	buildNoInstall bool
	buildQuiet     bool
	buildTimeout   time.Duration
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an engine target",
	Long: `Build verifies the toolchain, installs Tcl for the requested width if
it is missing, and runs the engine's makefile for one target.

Targets: default, amalgamation, devtest, releasetest, dll and util:<name>.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildWidth, "width", "w", "64", "Address width: 32 or 64")
	buildCmd.Flags().StringVarP(&buildTarget, "target", "t", "default", "Makefile target")
	buildCmd.Flags().StringArrayVar(&buildFlags, "flag", nil, "Feature flag NAME=1 (repeatable)")
	buildCmd.Flags().BoolVar(&buildStatic, "static", false, "Link Tcl statically into the target")
	buildCmd.Flags().StringVar(&buildCCOpts, "ccopts", "", "Compiler options for static Tcl linking")
	buildCmd.Flags().StringVar(&buildLTLibs, "ltlibs", "", "Link libraries for static Tcl linking")
	buildCmd.Flags().BoolVar(&buildRelease, "release", false, "Enable the release feature set")
	buildCmd.Flags().BoolVar(&buildNoInstall, "no-install", false, "Fail instead of installing a missing Tcl")
	buildCmd.Flags().BoolVarP(&buildQuiet, "quiet", "q", false, "Do not stream build tool output")
	buildCmd.Flags().DurationVar(&buildTimeout, "timeout", 0, "Limit for the build tool invocation (default from config)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	v, err := parseVariant(buildWidth, buildStatic)
	if err != nil {
		return err
	}
	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	if buildNoInstall {
		opts.AutoInstall = false
	}
	if cmd.Flags().Changed("timeout") {
		opts.BuildTimeout = buildTimeout
	}

	var log arbor.ILogger
	if buildQuiet {
		log = logger.Discard()
	} else {
		log = logger.Get()
	}
	s := session.New(opts, env.FromOS(), log)
	if !buildQuiet {
		s.Stdout = cmd.OutOrStdout()
		s.Stderr = cmd.ErrOrStderr()
	}

	result, err := s.Build(cmd.Context(), v, req, nil)
	if err != nil {
		return err
	}
	if s.Installed != nil && len(s.Installed.Ran) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), s.Installed.Describe())
	}
	printArtifacts(cmd.OutOrStdout(), req.Target, result)
	return nil
}

// buildRequest combines the configured build defaults with the flags.
func buildRequest(c *config.Config) (invoke.Request, error) {
	target, err := invoke.ParseTarget(buildTarget)
	if err != nil {
		return invoke.Request{}, &usageError{err}
	}
	if buildStatic && !target.LinksTcl() {
		return invoke.Request{}, &usageError{fmt.Errorf("--static needs a target that links Tcl (util:<name>, devtest or releasetest), not %s", target)}
	}
	specs := append(append([]string(nil), c.Build.Flags...), buildFlags...)
	flags, err := invoke.ParseFlags(specs)
	if err != nil {
		return invoke.Request{}, &usageError{err}
	}
	link := invoke.LinkSpec{CCOpts: c.Build.Static.CCOpts, Libs: c.Build.Static.Libs}
	if buildCCOpts != "" {
		link.CCOpts = buildCCOpts
	}
	if buildLTLibs != "" {
		link.Libs = invoke.ParseLibs(buildLTLibs)
	}
	return invoke.Request{
		Target:  target,
		Flags:   flags,
		Release: buildRelease,
		Static:  buildStatic,
		Link:    link,
	}, nil
}

func printArtifacts(w io.Writer, t invoke.Target, r *invoke.Result) {
	okColor.Fprintf(w, "Built %s in %s\n", t, r.Elapsed.Round(time.Millisecond))
	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "  %s\n", a)
	}
}
