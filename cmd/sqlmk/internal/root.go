package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goplus/sqlmk/internal/config"
	"github.com/goplus/sqlmk/internal/logger"
)

var (
	rootConfig    string
	rootLogLevel  string
	rootSource    string
	rootToolchain string
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
)

// cfg is the effective configuration, loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sqlmk",
	Short: "sqlmk builds the SQLite engine and its Tcl dependency",
	Long: `sqlmk automates building the SQLite engine from source: it checks the
C toolchain, installs the Tcl development library for the requested
address width, points TCLDIR at it and runs the engine's makefile.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootConfig, "config", "", "Config file (default <source>/"+config.FileName+" if present)")
	pf.StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&rootSource, "source", "", "Engine source directory holding the makefile")
	pf.StringVar(&rootToolchain, "toolchain", "", "Toolchain: msvc or gnu (default by OS)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})
}

// loadConfig applies defaults, the config file, SQLMK_* variables and
// finally the global flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFiles(configPath())
	if err != nil {
		return &usageError{err}
	}
	if rootLogLevel != "" {
		c.Logging.Level = rootLogLevel
	}
	if rootSource != "" {
		c.Build.SourceDir = rootSource
	}
	if rootToolchain != "" {
		c.Toolchain.Name = rootToolchain
	}
	if err := c.Validate(); err != nil {
		return &usageError{err}
	}
	cfg = c
	logger.Init(cfg.Logging.Level).Debug().Str("config", configPath()).Msg("Configuration loaded")
	return nil
}

func configPath() string {
	if rootConfig != "" {
		return rootConfig
	}
	dir := rootSource
	if dir == "" {
		dir = os.Getenv("SQLMK_SOURCE_DIR")
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		report(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// report prints the single terminal message for a failed command.
func report(w io.Writer, err error) {
	errColor.Fprintf(w, "sqlmk: %v\n", err)
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintln(w, "Run 'sqlmk --help' for usage.")
		return
	}
	if out := toolOutput(err); out != "" {
		warnColor.Fprintln(w, "--- tool output (last lines) ---")
		fmt.Fprintln(w, lastLines(out, outputLines))
	}
}
