package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Config prints the configuration after defaults, the config file,
SQLMK_* environment variables and global flags have been applied.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
