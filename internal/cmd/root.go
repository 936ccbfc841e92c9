package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	var overrides []string

	rootCmd := &cobra.Command{
		Use:   "aiterm",
		Short: "Shell terminal with an AI helper",
		Long: `aiterm runs your shell, tracks each command you submit, and hands
failed commands to an assistant that suggests a fix.

Configuration is read from $AITERM_DIR/config.yaml (default ~/.aiterm),
then AITERM_* environment variables, then --set flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil,
		"Override a config value (key=value, e.g. shell.backend=pipe)")

	rootCmd.AddCommand(
		newRunCmd(&overrides),
		newExecCmd(&overrides),
		newAskCmd(&overrides),
		newConfigCmd(&overrides),
		newVersionCmd(),
	)

	return rootCmd
}
