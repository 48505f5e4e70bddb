package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/resilindex/internal/config"
)

var forceConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with every default",
	Args:  cobra.MaximumNArgs(1),
	// Writing defaults must work even when the current config is invalid.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.WriteDefault(path, forceConfig); err != nil {
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", successStyle.Render("✓"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceConfig, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
