package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mrilabelsync/pkg/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists\nUse --force to overwrite", configPath)
	}
	if err := config.CreateDefaultConfigFile(configPath); err != nil {
		return err
	}
	PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Default configuration written to %s", configPath))
	return nil
}
