package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trackrename/internal/config"
)

func newInitConfigCommand() *cobra.Command {
	var path string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				target = config.GetDefaultConfigPath()
			}
			target = config.ExpandHome(target)
			return initConfigFile(cmd, target, overwrite)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (.yaml or .toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initConfigFile creates a new config file with default values
func initConfigFile(cmd *cobra.Command, path string, overwrite bool) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil && !overwrite {
		fmt.Fprintf(out, "Config file already exists at: %s\n", path)
		fmt.Fprintln(out, "Use --overwrite to recreate it.")
		return nil
	}

	if err := config.SaveConfigFile(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Fprintf(out, "Config file created at: %s\n", path)
	return nil
}
