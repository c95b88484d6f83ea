package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Configuration helpers",
	Annotations: map[string]string{"setup": "none"},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "jobhunt.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		printWarning("%s already exists, use --force to overwrite", path)
		return nil
	}

	if err := config.SaveExample(path); err != nil {
		return fail("Write config", err)
	}
	printSuccess("Wrote %s", path)
	return nil
}
