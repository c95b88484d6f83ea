package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/client"
	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
)

var (
	cfgFile    string
	logLevel   string
	jsonOutput bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client

	// set once an error has been shown to the user
	errReported bool
)

var rootCmd = &cobra.Command{
	Use:   "jobhunt",
	Short: "Job search workflow backed by a shared SQLite file",
	Long: `jobhunt caches job listings, scores them against your profile with a
generative model and publishes a strategy summary.

The database lives in an object store (S3, GCS, Redis or a local
directory) and is only touched under a remote lock, so the CLI, the
daemon and scheduled Lambda runs can share it safely.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./jobhunt.yaml or ~/.config/jobhunt/jobhunt.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print results as JSON")
}

// setup loads config and builds the client before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	if skipSetup(cmd) {
		return nil
	}

	loader := config.NewLoader(cfgFile)
	v := loader.Viper()
	if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	if jsonOutput {
		cfg.Log.Color = false
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logger.WithField("path", used).Debug("Loaded config file")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	apiClient, err = client.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	return nil
}

// skipSetup is true for commands that work without a configured client.
func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["setup"] == "none" {
			return true
		}
	}
	return false
}

// fail prints err in the selected output mode and returns it.
func fail(msg string, err error) error {
	errReported = true
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	} else {
		printError("%s: %v", msg, err)
	}
	return err
}
