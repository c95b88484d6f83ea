package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Work with the shared database file",
}

var dbPullCmd = &cobra.Command{
	Use:   "pull <path>",
	Short: "Download a copy of the database for inspection",
	Long: `Pull copies the remote database to a local path under the lock.
The copy is never uploaded; changes to it are not shared.`,
	Example: `  jobhunt db pull ./jobhunt-copy.db
  sqlite3 ./jobhunt-copy.db 'select title, score from jobs'`,
	Args: cobra.ExactArgs(1),
	RunE: runDBPull,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbPullCmd)
}

func runDBPull(cmd *cobra.Command, args []string) error {
	dest, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	found, err := apiClient.DB.Snapshot(cmd.Context(), dest)
	if err != nil {
		return fail("Pull database", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "found": found, "path": dest})
		return nil
	}
	if !found {
		printWarning("No remote database yet; nothing written")
		return nil
	}
	printSuccess("Database copied to %s", dest)
	return nil
}
