package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/jobhunt/internal/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the remote database lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the lock",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force-remove the remote lock",
	Long: `Unlock deletes the lock marker regardless of holder or age.

Only use it when a process died holding the lock and you do not want to
wait for the lease to expire. Removing the lock of a live process lets
two writers overwrite each other.`,
	Example: `  jobhunt unlock
  jobhunt unlock --yes`,
	Args: cobra.NoArgs,
	RunE: runUnlock,
}

var unlockYes bool

func init() {
	rootCmd.AddCommand(lockCmd, unlockCmd)
	lockCmd.AddCommand(lockStatusCmd)

	unlockCmd.Flags().BoolVarP(&unlockYes, "yes", "y", false,
		"Do not ask for confirmation")
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	st, err := apiClient.Lock.Status(cmd.Context())
	if err != nil {
		return fail("Read lock", err)
	}

	if jsonOutput {
		printJSON(st)
		return nil
	}

	if !st.Locked {
		printSuccess("Lock %s is free", st.Key)
		return nil
	}
	printInfo("Lock %s", st.Key)
	fmt.Println(describeMarker(st))
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := apiClient.Lock.Status(ctx)
	if err != nil {
		// a malformed marker is exactly what unlock is for
		if !unlockYes {
			printWarning("Could not read lock marker: %v", err)
		}
	} else if !st.Locked {
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "removed": false})
		} else {
			printInfo("Lock is not held")
		}
		return nil
	}

	if !unlockYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fail("Unlock", fmt.Errorf("refusing to force-unlock without --yes when stdin is not a terminal"))
		}
		if st != nil {
			fmt.Fprintln(os.Stderr, describeMarker(st))
		}
		ok, err := confirm("Force-remove the lock?")
		if err != nil {
			return err
		}
		if !ok {
			printInfo("Aborted")
			return nil
		}
	}

	removed, err := apiClient.Lock.ForceUnlock(ctx)
	if err != nil {
		return fail("Unlock", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "removed": removed})
	} else if removed {
		printSuccess("Lock removed")
	} else {
		printInfo("Lock was already gone")
	}
	return nil
}

func describeMarker(st *lock.Status) string {
	if st.Marker == nil {
		return "  (no marker)"
	}
	line := fmt.Sprintf("  held by %s since %s (%s ago, lease %s)",
		st.Marker.Holder,
		st.Marker.AcquiredAt.Local().Format(time.RFC1123),
		st.Age.Round(time.Second),
		st.Marker.Lease())
	if st.Stale {
		line += "\n  stale: the next acquirer will reclaim it"
	}
	return line
}

func confirm(question string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false, fmt.Errorf("read answer: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
