package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Publish and browse strategy summaries",
}

var strategyPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Compose, upload and announce a strategy summary",
	Args:  cobra.NoArgs,
	RunE:  runStrategyPublish,
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded summaries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runStrategyList,
}

var strategyShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print an uploaded summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyShow,
}

var strategyHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded strategies from the database",
	Args:  cobra.NoArgs,
	RunE:  runStrategyHistory,
}

var (
	publishTop int
	strategyN  int
)

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyPublishCmd, strategyListCmd, strategyShowCmd, strategyHistoryCmd)

	strategyPublishCmd.Flags().IntVar(&publishTop, "top", 0, "Scored jobs to include (default 10)")
	strategyListCmd.Flags().IntVarP(&strategyN, "limit", "n", 10, "Max entries")
	strategyHistoryCmd.Flags().IntVarP(&strategyN, "limit", "n", 10, "Max entries")
}

func runStrategyPublish(cmd *cobra.Command, args []string) error {
	st, err := apiClient.Strategy.Publish(cmd.Context(), publishTop)
	if err != nil && !errors.Is(err, strategy.ErrNotifyFailed) {
		return fail("Publish strategy", err)
	}

	if jsonOutput {
		out := map[string]interface{}{"success": true, "strategy": st}
		if err != nil {
			out["warning"] = err.Error()
		}
		printJSON(out)
		return nil
	}

	fmt.Print(st.Summary)
	printSuccess("Uploaded to %s", st.ObjectKey)
	if err != nil {
		printWarning("%v", err)
	}
	return nil
}

func runStrategyList(cmd *cobra.Command, args []string) error {
	list, err := apiClient.Strategy.Latest(cmd.Context(), strategyN)
	if err != nil {
		return fail("List strategies", err)
	}

	if jsonOutput {
		printJSON(list)
		return nil
	}
	if len(list) == 0 {
		printInfo("Nothing published yet")
		return nil
	}

	tw := newTable(os.Stdout, "KEY", "SIZE", "UPDATED")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", a.Key, a.Size, a.Updated.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runStrategyShow(cmd *cobra.Command, args []string) error {
	text, err := apiClient.Strategy.Read(cmd.Context(), args[0])
	if err != nil {
		return fail("Show strategy", err)
	}
	fmt.Print(text)
	return nil
}

func runStrategyHistory(cmd *cobra.Command, args []string) error {
	list, err := apiClient.Strategy.History(cmd.Context(), strategyN)
	if err != nil {
		return fail("Strategy history", err)
	}

	if jsonOutput {
		printJSON(list)
		return nil
	}
	if len(list) == 0 {
		printInfo("Nothing published yet")
		return nil
	}

	tw := newTable(os.Stdout, "CREATED", "OBJECT", "ID")
	for _, st := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", st.CreatedAt.Local().Format("2006-01-02 15:04"), st.ObjectKey, st.ID)
	}
	return tw.Flush()
}
