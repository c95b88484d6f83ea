package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Cache, analyze and list job listings",
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Cache a job listing",
	Example: `  jobhunt jobs add https://jobs.example.com/42 --title "Backend Engineer" --company Acme
  jobhunt jobs add https://jobs.example.com/42 --title "SRE" --description-file listing.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsAdd,
}

var jobsAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score pending listings against your profile",
	Args:  cobra.NoArgs,
	RunE:  runJobsAnalyze,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached jobs, best matches first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsMarkCmd = &cobra.Command{
	Use:       "mark <job-id> <status>",
	Short:     "Set a job's status (new, analyzed, applied, skipped)",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"new", "analyzed", "applied", "skipped"},
	RunE:      runJobsMark,
}

var (
	addTitle       string
	addCompany     string
	addLocation    string
	addDescription string
	addDescFile    string

	analyzeLimit int

	listStatus   string
	listMinScore int
	listLimit    int
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsAddCmd, jobsAnalyzeCmd, jobsListCmd, jobsMarkCmd)

	jobsAddCmd.Flags().StringVarP(&addTitle, "title", "t", "", "Job title (required)")
	jobsAddCmd.Flags().StringVar(&addCompany, "company", "", "Company name")
	jobsAddCmd.Flags().StringVar(&addLocation, "location", "", "Location or remote policy")
	jobsAddCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Listing text")
	jobsAddCmd.Flags().StringVar(&addDescFile, "description-file", "", "Read listing text from a file")
	_ = jobsAddCmd.MarkFlagRequired("title")

	jobsAnalyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "n", 0, "Max listings to analyze (default 20)")

	jobsListCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only jobs with this status")
	jobsListCmd.Flags().IntVar(&listMinScore, "min-score", 0, "Only jobs scoring at least this")
	jobsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Max rows")
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	description := addDescription
	if addDescFile != "" {
		b, err := os.ReadFile(addDescFile)
		if err != nil {
			return fmt.Errorf("read description: %w", err)
		}
		description = string(b)
	}

	job, err := apiClient.Jobs.Add(cmd.Context(), &models.Job{
		URL:         args[0],
		Title:       addTitle,
		Company:     addCompany,
		Location:    addLocation,
		Description: description,
	})
	if err != nil {
		return fail("Add job", err)
	}

	if jsonOutput {
		printJSON(job)
		return nil
	}
	printSuccess("Cached %s (%s)", job.Title, job.ID)
	return nil
}

func runJobsAnalyze(cmd *cobra.Command, args []string) error {
	report, err := apiClient.Jobs.AnalyzePending(cmd.Context(), analyzeLimit)
	if err != nil {
		return fail("Analyze jobs", err)
	}

	if jsonOutput {
		printJSON(report)
		return nil
	}
	if report.Pending == 0 {
		printInfo("No pending jobs")
		return nil
	}
	printSuccess("Analyzed %d of %d pending jobs", len(report.Analyzed), report.Pending)
	if len(report.Failed) > 0 {
		printWarning("%d jobs got no usable answer and stay pending: %s",
			len(report.Failed), strings.Join(report.Failed, ", "))
	}
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	list, err := apiClient.Jobs.List(cmd.Context(), state.JobFilter{
		Status:   models.JobStatus(listStatus),
		MinScore: listMinScore,
		Limit:    listLimit,
	})
	if err != nil {
		return fail("List jobs", err)
	}

	if jsonOutput {
		if list == nil {
			list = []*models.Job{}
		}
		printJSON(list)
		return nil
	}
	if len(list) == 0 {
		printInfo("No jobs cached")
		return nil
	}

	tw := newTable(os.Stdout, "SCORE", "STATUS", "TITLE", "COMPANY", "ID")
	for _, j := range list {
		score := "-"
		if j.Score != nil {
			score = fmt.Sprintf("%d", *j.Score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", score, j.Status, j.Title, j.Company, j.ID)
	}
	return tw.Flush()
}

func runJobsMark(cmd *cobra.Command, args []string) error {
	status := models.JobStatus(args[1])
	switch status {
	case models.JobStatusNew, models.JobStatusAnalyzed, models.JobStatusApplied, models.JobStatusSkipped:
	default:
		return fail("Mark job", &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", args[1])})
	}

	if err := apiClient.Jobs.SetStatus(cmd.Context(), args[0], status); err != nil {
		return fail("Mark job", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "id": args[0], "status": status})
		return nil
	}
	printSuccess("Job %s marked %s", args[0], status)
	return nil
}
