package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/models"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profile documents and target roles",
}

var profileIngestCmd = &cobra.Command{
	Use:   "ingest <kind> <file>...",
	Short: "Store profile, resume or cover letter samples",
	Long: `Ingest extracts plain text from PDF, text or markdown files and stores
it under the given kind: profile, resume or cover-letter. A file with
the same name replaces the earlier version.`,
	Example: `  jobhunt profile ingest resume ~/cv.pdf
  jobhunt profile ingest cover-letter letters/*.md`,
	Args: cobra.MinimumNArgs(2),
	RunE: runProfileIngest,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileRolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Show target roles, or derive them with --derive",
	Args:  cobra.NoArgs,
	RunE:  runProfileRoles,
}

var deriveRoles bool

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileIngestCmd, profileListCmd, profileRolesCmd)

	profileRolesCmd.Flags().BoolVar(&deriveRoles, "derive", false,
		"Ask the model for new roles and replace the stored list")
}

func runProfileIngest(cmd *cobra.Command, args []string) error {
	kind, ok := models.ParseDocumentKind(args[0])
	if !ok {
		return fail("Ingest", &models.ValidationError{Field: "kind", Reason: "use profile, resume or cover-letter"})
	}

	var stored []*models.ProfileDocument
	for _, path := range args[1:] {
		doc, err := apiClient.Profile.IngestFile(cmd.Context(), kind, path)
		if err != nil {
			return fail("Ingest "+path, err)
		}
		stored = append(stored, doc)
		if !jsonOutput {
			printSuccess("Stored %s as %s (%d chars)", doc.Name, doc.Kind, len(doc.Content))
		}
	}

	if jsonOutput {
		printJSON(stored)
	}
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	docs, err := apiClient.Profile.Documents(cmd.Context(), "")
	if err != nil {
		return fail("List documents", err)
	}

	if jsonOutput {
		printJSON(docs)
		return nil
	}
	if len(docs) == 0 {
		printInfo("No documents stored")
		return nil
	}

	tw := newTable(os.Stdout, "KIND", "NAME", "CHARS", "UPDATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", d.Kind, d.Name, len(d.Content), d.UpdatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func runProfileRoles(cmd *cobra.Command, args []string) error {
	var (
		roles []models.TargetRole
		err   error
	)
	if deriveRoles {
		roles, err = apiClient.Profile.DeriveTargetRoles(cmd.Context())
	} else {
		roles, err = apiClient.Profile.TargetRoles(cmd.Context())
	}
	if err != nil {
		return fail("Target roles", err)
	}

	if jsonOutput {
		if roles == nil {
			roles = []models.TargetRole{}
		}
		printJSON(roles)
		return nil
	}
	if len(roles) == 0 {
		printInfo("No target roles yet; run 'jobhunt profile roles --derive'")
		return nil
	}
	for _, r := range roles {
		fmt.Printf("%d. %s\n", r.Priority, r.RoleName)
		if r.Rationale != "" {
			fmt.Printf("   %s\n", r.Rationale)
		}
	}
	return nil
}
