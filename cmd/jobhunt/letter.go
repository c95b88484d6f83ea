package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/models"
)

var letterCmd = &cobra.Command{
	Use:   "letter <job-id>",
	Short: "Draft a cover letter for a cached job",
	Example: `  jobhunt letter 7f0c... --out letter.md`,
	Args: cobra.ExactArgs(1),
	RunE: runLetter,
}

var (
	letterOut  string
	listLetter bool
)

func init() {
	rootCmd.AddCommand(letterCmd)
	letterCmd.Flags().StringVarP(&letterOut, "out", "o", "", "Also write the letter to this file")
	letterCmd.Flags().BoolVarP(&listLetter, "list", "l", false, "Show letters already generated for the job")
}

func runLetter(cmd *cobra.Command, args []string) error {
	if listLetter {
		return showLetters(cmd, args[0])
	}

	letter, doc, err := apiClient.Letters.Generate(cmd.Context(), args[0])
	if err != nil {
		return fail("Cover letter", err)
	}

	if letterOut != "" {
		if err := os.WriteFile(letterOut, []byte(doc.Content+"\n"), 0600); err != nil {
			return fmt.Errorf("write letter: %w", err)
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"document": doc, "sections": letter})
		return nil
	}
	fmt.Println(doc.Content)
	if letterOut != "" {
		printSuccess("Saved to %s", letterOut)
	}
	return nil
}

func showLetters(cmd *cobra.Command, jobID string) error {
	docs, err := apiClient.Letters.List(cmd.Context(), jobID)
	if err != nil {
		return fail("List letters", err)
	}

	if jsonOutput {
		if docs == nil {
			docs = []*models.Document{}
		}
		printJSON(docs)
		return nil
	}
	if len(docs) == 0 {
		printInfo("No letters for %s", jobID)
		return nil
	}
	for i, d := range docs {
		if i > 0 {
			fmt.Println("---")
		}
		printInfo("%s (%s)", d.ID, d.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Println(d.Content)
	}
	return nil
}
