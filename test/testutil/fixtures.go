package testutil

import (
	"io"
	"os"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

// NewTestLogger creates a logger for tests. Set JOBHUNT_TEST_LOG=1 to see
// output.
func NewTestLogger() *events.Logger {
	var out io.Writer = io.Discard
	if os.Getenv("JOBHUNT_TEST_LOG") != "" {
		out = os.Stderr
	}
	return events.NewTestLogger(events.DebugLevel, "text", out)
}

// SampleJob returns a listing with a unique URL suffix.
func SampleJob(suffix string) *models.Job {
	return &models.Job{
		Company:     "Acme",
		Title:       "Backend Engineer " + suffix,
		URL:         "https://jobs.example.com/" + suffix,
		Description: "Build Go services backed by SQLite and object storage.",
		Location:    "Remote",
	}
}

// Canned model replies.
const (
	AnalysisJSON = `{"match_score": 82, "summary": "Strong backend fit", "strengths": ["Go", "SQL"], "gaps": ["Kubernetes"]}`

	FencedRolesJSON = "Here are the roles:\n```json\n[\n  {\"role_name\": \"Backend Engineer\", \"priority\": 1},\n  {\"role_name\": \"Platform Engineer\", \"priority\": 2},\n]\n```"

	CoverLetterJSON = `{"greeting": "Dear Hiring Team,", "opening": "I am excited to apply.", "body": ["I build Go services.", "I care about reliability."], "closing": "Best regards"}`
)
