package models

import (
	"strings"
	"time"
)

// JobStatus tracks where a cached listing is in the workflow.
type JobStatus string

const (
	JobStatusNew      JobStatus = "new"
	JobStatusAnalyzed JobStatus = "analyzed"
	JobStatusApplied  JobStatus = "applied"
	JobStatusSkipped  JobStatus = "skipped"
)

// Job is a cached job listing with its analysis.
type Job struct {
	ID          string     `json:"id"`
	Company     string     `json:"company"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Status      JobStatus  `json:"status"`
	Score       *int       `json:"score,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Strengths   []string   `json:"strengths,omitempty"`
	Gaps        []string   `json:"gaps,omitempty"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validate checks the fields required to cache a listing.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.URL) == "" {
		return &ValidationError{Field: "url", Reason: "required"}
	}
	if strings.TrimSpace(j.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	return nil
}

// JobAnalysis is the structured match assessment returned by the model.
type JobAnalysis struct {
	MatchScore int      `json:"match_score"`
	Summary    string   `json:"summary"`
	Strengths  []string `json:"strengths"`
	Gaps       []string `json:"gaps"`
}

// DocumentKind identifies a profile document.
type DocumentKind string

const (
	KindProfile     DocumentKind = "profile"
	KindResume      DocumentKind = "resume"
	KindCoverLetter DocumentKind = "cover_letter"
)

// ParseDocumentKind accepts the CLI spelling of a kind.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch DocumentKind(strings.ReplaceAll(strings.ToLower(s), "-", "_")) {
	case KindProfile:
		return KindProfile, true
	case KindResume:
		return KindResume, true
	case KindCoverLetter:
		return KindCoverLetter, true
	}
	return "", false
}

// ProfileDocument is a stored profile, resume or sample cover letter.
type ProfileDocument struct {
	ID        string       `json:"id"`
	Kind      DocumentKind `json:"kind"`
	Name      string       `json:"name"`
	Content   string       `json:"content"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TargetRole is a role the candidate should pursue.
type TargetRole struct {
	RoleName  string `json:"role_name"`
	Priority  int    `json:"priority"`
	Rationale string `json:"rationale,omitempty"`
}

// Document is a generated application document tied to a job.
type Document struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CoverLetter holds the generated sections of a cover letter.
type CoverLetter struct {
	Greeting string   `json:"greeting"`
	Opening  string   `json:"opening"`
	Body     []string `json:"body"`
	Closing  string   `json:"closing"`
}

// String assembles the sections into plain text.
func (c *CoverLetter) String() string {
	parts := make([]string, 0, len(c.Body)+3)
	parts = append(parts, c.Greeting, c.Opening)
	parts = append(parts, c.Body...)
	parts = append(parts, c.Closing)

	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// Strategy is a published strategy summary.
type Strategy struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	ObjectKey string    `json:"object_key"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationError reports a bad input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
