// Package coverletter drafts cover letters for cached jobs.
package coverletter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

// DocumentKind is the documents.kind value for generated letters.
const DocumentKind = string(models.KindCoverLetter)

// Schema is the shape requested for a letter.
var Schema = llm.Object(
	llm.F("greeting", llm.String()),
	llm.F("opening", llm.String()),
	llm.F("body", llm.ListOf(llm.String())),
	llm.F("closing", llm.String()),
)

var example = models.CoverLetter{
	Greeting: "Dear Hiring Team,",
	Opening:  "I am writing to apply for the Backend Engineer role.",
	Body:     []string{"Paragraph on relevant experience.", "Paragraph on why this company."},
	Closing:  "Kind regards,\nAlex",
}

// Service generates and stores cover letters.
type Service struct {
	store     *state.SyncedStore
	responder *llm.Responder
	logger    *events.Logger
}

// NewService creates a cover letter service.
func NewService(store *state.SyncedStore, responder *llm.Responder, logger *events.Logger) *Service {
	return &Service{
		store:     store,
		responder: responder,
		logger:    logger.WithField("service", "coverletter"),
	}
}

// Generate drafts a letter for jobID, stores the assembled text as a
// document and returns both.
func (s *Service) Generate(ctx context.Context, jobID string) (*models.CoverLetter, *models.Document, error) {
	var (
		job  *models.Job
		docs []*models.ProfileDocument
	)
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		if job, err = state.GetJob(ctx, tx, jobID); err != nil {
			return err
		}
		docs, err = state.ListProfileDocuments(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load job: %w", err)
	}

	var letter models.CoverLetter
	attempts, err := s.responder.RespondInto(ctx, llm.Request{
		Prompt:  letterPrompt(job, docs),
		Schema:  Schema,
		Example: example,
		// some variety in wording
		Temperature: 0.4,
	}, &letter)
	if err != nil {
		return nil, nil, fmt.Errorf("generate cover letter: %w", err)
	}

	doc := &models.Document{
		JobID:   job.ID,
		Kind:    DocumentKind,
		Content: letter.String(),
	}
	err = s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return state.InsertDocument(ctx, tx, doc)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store cover letter: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"doc_id":   doc.ID,
		"attempts": attempts,
	}).Info("Cover letter generated")
	return &letter, doc, nil
}

// List returns the letters generated for a job, newest first.
func (s *Service) List(ctx context.Context, jobID string) ([]*models.Document, error) {
	var out []*models.Document
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		docs, err := state.ListDocuments(ctx, tx, jobID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if d.Kind == DocumentKind {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

func letterPrompt(job *models.Job, docs []*models.ProfileDocument) string {
	var candidate, samples strings.Builder
	for _, d := range docs {
		target := &candidate
		if d.Kind == models.KindCoverLetter {
			target = &samples
		}
		fmt.Fprintf(target, "## %s\n%s\n\n", d.Name, d.Content)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a cover letter for %s at %s.\n", job.Title, job.Company)
	b.WriteString("Keep it under 350 words. body holds two to four paragraphs.\n\n")
	fmt.Fprintf(&b, "Job description:\n%s\n\n", strings.TrimSpace(job.Description))
	if c := strings.TrimSpace(candidate.String()); c != "" {
		fmt.Fprintf(&b, "Candidate:\n%s\n\n", c)
	}
	if sm := strings.TrimSpace(samples.String()); sm != "" {
		fmt.Fprintf(&b, "Match the tone of these earlier letters:\n%s\n", sm)
	}
	return b.String()
}
