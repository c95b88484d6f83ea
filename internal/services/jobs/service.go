// Package jobs caches job listings and scores them against the stored
// profile with the structured responder.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

// DefaultBatch bounds how many listings one AnalyzePending run scores.
const DefaultBatch = 20

// saveTimeout bounds the write of partial results after cancellation.
const saveTimeout = time.Minute

// AnalysisSchema is the shape requested for a match assessment.
var AnalysisSchema = llm.Object(
	llm.F("match_score", llm.Integer()),
	llm.F("summary", llm.String()),
	llm.F("strengths", llm.ListOf(llm.String())),
	llm.F("gaps", llm.ListOf(llm.String())),
)

var analysisExample = models.JobAnalysis{
	MatchScore: 75,
	Summary:    "Solid backend match; lacks direct payments experience.",
	Strengths:  []string{"Go", "PostgreSQL"},
	Gaps:       []string{"Payments domain"},
}

// Service manages cached listings.
type Service struct {
	store     *state.SyncedStore
	responder *llm.Responder
	logger    *events.Logger
	now       func() time.Time
}

// NewService creates a jobs service.
func NewService(store *state.SyncedStore, responder *llm.Responder, logger *events.Logger) *Service {
	return &Service{
		store:     store,
		responder: responder,
		logger:    logger.WithField("service", "jobs"),
		now:       time.Now,
	}
}

// Add caches a listing, updating the one with the same URL.
func (s *Service) Add(ctx context.Context, job *models.Job) (*models.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	var stored *models.Job
	err := s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		stored, err = state.UpsertJob(ctx, tx, job)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"job_id": stored.ID,
		"url":    stored.URL,
	}).Info("Job cached")
	return stored, nil
}

// Get loads one job.
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	var job *models.Job
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		job, err = state.GetJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns cached jobs ordered by score.
func (s *Service) List(ctx context.Context, filter state.JobFilter) ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		jobs, err = state.ListJobs(ctx, tx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// SetStatus moves a job through the workflow, e.g. to applied.
func (s *Service) SetStatus(ctx context.Context, id string, status models.JobStatus) error {
	return s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return state.SetJobStatus(ctx, tx, id, status)
	})
}

// AnalyzeReport summarizes one AnalyzePending run.
type AnalyzeReport struct {
	Pending  int      `json:"pending"`
	Analyzed []string `json:"analyzed"`
	Failed   []string `json:"failed"`
}

// AnalyzePending scores up to limit unanalyzed jobs. Listings and profile
// are read in one read-only session, the model is consulted with the lock
// released, and all results are written in a single session. A listing
// the model cannot answer for is skipped and stays pending. When ctx is
// canceled mid-batch the analyses gathered so far are still saved and the
// report is returned together with ctx.Err().
func (s *Service) AnalyzePending(ctx context.Context, limit int) (*AnalyzeReport, error) {
	if limit <= 0 {
		limit = DefaultBatch
	}

	var (
		pending []*models.Job
		profile []*models.ProfileDocument
	)
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		pending, err = state.ListJobs(ctx, tx, state.JobFilter{Status: models.JobStatusNew, Limit: limit})
		if err != nil {
			return err
		}
		profile, err = state.ListProfileDocuments(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load pending jobs: %w", err)
	}

	report := &AnalyzeReport{Pending: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	background := profileText(profile)
	results := make(map[string]*models.JobAnalysis, len(pending))

	var canceled error
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}
		logger := s.logger.WithFields(map[string]interface{}{"job_id": job.ID, "url": job.URL})

		var a models.JobAnalysis
		attempts, err := s.responder.RespondInto(ctx, llm.Request{
			Prompt:  analysisPrompt(job, background),
			Schema:  AnalysisSchema,
			Example: analysisExample,
		}, &a)
		if err != nil {
			if ctx.Err() != nil {
				canceled = ctx.Err()
				break
			}
			logger.WithError(err).Warn("Skipping job, no usable analysis")
			report.Failed = append(report.Failed, job.ID)
			continue
		}

		a.MatchScore = clampScore(a.MatchScore)
		logger.WithFields(map[string]interface{}{
			"score":    a.MatchScore,
			"attempts": attempts,
		}).Debug("Job analyzed")
		results[job.ID] = &a
	}

	if len(results) == 0 {
		return report, canceled
	}

	saveCtx := ctx
	if canceled != nil {
		var cancelSave context.CancelFunc
		saveCtx, cancelSave = context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancelSave()
	}

	at := s.now().UTC()
	var saved []string
	err = s.store.Session(saveCtx, func(ctx context.Context, tx *sql.Tx) error {
		saved = saved[:0]
		for _, job := range pending {
			a, ok := results[job.ID]
			if !ok {
				continue
			}
			if err := state.SaveAnalysis(ctx, tx, job.ID, a, at); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					// removed by another process meanwhile
					continue
				}
				return err
			}
			saved = append(saved, job.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save analyses: %w", err)
	}

	report.Analyzed = saved
	s.logger.WithFields(map[string]interface{}{
		"analyzed": len(report.Analyzed),
		"failed":   len(report.Failed),
		"canceled": canceled != nil,
	}).Info("Analysis run complete")
	return report, canceled
}

func clampScore(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}

func profileText(docs []*models.ProfileDocument) string {
	var b strings.Builder
	for _, d := range docs {
		if d.Kind == models.KindCoverLetter {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", d.Name, d.Kind, strings.TrimSpace(d.Content))
	}
	return strings.TrimSpace(b.String())
}

func analysisPrompt(job *models.Job, profile string) string {
	if profile == "" {
		profile = "(no profile on file; judge the listing on its own)"
	}

	return fmt.Sprintf(`Assess how well the candidate below fits the job listing.
match_score is an integer from 0 (no fit) to 100 (ideal fit).
strengths and gaps are short phrases.

Candidate:
%s

Job: %s at %s (%s)
%s`, profile, job.Title, job.Company, job.Location, strings.TrimSpace(job.Description))
}
