// Package profile stores the candidate's profile documents and derives
// target roles from them.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

// RolesSchema is the shape requested for target roles. rationale is
// optional and read when present.
var RolesSchema = llm.ListOf(llm.Object(
	llm.F("role_name", llm.String()),
	llm.F("priority", llm.Integer()),
))

var rolesExample = []models.TargetRole{
	{RoleName: "Senior Backend Engineer", Priority: 1, Rationale: "Most experience is in Go services"},
	{RoleName: "Platform Engineer", Priority: 2, Rationale: "Infrastructure side projects"},
}

// Service manages profile documents and target roles.
type Service struct {
	store     *state.SyncedStore
	responder *llm.Responder
	logger    *events.Logger
}

// NewService creates a profile service.
func NewService(store *state.SyncedStore, responder *llm.Responder, logger *events.Logger) *Service {
	return &Service{
		store:     store,
		responder: responder,
		logger:    logger.WithField("service", "profile"),
	}
}

// IngestFile reads path and stores it as a document of kind.
func (s *Service) IngestFile(ctx context.Context, kind models.DocumentKind, path string) (*models.ProfileDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Ingest(ctx, kind, filepath.Base(path), data)
}

// Ingest extracts the text of a document and stores it under kind and
// name, replacing an earlier version with the same name.
func (s *Service) Ingest(ctx context.Context, kind models.DocumentKind, name string, data []byte) (*models.ProfileDocument, error) {
	if _, ok := models.ParseDocumentKind(string(kind)); !ok {
		return nil, &models.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	text, err := ExtractText(name, data)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, &models.ValidationError{Field: "content", Reason: "document has no text"}
	}

	doc := &models.ProfileDocument{Kind: kind, Name: name, Content: text}
	err = s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return state.UpsertProfileDocument(ctx, tx, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"kind":  string(kind),
		"name":  name,
		"chars": len(text),
	}).Info("Profile document stored")
	return doc, nil
}

// Documents lists stored documents, all kinds when kind is empty.
func (s *Service) Documents(ctx context.Context, kind models.DocumentKind) ([]*models.ProfileDocument, error) {
	var docs []*models.ProfileDocument
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		docs, err = state.ListProfileDocuments(ctx, tx, kind)
		return err
	})
	return docs, err
}

// TargetRoles returns the current roles, highest priority first.
func (s *Service) TargetRoles(ctx context.Context) ([]models.TargetRole, error) {
	var roles []models.TargetRole
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		roles, err = state.ListTargetRoles(ctx, tx)
		return err
	})
	return roles, err
}

// DeriveTargetRoles asks the model for roles matching the stored profile
// and resume and replaces the stored list.
func (s *Service) DeriveTargetRoles(ctx context.Context) ([]models.TargetRole, error) {
	var docs []*models.ProfileDocument
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		docs, err = state.ListProfileDocuments(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	background := candidateText(docs)
	if background == "" {
		return nil, &models.ValidationError{Field: "profile", Reason: "ingest a profile or resume first"}
	}

	var roles []models.TargetRole
	attempts, err := s.responder.RespondInto(ctx, llm.Request{
		Prompt:  rolesPrompt(background),
		Schema:  RolesSchema,
		Example: rolesExample,
	}, &roles)
	if err != nil {
		return nil, fmt.Errorf("derive target roles: %w", err)
	}

	roles = normalizeRoles(roles)
	if len(roles) == 0 {
		return nil, fmt.Errorf("derive target roles: %w", models.ErrNoStructuredData)
	}

	err = s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return state.ReplaceTargetRoles(ctx, tx, roles)
	})
	if err != nil {
		return nil, fmt.Errorf("store target roles: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"roles":    len(roles),
		"attempts": attempts,
	}).Info("Target roles updated")
	return roles, nil
}

// normalizeRoles drops unnamed and duplicate roles and orders by priority.
func normalizeRoles(in []models.TargetRole) []models.TargetRole {
	seen := make(map[string]bool, len(in))
	out := make([]models.TargetRole, 0, len(in))
	for _, r := range in {
		r.RoleName = strings.TrimSpace(r.RoleName)
		r.Rationale = strings.TrimSpace(r.Rationale)
		key := strings.ToLower(r.RoleName)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if r.Priority < 1 {
			r.Priority = 1
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func candidateText(docs []*models.ProfileDocument) string {
	var b strings.Builder
	for _, d := range docs {
		if d.Kind == models.KindCoverLetter {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", d.Name, d.Kind, d.Content)
	}
	return strings.TrimSpace(b.String())
}

func rolesPrompt(background string) string {
	return fmt.Sprintf(`Suggest the job roles this candidate should target, most promising first.
priority is an integer starting at 1 for the best fit. Add a one-sentence rationale per role.

Candidate:
%s`, background)
}
