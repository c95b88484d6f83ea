package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/jobhunt/internal/models"
)

// Querier is satisfied by *sql.Tx and *sql.DB.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UpsertJob caches a listing keyed by URL. Analysis fields of an existing
// row are preserved. The stored row is returned.
func UpsertJob(ctx context.Context, q Querier, job *models.Job) (*models.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	status := job.Status
	if status == "" {
		status = models.JobStatusNew
	}

	_, err := q.ExecContext(ctx, `
        INSERT INTO jobs (id, company, title, url, description, location, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(url) DO UPDATE SET
            company = excluded.company,
            title = excluded.title,
            description = excluded.description,
            location = excluded.location
    `, id, job.Company, job.Title, job.URL, job.Description, job.Location, string(status), created)
	if err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}

	return GetJobByURL(ctx, q, job.URL)
}

const jobColumns = `id, company, title, url, description, location, status, score,
    summary, strengths, gaps, analyzed_at, created_at`

// GetJob loads a job by id.
func GetJob(ctx context.Context, q Querier, id string) (*models.Job, error) {
	row := q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return job, err
}

// GetJobByURL loads a job by its listing URL.
func GetJobByURL(ctx context.Context, q Querier, url string) (*models.Job, error) {
	row := q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE url = ?", url)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", url, models.ErrNotFound)
	}
	return job, err
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status   models.JobStatus
	MinScore int
	Limit    int
}

// ListJobs returns jobs ordered by score (unscored last), then newest first.
func ListJobs(ctx context.Context, q Querier, f JobFilter) ([]*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE 1=1"
	var args []interface{}

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.MinScore > 0 {
		query += " AND score >= ?"
		args = append(args, f.MinScore)
	}

	query += " ORDER BY score IS NULL, score DESC, created_at DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// SaveAnalysis stores a model assessment and marks the job analyzed.
func SaveAnalysis(ctx context.Context, q Querier, jobID string, a *models.JobAnalysis, at time.Time) error {
	strengths, err := json.Marshal(nonNil(a.Strengths))
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}
	gaps, err := json.Marshal(nonNil(a.Gaps))
	if err != nil {
		return fmt.Errorf("encode gaps: %w", err)
	}

	res, err := q.ExecContext(ctx, `
        UPDATE jobs SET score = ?, summary = ?, strengths = ?, gaps = ?,
            status = ?, analyzed_at = ?
        WHERE id = ?
    `, a.MatchScore, a.Summary, string(strengths), string(gaps),
		string(models.JobStatusAnalyzed), at.UTC(), jobID)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return nil
}

// SetJobStatus updates the workflow status.
func SetJobStatus(ctx context.Context, q Querier, jobID string, status models.JobStatus) error {
	res, err := q.ExecContext(ctx, "UPDATE jobs SET status = ? WHERE id = ?", string(status), jobID)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job        models.Job
		status     string
		score      sql.NullInt64
		strengths  string
		gaps       string
		analyzedAt sql.NullTime
	)

	err := row.Scan(&job.ID, &job.Company, &job.Title, &job.URL, &job.Description,
		&job.Location, &status, &score, &job.Summary, &strengths, &gaps,
		&analyzedAt, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	if score.Valid {
		v := int(score.Int64)
		job.Score = &v
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		job.AnalyzedAt = &t
	}
	if err := json.Unmarshal([]byte(strengths), &job.Strengths); err != nil {
		return nil, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(gaps), &job.Gaps); err != nil {
		return nil, fmt.Errorf("decode gaps: %w", err)
	}

	return &job, nil
}

// UpsertProfileDocument stores a document, replacing one of the same kind and name.
func UpsertProfileDocument(ctx context.Context, q Querier, doc *models.ProfileDocument) error {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
        INSERT INTO profile (id, kind, name, content, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(kind, name) DO UPDATE SET
            content = excluded.content,
            updated_at = excluded.updated_at
    `, id, string(doc.Kind), doc.Name, doc.Content, updated)
	if err != nil {
		return fmt.Errorf("upsert profile document: %w", err)
	}
	return nil
}

// ListProfileDocuments returns stored documents, optionally of one kind.
func ListProfileDocuments(ctx context.Context, q Querier, kind models.DocumentKind) ([]*models.ProfileDocument, error) {
	query := "SELECT id, kind, name, content, updated_at FROM profile"
	var args []interface{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY kind, name"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	var docs []*models.ProfileDocument
	for rows.Next() {
		var doc models.ProfileDocument
		var k string
		if err := rows.Scan(&doc.ID, &k, &doc.Name, &doc.Content, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		doc.Kind = models.DocumentKind(k)
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile: %w", err)
	}
	return docs, nil
}

// ReplaceTargetRoles swaps the whole target role list.
func ReplaceTargetRoles(ctx context.Context, q Querier, roles []models.TargetRole) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM target_roles"); err != nil {
		return fmt.Errorf("clear target roles: %w", err)
	}

	for _, r := range roles {
		_, err := q.ExecContext(ctx, `
            INSERT INTO target_roles (role_name, priority, rationale) VALUES (?, ?, ?)
            ON CONFLICT(role_name) DO UPDATE SET priority = excluded.priority, rationale = excluded.rationale
        `, r.RoleName, r.Priority, r.Rationale)
		if err != nil {
			return fmt.Errorf("insert target role %s: %w", r.RoleName, err)
		}
	}
	return nil
}

// ListTargetRoles returns roles by priority, 1 first.
func ListTargetRoles(ctx context.Context, q Querier) ([]models.TargetRole, error) {
	rows, err := q.QueryContext(ctx, "SELECT role_name, priority, rationale FROM target_roles ORDER BY priority, role_name")
	if err != nil {
		return nil, fmt.Errorf("query target roles: %w", err)
	}
	defer rows.Close()

	var roles []models.TargetRole
	for rows.Next() {
		var r models.TargetRole
		if err := rows.Scan(&r.RoleName, &r.Priority, &r.Rationale); err != nil {
			return nil, fmt.Errorf("scan target role: %w", err)
		}
		roles = append(roles, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target roles: %w", err)
	}
	return roles, nil
}

// InsertDocument stores a generated document.
func InsertDocument(ctx context.Context, q Querier, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
        INSERT INTO documents (id, job_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?)
    `, doc.ID, doc.JobID, doc.Kind, doc.Content, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ListDocuments returns documents generated for a job, newest first.
func ListDocuments(ctx context.Context, q Querier, jobID string) ([]*models.Document, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT id, job_id, kind, content, created_at FROM documents
        WHERE job_id = ? ORDER BY created_at DESC
    `, jobID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.JobID, &d.Kind, &d.Content, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// InsertStrategy records a published strategy summary.
func InsertStrategy(ctx context.Context, q Querier, s *models.Strategy) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
        INSERT INTO strategies (id, summary, object_key, created_at) VALUES (?, ?, ?, ?)
    `, s.ID, s.Summary, s.ObjectKey, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

// ListStrategies returns recorded strategies, newest first.
func ListStrategies(ctx context.Context, q Querier, limit int) ([]*models.Strategy, error) {
	query := "SELECT id, summary, object_key, created_at FROM strategies ORDER BY created_at DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var out []*models.Strategy
	for rows.Next() {
		var s models.Strategy
		if err := rows.Scan(&s.ID, &s.Summary, &s.ObjectKey, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		out = append(out, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
