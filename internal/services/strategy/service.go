// Package strategy composes and publishes the job search strategy summary.
package strategy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/state"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/internal/transport"
)

const (
	// KeyPrefix is where summaries are uploaded.
	KeyPrefix = "strategies/"

	// DefaultTopJobs is how many scored jobs a summary lists.
	DefaultTopJobs = 10

	keyTimeFormat = "20060102T150405Z"
)

// ErrNotifyFailed marks a summary that was stored but not delivered.
var ErrNotifyFailed = errors.New("strategy stored but notification failed")

// Service publishes strategy summaries. The publisher is optional.
type Service struct {
	store     *state.SyncedStore
	objects   storage.ObjectStore
	publisher transport.Publisher
	logger    *events.Logger
	now       func() time.Time
}

// NewService creates a strategy service. objects is the store that also
// holds the database; publisher may be nil.
func NewService(store *state.SyncedStore, objects storage.ObjectStore, publisher transport.Publisher, logger *events.Logger) *Service {
	return &Service{
		store:     store,
		objects:   objects,
		publisher: publisher,
		logger:    logger.WithField("service", "strategy"),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Publish composes a summary of target roles and the best scored jobs,
// uploads it under KeyPrefix and records it, all inside one session. The
// summary is then posted to the publisher when one is configured; a
// delivery failure returns the stored strategy with ErrNotifyFailed.
func (s *Service) Publish(ctx context.Context, topJobs int) (*models.Strategy, error) {
	if topJobs <= 0 {
		topJobs = DefaultTopJobs
	}

	at := s.now().UTC()
	st := &models.Strategy{
		ObjectKey: KeyPrefix + at.Format(keyTimeFormat) + ".md",
		CreatedAt: at,
	}

	err := s.store.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
		roles, err := state.ListTargetRoles(ctx, tx)
		if err != nil {
			return err
		}
		jobs, err := state.ListJobs(ctx, tx, state.JobFilter{Status: models.JobStatusAnalyzed, Limit: topJobs})
		if err != nil {
			return err
		}

		st.Summary = Compose(roles, jobs, at)
		if _, err := s.objects.Put(ctx, st.ObjectKey, []byte(st.Summary)); err != nil {
			return fmt.Errorf("upload summary: %w", err)
		}
		return state.InsertStrategy(ctx, tx, st)
	})
	if err != nil {
		return nil, fmt.Errorf("publish strategy: %w", err)
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"strategy_id": st.ID,
		"object_key":  st.ObjectKey,
	})
	logger.Info("Strategy published")

	if s.publisher == nil {
		return st, nil
	}
	if err := s.publisher.Publish(ctx, st.Summary); err != nil {
		logger.WithError(err).Warn("Strategy notification failed")
		return st, fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	return st, nil
}

// Latest lists uploaded summaries, newest first, at most n (all when n <= 0).
func (s *Service) Latest(ctx context.Context, n int) ([]storage.Attrs, error) {
	list, err := s.objects.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Key > list[j].Key })
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list, nil
}

// Read downloads one uploaded summary.
func (s *Service) Read(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		key = KeyPrefix + key
	}
	obj, err := s.objects.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(obj.Data), nil
}

// History returns recorded strategies, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*models.Strategy, error) {
	var out []*models.Strategy
	err := s.store.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, err = state.ListStrategies(ctx, tx, limit)
		return err
	})
	return out, err
}

// Compose renders the plain-text summary.
func Compose(roles []models.TargetRole, jobs []*models.Job, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Job search strategy (%s)\n\n", at.UTC().Format("2006-01-02"))

	b.WriteString("## Target roles\n")
	if len(roles) == 0 {
		b.WriteString("No target roles yet.\n")
	}
	for _, r := range roles {
		fmt.Fprintf(&b, "%d. %s", r.Priority, r.RoleName)
		if r.Rationale != "" {
			fmt.Fprintf(&b, ": %s", r.Rationale)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Top matches\n")
	if len(jobs) == 0 {
		b.WriteString("No analyzed jobs yet.\n")
	}
	for _, j := range jobs {
		score := "-"
		if j.Score != nil {
			score = fmt.Sprintf("%d", *j.Score)
		}
		fmt.Fprintf(&b, "- [%s] %s at %s <%s>", score, j.Title, j.Company, j.URL)
		if j.Summary != "" {
			fmt.Fprintf(&b, ": %s", j.Summary)
		}
		b.WriteString("\n")
	}

	return b.String()
}
