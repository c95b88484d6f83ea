// Package scheduler runs workflow tasks on cron schedules inside the
// long-running daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

const defaultShutdownTimeout = 30 * time.Second

// Task is a named unit of scheduled work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Steps chains functions into one task body, stopping at the first error.
func Steps(steps ...func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, step := range steps {
			if err := step(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// TaskStatus is a snapshot of a task's history.
type TaskStatus struct {
	Running  bool      `json:"running"`
	Runs     int       `json:"runs"`
	Skipped  int       `json:"skipped"`
	Failures int       `json:"failures"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
}

type entry struct {
	task   Task
	id     cron.EntryID
	status TaskStatus
}

// Scheduler wraps a cron runner. A task never overlaps itself; a run that
// finds the database locked counts as skipped, not failed.
type Scheduler struct {
	cron   *cron.Cron
	logger *events.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// New creates a scheduler. Specs accept an optional seconds field and
// descriptors such as @every 6h.
func New(logger *events.Logger) *Scheduler {
	if logger == nil {
		logger = events.Discard()
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    c,
		logger:  logger.WithField("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Add registers task on spec.
func (s *Scheduler) Add(spec string, task Task) error {
	if task.Name == "" || task.Run == nil {
		return errors.New("task needs a name and a body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[task.Name]; dup {
		return fmt.Errorf("task %s already scheduled", task.Name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.RunNow(task.Name) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", task.Name, err)
	}
	s.entries[task.Name] = &entry{task: task, id: id}

	s.logger.WithFields(map[string]interface{}{
		"task":     task.Name,
		"schedule": spec,
	}).Info("Task scheduled")
	return nil
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.WithField("tasks", n).Info("Scheduler started")
	s.cron.Start()
}

// Stop prevents new runs and waits for active ones. Runs still active
// after timeout have their context canceled.
func (s *Scheduler) Stop(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.WithField("timeout", timeout.String()).Warn("Canceling tasks still running at shutdown")
		s.cancel()
		<-done
	}
	s.cancel()
	s.logger.Info("Scheduler stopped")
}

// RunNow runs the named task synchronously unless it is already running.
// It reports whether the task ran.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok || e.status.Running {
		s.mu.Unlock()
		if ok {
			s.logger.WithField("task", name).Info("Skipping run, previous run still active")
		}
		return false
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	e.status.Running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	runID := uuid.NewString()
	ctx := events.WithRunID(events.WithLogger(s.ctx, s.logger), runID)
	logger := events.FromContext(ctx).WithField("task", name)

	start := time.Now()
	err := s.safeRun(ctx, e.task)

	s.mu.Lock()
	e.status.Running = false
	e.status.LastRun = start
	e.status.LastErr = ""
	switch {
	case err == nil:
		e.status.Runs++
	case errors.Is(err, models.ErrLocked):
		e.status.Skipped++
		e.status.LastErr = err.Error()
	default:
		e.status.Failures++
		e.status.LastErr = err.Error()
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		logger.WithField("duration", time.Since(start).String()).Info("Task completed")
	case errors.Is(err, models.ErrLocked):
		logger.WithError(err).Info("Task skipped, database busy")
	default:
		logger.WithError(err).Error("Task failed")
	}
	return true
}

// Status returns the history of the named task.
func (s *Scheduler) Status(name string) (TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return TaskStatus{}, false
	}
	return e.status, true
}

// Next returns the next fire time of the named task.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

func (s *Scheduler) safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
