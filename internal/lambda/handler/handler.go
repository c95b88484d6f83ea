package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/jobhunt/internal/client"
	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/services/jobs"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
)

// Supported actions.
const (
	ActionAnalyze      = "analyze"
	ActionPublish      = "publish"
	ActionUnlockStatus = "unlock_status"
)

// Event represents the Lambda input event
type Event struct {
	Action string `json:"action"`          // analyze, publish or unlock_status
	Limit  int    `json:"limit,omitempty"` // jobs per analyze run
	Top    int    `json:"top,omitempty"`   // jobs listed in a published summary
}

// Response represents the Lambda response
type Response struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Busy     bool                `json:"busy,omitempty"`
	Report   *jobs.AnalyzeReport `json:"report,omitempty"`
	Strategy *models.Strategy    `json:"strategy,omitempty"`
	Lock     *lock.Status        `json:"lock,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
	Metadata map[string]string   `json:"metadata,omitempty"`
}

// Handler serves scheduled invocations with the shared services.
type Handler struct {
	client *client.Client
	cfg    *config.LambdaConfig
	logger *events.Logger
}

// New creates a handler around an assembled client.
func New(c *client.Client, cfg *config.LambdaConfig, logger *events.Logger) *Handler {
	if cfg == nil {
		cfg = config.LoadLambdaConfig()
	}
	return &Handler{
		client: c,
		cfg:    cfg,
		logger: logger.WithField("component", "lambda"),
	}
}

// ProcessEvent runs one action. Failures are reported in the response;
// the returned error is reserved for malformed invocations.
func (h *Handler) ProcessEvent(ctx context.Context, event Event) (Response, error) {
	start := time.Now()

	if event.Action == "" {
		event.Action = h.cfg.DefaultAction
	}

	// leave time to release the lock before the sandbox is frozen
	if deadline, ok := ctx.Deadline(); ok && h.cfg.TimeoutBuffer > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-h.cfg.TimeoutBuffer))
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = events.WithRunID(events.WithLogger(ctx, h.logger), runID)
	logger := events.FromContext(ctx).WithField("action", event.Action)
	logger.Info("Processing Lambda event")

	var resp Response
	switch event.Action {
	case ActionAnalyze:
		resp = h.handleAnalyze(ctx, event)
	case ActionPublish:
		resp = h.handlePublish(ctx, event)
	case ActionUnlockStatus:
		resp = h.handleUnlockStatus(ctx)
	default:
		return Response{
			Success: false,
			Message: fmt.Sprintf("Unknown action: %s", event.Action),
		}, nil
	}

	if resp.Metadata == nil {
		resp.Metadata = map[string]string{}
	}
	resp.Metadata["run_id"] = runID
	resp.Metadata["execution_time"] = time.Since(start).String()

	logger.WithFields(map[string]interface{}{
		"success": resp.Success,
		"busy":    resp.Busy,
	}).Info("Lambda event processed")
	return resp, nil
}

func (h *Handler) handleAnalyze(ctx context.Context, event Event) Response {
	report, err := h.client.Jobs.AnalyzePending(ctx, event.Limit)
	if err != nil {
		return failure("Analysis failed", err)
	}

	return Response{
		Success: true,
		Message: fmt.Sprintf("Analyzed %d of %d pending jobs", len(report.Analyzed), report.Pending),
		Report:  report,
	}
}

func (h *Handler) handlePublish(ctx context.Context, event Event) Response {
	st, err := h.client.Strategy.Publish(ctx, event.Top)
	if errors.Is(err, strategy.ErrNotifyFailed) {
		return Response{
			Success:  true,
			Message:  "Strategy stored, notification failed",
			Strategy: st,
			Errors:   []string{err.Error()},
		}
	}
	if err != nil {
		return failure("Publish failed", err)
	}

	return Response{
		Success:  true,
		Message:  "Strategy published to " + st.ObjectKey,
		Strategy: st,
	}
}

// handleUnlockStatus only reports; force unlocking stays an operator action.
func (h *Handler) handleUnlockStatus(ctx context.Context) Response {
	st, err := h.client.Lock.Status(ctx)
	if err != nil {
		return failure("Lock status failed", err)
	}

	msg := "Lock is free"
	if st.Locked {
		msg = fmt.Sprintf("Lock held by %s for %s", st.Marker.Holder, st.Age.Round(time.Second))
		if st.Stale {
			msg += " (stale, will be reclaimed)"
		}
	}
	return Response{Success: true, Message: msg, Lock: st}
}

func failure(msg string, err error) Response {
	return Response{
		Success: false,
		Message: msg,
		Busy:    errors.Is(err, models.ErrLocked),
		Errors:  []string{err.Error()},
	}
}
