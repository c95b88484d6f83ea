// Package llm turns free-form model output into validated JSON. Syntax
// problems are handled by a text recovery pipeline and a single repair
// call per attempt; structural problems are caught by schema validation
// and retried with a corrective note.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

const (
	DefaultMaxRetries      = 3
	DefaultTemperature     = 0.1
	DefaultMaxOutputTokens = 8192
)

// Attempt outcomes reported to the Observer.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeModel  = "model"
	OutcomeRepair = "repair"
	OutcomeSchema = "schema"
)

// Observer receives one outcome per attempt.
type Observer interface {
	ObserveLLMAttempt(outcome string)
}

// Request is one structured call. A zero Temperature selects
// DefaultTemperature; a zero MaxAttempts uses the responder's budget.
type Request struct {
	Prompt      string
	Schema      *Schema
	Example     interface{}
	Temperature float64
	MaxAttempts int
}

// Result is validated data and the number of attempts it took.
type Result struct {
	Data     interface{}
	Attempts int
}

// Decode converts Data into v via JSON.
func (r *Result) Decode(v interface{}) error {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Options configures a Responder.
type Options struct {
	MaxRetries      int
	MaxOutputTokens int
	CallTimeout     time.Duration
	Logger          *events.Logger
	Observer        Observer
}

// Responder retries a model until it yields JSON matching a schema.
// It holds no per-call state and is safe for concurrent use.
type Responder struct {
	model       Model
	maxRetries  int
	maxTokens   int
	callTimeout time.Duration
	logger      *events.Logger
	observer    Observer
}

// NewResponder creates a responder around model.
func NewResponder(model Model, opts Options) *Responder {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.Logger == nil {
		opts.Logger = events.Discard()
	}

	return &Responder{
		model:       model,
		maxRetries:  opts.MaxRetries,
		maxTokens:   opts.MaxOutputTokens,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger.WithField("component", "responder"),
		observer:    opts.Observer,
	}
}

// Respond returns data matching req.Schema, or an error wrapping
// models.ErrNoStructuredData once the attempt budget is spent. Context
// cancellation ends the loop early with the context error.
func (r *Responder) Respond(ctx context.Context, req Request) (*Result, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxRetries
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	corrective := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger := r.logger.WithField("attempt", attempt)
		prompt := BuildPrompt(req, corrective)

		text, err := r.generate(ctx, prompt, temperature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.fail(logger.WithError(err), OutcomeModel)
			continue
		}

		parsed := Parse(text)
		switch parsed.Status {
		case ParseFailed:
			r.fail(logger, OutcomeEmpty)
			continue

		case ParseNeedsRepair:
			logger.WithError(parsed.Err).Debug("Response did not parse, requesting repair")

			fixed, err := r.generate(ctx, RepairPrompt(text), temperature)
			if err != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err != nil {
				r.fail(logger.WithError(err), OutcomeRepair)
				continue
			}
			parsed = Parse(fixed)
			if parsed.Status != ParseOK {
				r.fail(logger.WithError(parsed.Err), OutcomeRepair)
				continue
			}
		}

		if req.Schema != nil {
			if err := req.Schema.Validate(parsed.Value); err != nil {
				corrective = true
				r.fail(logger.WithError(err), OutcomeSchema)
				continue
			}
		}

		r.observe(OutcomeOK)
		return &Result{Data: parsed.Value, Attempts: attempt}, nil
	}

	r.logger.WithField("attempts", maxAttempts).Warn("No structured data after retries")
	return nil, fmt.Errorf("%w after %d attempts", models.ErrNoStructuredData, maxAttempts)
}

// RespondInto is Respond followed by Result.Decode.
func (r *Responder) RespondInto(ctx context.Context, req Request, v interface{}) (int, error) {
	res, err := r.Respond(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.Attempts, res.Decode(v)
}

func (r *Responder) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	text, err := r.model.Generate(ctx, prompt, GenerateOptions{
		MaxTokens:   r.maxTokens,
		Temperature: temperature,
	})
	return strings.TrimSpace(text), err
}

func (r *Responder) fail(logger *events.Logger, layer string) {
	logger.WithField("layer", layer).Warn("Structured response attempt failed")
	r.observe(layer)
}

func (r *Responder) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveLLMAttempt(outcome)
	}
}
