package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/jobhunt/internal/llm"
)

// Reply is one scripted model response.
type Reply struct {
	Text string
	Err  error
}

// ScriptedModel replays replies in order and records every prompt. Once
// the script runs out the last reply repeats.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
	opts    []llm.GenerateOptions
}

// NewScriptedModel creates a model answering with texts in order.
func NewScriptedModel(texts ...string) *ScriptedModel {
	m := &ScriptedModel{}
	for _, t := range texts {
		m.replies = append(m.replies, Reply{Text: t})
	}
	return m
}

// Then appends a reply.
func (m *ScriptedModel) Then(r Reply) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, r)
	return m
}

// Generate implements llm.Model.
func (m *ScriptedModel) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)

	if len(m.replies) == 0 {
		return "", nil
	}
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	r := m.replies[idx]
	return r.Text, r.Err
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received.
func (m *ScriptedModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Options returns the options of every call.
func (m *ScriptedModel) Options() []llm.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.GenerateOptions(nil), m.opts...)
}

// MockModel is a testify mock of llm.Model.
type MockModel struct {
	mock.Mock
}

// NewMockModel creates a new mock model.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// Generate implements llm.Model.
func (m *MockModel) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

// MockPublisher is a testify mock of a notification sink.
type MockPublisher struct {
	mock.Mock
}

// Publish records the call.
func (m *MockPublisher) Publish(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}
