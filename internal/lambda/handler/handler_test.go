package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/client"
	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/lambda/handler"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

func newHandler(t *testing.T, remote *storage.MemoryStore, pub *testutil.MockPublisher) (*handler.Handler, *client.Client) {
	t.Helper()

	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := testutil.TestConfigWithDir(t.TempDir())
	c, err := client.New(ctx, cfg, testutil.NewTestLogger(),
		client.WithStore(remote),
		client.WithModel(testutil.NewScriptedModel(testutil.AnalysisJSON)),
		client.WithPublisher(pub),
		client.WithHolder("lambda-test"))
	require.NoError(t, err)

	lambdaCfg := &config.LambdaConfig{TimeoutBuffer: time.Second, DefaultAction: handler.ActionAnalyze}
	return handler.New(c, lambdaCfg, testutil.NewTestLogger()), c
}

func TestProcessEventUnknownAction(t *testing.T) {
	h, _ := newHandler(t, storage.NewMemoryStore(), &testutil.MockPublisher{})

	resp, err := h.ProcessEvent(context.Background(), handler.Event{Action: "sync"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action: sync", resp.Message)
}

func TestProcessEventAnalyzeIsDefault(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h, c := newHandler(t, storage.NewMemoryStore(), &testutil.MockPublisher{})
	_, err := c.Jobs.Add(ctx, testutil.SampleJob("1"))
	require.NoError(t, err)

	resp, err := h.ProcessEvent(ctx, handler.Event{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Report)
	assert.Len(t, resp.Report.Analyzed, 1)
	assert.NotEmpty(t, resp.Metadata["run_id"])
}

func TestProcessEventPublish(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pub := &testutil.MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	h, _ := newHandler(t, storage.NewMemoryStore(), pub)

	resp, err := h.ProcessEvent(ctx, handler.Event{Action: handler.ActionPublish, Top: 5})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Strategy)
	assert.Contains(t, resp.Message, "strategies/")
	pub.AssertExpectations(t)
}

func TestProcessEventBusy(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	remote := storage.NewMemoryStore()
	h, _ := newHandler(t, remote, &testutil.MockPublisher{})

	release := testutil.HoldLock(t, remote, "laptop")
	defer release()

	resp, err := h.ProcessEvent(ctx, handler.Event{Action: handler.ActionAnalyze})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.True(t, resp.Busy)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "laptop")

	resp, err = h.ProcessEvent(ctx, handler.Event{Action: handler.ActionUnlockStatus})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Lock)
	assert.True(t, resp.Lock.Locked)
	assert.Contains(t, resp.Message, "Lock held by laptop")
}

func TestProcessEventUnlockStatusFree(t *testing.T) {
	h, _ := newHandler(t, storage.NewMemoryStore(), &testutil.MockPublisher{})

	resp, err := h.ProcessEvent(context.Background(), handler.Event{Action: handler.ActionUnlockStatus})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Lock is free", resp.Message)
}
