package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/scheduler"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

func TestAddValidation(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())

	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.Add("@every 1h", scheduler.Task{Run: noop}))
	assert.Error(t, s.Add("not a schedule", scheduler.Task{Name: "x", Run: noop}))
	require.NoError(t, s.Add("@every 1h", scheduler.Task{Name: "x", Run: noop}))
	assert.Error(t, s.Add("@every 2h", scheduler.Task{Name: "x", Run: noop}))

	next, ok := s.Next("x")
	assert.True(t, ok)
	assert.True(t, next.IsZero(), "not started yet")
}

func TestRunNowOutcomes(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())

	var next error
	var runIDs []string

	require.NoError(t, s.Add("@every 1h", scheduler.Task{
		Name: "analyze",
		Run: func(ctx context.Context) error {
			runIDs = append(runIDs, events.GetRunID(ctx))
			return next
		},
	}))

	assert.True(t, s.RunNow("analyze"))

	next = &models.LockError{Key: "k", Holder: "cli", Err: models.ErrLocked}
	assert.True(t, s.RunNow("analyze"))

	next = errors.New("model down")
	assert.True(t, s.RunNow("analyze"))

	st, ok := s.Status("analyze")
	require.True(t, ok)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, "model down", st.LastErr)
	assert.False(t, st.Running)

	require.Len(t, runIDs, 3)
	assert.NotEmpty(t, runIDs[0])
	assert.NotEqual(t, runIDs[0], runIDs[1])

	assert.False(t, s.RunNow("unknown"))
}

func TestSkipsOverlappingRun(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	require.NoError(t, s.Add("@every 1h", scheduler.Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-release
			}
			return nil
		},
	}))

	done := make(chan bool)
	go func() { done <- s.RunNow("slow") }()
	<-started

	assert.False(t, s.RunNow("slow"))
	st, _ := s.Status("slow")
	assert.True(t, st.Running)

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPanicIsAFailure(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())
	require.NoError(t, s.Add("@every 1h", scheduler.Task{
		Name: "boom",
		Run:  func(ctx context.Context) error { panic("bad") },
	}))

	assert.True(t, s.RunNow("boom"))
	st, _ := s.Status("boom")
	assert.Equal(t, 1, st.Failures)
	assert.Contains(t, st.LastErr, "panicked")
}

func TestCronFires(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())

	var calls int32
	require.NoError(t, s.Add("* * * * * *", scheduler.Task{
		Name: "tick",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}))

	s.Start()
	testutil.WaitForCondition(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, 3*time.Second, "cron entry never fired")
	s.Stop(time.Second)

	assert.False(t, s.RunNow("tick"), "no runs after stop")
}

func TestStopCancelsLongRuns(t *testing.T) {
	s := scheduler.New(testutil.NewTestLogger())

	started := make(chan struct{})
	require.NoError(t, s.Add("@every 1h", scheduler.Task{
		Name: "stuck",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	go s.RunNow("stuck")
	<-started

	s.Stop(50 * time.Millisecond)

	st, _ := s.Status("stuck")
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.Failures)
}

func TestSteps(t *testing.T) {
	var order []string
	step := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}

	err := scheduler.Steps(step("analyze", nil), step("publish", models.ErrLocked), step("never", nil))(context.Background())
	assert.ErrorIs(t, err, models.ErrLocked)
	assert.Equal(t, []string{"analyze", "publish"}, order)
}
