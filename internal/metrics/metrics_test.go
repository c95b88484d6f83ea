package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/metrics"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

var (
	_ lock.Observer      = (*metrics.Metrics)(nil)
	_ state.SyncObserver = (*metrics.Metrics)(nil)
	_ llm.Observer       = (*metrics.Metrics)(nil)
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveLockAcquire(lock.ResultAcquired, 0)
	m.ObserveLockAcquire(lock.ResultBusy, 3*time.Second)
	m.ObserveLLMAttempt(llm.OutcomeSchema)
	m.ObserveLLMAttempt(llm.OutcomeOK)
	m.ObserveSyncBytes("up", 4096)
	m.ObserveSyncBytes("up", 1024)
	m.ObservePhase(state.PhaseCommitted)
	m.ObservePhase(state.PhaseInTransaction)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockAcquireTotal.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMAttemptsTotal.WithLabelValues("schema")))
	assert.Equal(t, 5120.0, testutil.ToFloat64(m.SyncBytesTotal.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("committed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("rolled_back")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "jobhunt_lock_wait_seconds")
}

func TestMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}
