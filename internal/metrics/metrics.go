// Package metrics exposes Prometheus collectors for the lock, the synced
// database and the structured responder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheMichaelB/jobhunt/internal/state"
)

// Metrics implements lock.Observer, state.SyncObserver and llm.Observer.
type Metrics struct {
	LockAcquireTotal *prometheus.CounterVec // result=acquired|busy|reclaimed|error
	LockWaitSeconds  prometheus.Histogram
	LLMAttemptsTotal *prometheus.CounterVec // outcome=ok|empty|model|repair|schema
	SyncBytesTotal   *prometheus.CounterVec // direction=up|down
	SessionsTotal    *prometheus.CounterVec // result=committed|rolled_back
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LockAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhunt_lock_acquire_total",
				Help: "Lock acquisition attempts by result",
			},
			[]string{"result"},
		),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobhunt_lock_wait_seconds",
			Help:    "Time spent waiting for the lock",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~80s
		}),
		LLMAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhunt_llm_attempts_total",
				Help: "Structured response attempts by outcome",
			},
			[]string{"outcome"},
		),
		SyncBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhunt_sync_bytes_total",
				Help: "Database bytes transferred by direction",
			},
			[]string{"direction"},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobhunt_sessions_total",
				Help: "Database sessions by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.LockAcquireTotal,
		m.LockWaitSeconds,
		m.LLMAttemptsTotal,
		m.SyncBytesTotal,
		m.SessionsTotal,
	)

	return m
}

// ObserveLockAcquire records one Acquire call.
func (m *Metrics) ObserveLockAcquire(result string, wait time.Duration) {
	m.LockAcquireTotal.WithLabelValues(result).Inc()
	m.LockWaitSeconds.Observe(wait.Seconds())
}

// ObserveLLMAttempt records one responder attempt.
func (m *Metrics) ObserveLLMAttempt(outcome string) {
	m.LLMAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSyncBytes records a database transfer.
func (m *Metrics) ObserveSyncBytes(direction string, n int) {
	m.SyncBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// ObservePhase counts terminal session phases; pass it as
// state.Options.OnPhase.
func (m *Metrics) ObservePhase(p state.Phase) {
	switch p {
	case state.PhaseCommitted:
		m.SessionsTotal.WithLabelValues("committed").Inc()
	case state.PhaseRolledBack:
		m.SessionsTotal.WithLabelValues("rolled_back").Inc()
	}
}
