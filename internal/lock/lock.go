// Package lock implements an advisory mutual-exclusion lock on top of an
// object store. The lock is a marker object created with a conditional
// write; markers older than their lease are treated as abandoned.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/storage"
)

// DefaultLease is how long a marker may exist before waiters reclaim it.
const DefaultLease = 10 * time.Minute

// Bounds back-to-back retries after a reclaim before falling back to polling.
const maxImmediateRetries = 5

// Marker is the JSON body of the lock object.
type Marker struct {
	Holder       string    `json:"holder"`
	AcquiredAt   time.Time `json:"acquired_at"`
	LeaseSeconds int64     `json:"lease_seconds"`
}

// Lease returns the lease the holder declared.
func (m Marker) Lease() time.Duration {
	return time.Duration(m.LeaseSeconds) * time.Second
}

// Observer receives acquisition outcomes.
type Observer interface {
	ObserveLockAcquire(result string, wait time.Duration)
}

// Acquire results reported to the Observer.
const (
	ResultAcquired  = "acquired"
	ResultBusy      = "busy"
	ResultReclaimed = "reclaimed"
	ResultError     = "error"
)

// RemoteFileLock guards a single key in an ObjectStore.
type RemoteFileLock struct {
	store    storage.ObjectStore
	key      string
	lease    time.Duration
	holder   string
	logger   *events.Logger
	observer Observer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastSeen *Marker
}

// Option configures a RemoteFileLock.
type Option func(*RemoteFileLock)

// WithLease overrides DefaultLease. Markers record whole seconds, so a
// lease is rounded up to the next second.
func WithLease(d time.Duration) Option {
	return func(l *RemoteFileLock) {
		if d > 0 {
			l.lease = (d + time.Second - 1).Truncate(time.Second)
		}
	}
}

// WithHolder sets the holder id written into the marker.
func WithHolder(id string) Option {
	return func(l *RemoteFileLock) {
		if id != "" {
			l.holder = id
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *events.Logger) Option {
	return func(l *RemoteFileLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(l *RemoteFileLock) {
		l.observer = o
	}
}

// WithClock replaces time.Now and the poll sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *RemoteFileLock) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New creates a lock on key.
func New(store storage.ObjectStore, key string, opts ...Option) *RemoteFileLock {
	l := &RemoteFileLock{
		store:  store,
		key:    key,
		lease:  DefaultLease,
		holder: NewHolderID(),
		logger: events.Discard(),
		now:    time.Now,
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.logger = l.logger.WithFields(map[string]interface{}{
		"component": "lock",
		"lock_key":  key,
		"holder":    l.holder,
	})

	return l
}

// NewHolderID builds a process-unique holder identifier.
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Key returns the marker key.
func (l *RemoteFileLock) Key() string { return l.key }

// Holder returns this lock's holder id.
func (l *RemoteFileLock) Holder() string { return l.holder }

// Lease returns the configured lease.
func (l *RemoteFileLock) Lease() time.Duration { return l.lease }

// Acquire tries to create the marker until timeout elapses. A zero timeout
// makes exactly one attempt, plus any immediate retry after reclaiming an
// abandoned marker. Not acquiring is reported as (false, nil); errors are
// reserved for store failures and malformed markers.
func (l *RemoteFileLock) Acquire(ctx context.Context, timeout, retryInterval time.Duration) (bool, error) {
	start := l.now()
	deadline := start.Add(timeout)
	reclaimed := false
	immediate := 0

	for {
		outcome, err := l.tryOnce(ctx)
		if err != nil {
			l.observe(ResultError, start)
			return false, err
		}

		switch outcome {
		case attemptAcquired:
			result := ResultAcquired
			if reclaimed {
				result = ResultReclaimed
			}
			l.observe(result, start)
			l.logger.WithFields(map[string]interface{}{
				"wait":   l.now().Sub(start).String(),
				"result": result,
			}).Debug("Lock acquired")
			return true, nil

		case attemptReclaimed, attemptVanished:
			if outcome == attemptReclaimed {
				reclaimed = true
			}
			if immediate < maxImmediateRetries {
				immediate++
				continue
			}
		}
		immediate = 0

		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			l.observe(ResultBusy, start)
			l.logger.WithField("timeout", timeout.String()).Debug("Lock busy")
			return false, nil
		}

		wait := retryInterval
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		if err := l.sleep(ctx, wait); err != nil {
			l.observe(ResultError, start)
			return false, err
		}
	}
}

// TryLock is Acquire with the busy outcome turned into a *models.LockError
// wrapping models.ErrLocked.
func (l *RemoteFileLock) TryLock(ctx context.Context, timeout, retryInterval time.Duration) error {
	ok, err := l.Acquire(ctx, timeout, retryInterval)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	lockErr := &models.LockError{Key: l.key, Err: models.ErrLocked}
	if m := l.LastSeen(); m != nil {
		lockErr.Holder = m.Holder
		lockErr.Since = m.AcquiredAt
	}
	return lockErr
}

type attempt int

const (
	attemptAcquired attempt = iota
	attemptHeld
	attemptVanished  // marker disappeared between create and read
	attemptReclaimed // abandoned marker deleted
)

func (l *RemoteFileLock) tryOnce(ctx context.Context) (attempt, error) {
	if err := ctx.Err(); err != nil {
		return attemptHeld, err
	}

	body, err := json.Marshal(Marker{
		Holder:       l.holder,
		AcquiredAt:   l.now().UTC(),
		LeaseSeconds: int64(l.lease / time.Second),
	})
	if err != nil {
		return attemptHeld, fmt.Errorf("encode lock marker: %w", err)
	}

	_, err = l.store.PutIfAbsent(ctx, l.key, body)
	if err == nil {
		return attemptAcquired, nil
	}
	if !errors.Is(err, storage.ErrPreconditionFailed) {
		return attemptHeld, fmt.Errorf("create lock marker: %w", err)
	}

	obj, err := l.store.Get(ctx, l.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return attemptVanished, nil
	}
	if err != nil {
		return attemptHeld, fmt.Errorf("read lock marker: %w", err)
	}

	marker, err := decodeMarker(obj.Data)
	if err != nil {
		return attemptHeld, &models.LockError{Key: l.key, Err: err}
	}
	l.setLastSeen(marker)

	age := l.age(marker, obj.Attrs)
	if age <= l.leaseOf(marker) {
		return attemptHeld, nil
	}

	l.logger.WithFields(map[string]interface{}{
		"stale_holder": marker.Holder,
		"age":          age.Round(time.Second).String(),
	}).Warn("Reclaiming abandoned lock")

	// Guard on the observed version so a fresh marker written by another
	// reclaimer in the meantime survives.
	err = l.store.Delete(ctx, l.key, obj.Version)
	if err != nil && !errors.Is(err, storage.ErrPreconditionFailed) {
		return attemptHeld, fmt.Errorf("delete abandoned lock marker: %w", err)
	}

	return attemptReclaimed, nil
}

// leaseOf is the lease the marker's writer declared, falling back to our
// own for markers that carry none.
func (l *RemoteFileLock) leaseOf(m *Marker) time.Duration {
	if d := m.Lease(); d > 0 {
		return d
	}
	return l.lease
}

// age prefers the store's modification time over the holder's clock.
func (l *RemoteFileLock) age(m *Marker, attrs storage.Attrs) time.Duration {
	since := attrs.Updated
	if since.IsZero() {
		since = m.AcquiredAt
	}
	return l.now().Sub(since)
}

// Release deletes the marker unconditionally. Releasing an absent lock is
// not an error.
func (l *RemoteFileLock) Release(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key, ""); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.logger.Debug("Lock released")
	return nil
}

// ForceUnlock deletes the marker regardless of holder or age and reports
// whether one existed. Meant for operator use only.
func (l *RemoteFileLock) ForceUnlock(ctx context.Context) (bool, error) {
	_, err := l.store.Stat(ctx, l.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock marker: %w", err)
	}

	if err := l.store.Delete(ctx, l.key, ""); err != nil {
		return false, fmt.Errorf("force unlock: %w", err)
	}

	l.logger.Warn("Lock force-unlocked")
	return true, nil
}

// Status describes the current marker, if any.
type Status struct {
	Locked bool          `json:"locked"`
	Key    string        `json:"key"`
	Marker *Marker       `json:"marker,omitempty"`
	Age    time.Duration `json:"age,omitempty"`
	Stale  bool          `json:"stale"`
}

// Status reads the marker without modifying it.
func (l *RemoteFileLock) Status(ctx context.Context) (*Status, error) {
	obj, err := l.store.Get(ctx, l.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return &Status{Key: l.key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock marker: %w", err)
	}

	marker, err := decodeMarker(obj.Data)
	if err != nil {
		return nil, &models.LockError{Key: l.key, Err: err}
	}

	age := l.age(marker, obj.Attrs)
	return &Status{
		Locked: true,
		Key:    l.key,
		Marker: marker,
		Age:    age,
		Stale:  age > l.leaseOf(marker),
	}, nil
}

// LastSeen returns the most recent foreign marker observed by Acquire.
func (l *RemoteFileLock) LastSeen() *Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

func (l *RemoteFileLock) setLastSeen(m *Marker) {
	l.mu.Lock()
	l.lastSeen = m
	l.mu.Unlock()
}

func (l *RemoteFileLock) observe(result string, start time.Time) {
	if l.observer != nil {
		l.observer.ObserveLockAcquire(result, l.now().Sub(start))
	}
}

func decodeMarker(data []byte) (*Marker, error) {
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedLock, err)
	}
	if m.Holder == "" || m.AcquiredAt.IsZero() {
		return nil, fmt.Errorf("%w: missing holder or acquired_at", models.ErrMalformedLock)
	}
	return &m, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
