package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/state"
	"github.com/TheMichaelB/jobhunt/internal/storage"
)

// Shared keys used by tests that build a synced store.
const (
	DBKey   = "jobhunt.db"
	LockKey = "locks/jobhunt.db.lock"
)

// NewSyncedStore returns a synced store over remote with its own scratch
// directory, as one process named holder would see it.
func NewSyncedStore(t testing.TB, remote storage.ObjectStore, holder string) *state.SyncedStore {
	t.Helper()

	l := lock.New(remote, LockKey, lock.WithHolder(holder), lock.WithLogger(NewTestLogger()))
	return state.NewSyncedStore(remote, l, state.Options{
		ObjectKey:     DBKey,
		LocalPath:     filepath.Join(t.TempDir(), holder, "jobhunt.db"),
		LockTimeout:   0,
		RetryInterval: 10 * time.Millisecond,
		Logger:        NewTestLogger(),
	})
}

// HoldLock takes the lock as another process and returns a func that
// releases it.
func HoldLock(t testing.TB, remote storage.ObjectStore, holder string) func() {
	t.Helper()

	ctx, cancel := TestContext()
	defer cancel()

	l := lock.New(remote, LockKey, lock.WithHolder(holder))
	if err := l.TryLock(ctx, 0, 10*time.Millisecond); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	return func() {
		ctx, cancel := TestContext()
		defer cancel()
		_ = l.Release(ctx)
	}
}
