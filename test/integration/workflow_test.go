//go:build integration
// +build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/state"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

const (
	workers       = 4
	jobsPerWorker = 5
)

// process is one independent client: its own store handle, lock and
// scratch copy, sharing only the backend.
func process(t *testing.T, remote storage.ObjectStore, name string) *state.SyncedStore {
	t.Helper()

	l := lock.New(remote, testutil.LockKey, lock.WithHolder(name))
	return state.NewSyncedStore(remote, l, state.Options{
		ObjectKey:     testutil.DBKey,
		LocalPath:     filepath.Join(t.TempDir(), name, "jobhunt.db"),
		LockTimeout:   30 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		Logger:        testutil.NewTestLogger(),
	})
}

func runContention(t *testing.T, open func(t *testing.T) storage.ObjectStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, workers*jobsPerWorker)

	for w := 0; w < workers; w++ {
		s := process(t, open(t), fmt.Sprintf("worker-%d", w))

		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < jobsPerWorker; i++ {
				job := testutil.SampleJob(fmt.Sprintf("w%d-%d", w, i))
				errs <- s.Session(ctx, func(ctx context.Context, tx *sql.Tx) error {
					_, err := state.UpsertJob(ctx, tx, job)
					return err
				})
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	reader := process(t, open(t), "reader")
	var count int
	err := reader.View(ctx, func(ctx context.Context, tx *sql.Tx) error {
		list, err := state.ListJobs(ctx, tx, state.JobFilter{})
		count = len(list)
		return err
	})
	require.NoError(t, err)

	// Every committed write survives: no session overwrote another.
	assert.Equal(t, workers*jobsPerWorker, count)

	_, err = open(t).Stat(ctx, testutil.LockKey)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound, "lock marker left behind")
}

func TestConcurrentSessionsLocalBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	runContention(t, func(t *testing.T) storage.ObjectStore {
		s, err := storage.NewLocalStore(dir, testutil.NewTestLogger())
		require.NoError(t, err)
		return s
	})
}

func TestConcurrentSessionsRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mr := miniredis.RunT(t)
	runContention(t, func(t *testing.T) storage.ObjectStore {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return storage.NewRedisStore(client, "it", testutil.NewTestLogger())
	})
}
