package benchmark

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/TheMichaelB/jobhunt/internal/state"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

func newStore(b *testing.B) *state.SyncedStore {
	return testutil.NewSyncedStore(b, storage.NewMemoryStore(), "bench")
}

// seed fills the shared database with n jobs so transfers have weight.
func seed(b *testing.B, s *state.SyncedStore, n int) {
	b.Helper()

	err := s.Session(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		for i := 0; i < n; i++ {
			if _, err := state.UpsertJob(ctx, tx, testutil.SampleJob(fmt.Sprintf("seed-%d", i))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
}

func BenchmarkSessionWrite(b *testing.B) {
	for _, rows := range []int{0, 100, 1000} {
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			s := newStore(b)
			seed(b, s, rows)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				err := s.Session(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
					_, err := state.UpsertJob(ctx, tx, testutil.SampleJob(fmt.Sprintf("bench-%d", i)))
					return err
				})
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSessionRead(b *testing.B) {
	s := newStore(b)
	seed(b, s, 200)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		err := s.View(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
			_, err := state.ListJobs(ctx, tx, state.JobFilter{Limit: 20})
			return err
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
