package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

var sizes = []int{
	1024,    // 1KB
	102400,  // 100KB
	1048576, // 1MB
}

func stores(b *testing.B) map[string]storage.ObjectStore {
	local, err := storage.NewLocalStore(b.TempDir(), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}
	return map[string]storage.ObjectStore{
		"memory": storage.NewMemoryStore(),
		"local":  local,
	}
}

func BenchmarkObjectStorePut(b *testing.B) {
	ctx := context.Background()

	for name, store := range stores(b) {
		for _, size := range sizes {
			b.Run(fmt.Sprintf("%s/%dKB", name, size/1024), func(b *testing.B) {
				data := make([]byte, size)
				_, _ = rand.Read(data)

				b.ResetTimer()
				b.ReportAllocs()
				b.SetBytes(int64(size))

				for i := 0; i < b.N; i++ {
					if _, err := store.Put(ctx, "bench/db", data); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkObjectStoreGet(b *testing.B) {
	ctx := context.Background()

	for name, store := range stores(b) {
		for _, size := range sizes {
			b.Run(fmt.Sprintf("%s/%dKB", name, size/1024), func(b *testing.B) {
				data := make([]byte, size)
				_, _ = rand.Read(data)
				if _, err := store.Put(ctx, "bench/read", data); err != nil {
					b.Fatal(err)
				}

				b.ResetTimer()
				b.ReportAllocs()
				b.SetBytes(int64(size))

				for i := 0; i < b.N; i++ {
					if _, err := store.Get(ctx, "bench/read"); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// Create-if-absent followed by delete is one uncontended lock cycle.
func BenchmarkLockMarkerCycle(b *testing.B) {
	ctx := context.Background()
	marker := []byte(`{"holder":"bench","acquired_at":"2024-05-01T12:00:00Z","lease_seconds":600}`)

	for name, store := range stores(b) {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := store.PutIfAbsent(ctx, "locks/bench.lock", marker); err != nil {
					b.Fatal(err)
				}
				if err := store.Delete(ctx, "locks/bench.lock", ""); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
