package storage_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/storage"
)

type storeFactory func(t *testing.T) storage.ObjectStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) storage.ObjectStore {
			return storage.NewMemoryStore()
		},
		"local": func(t *testing.T) storage.ObjectStore {
			store, err := storage.NewLocalStore(t.TempDir(), events.Discard())
			require.NoError(t, err)
			return store
		},
		"s3": func(t *testing.T) storage.ObjectStore {
			return storage.NewS3Store(newFakeS3(), "bucket", "team", events.Discard())
		},
		"redis": func(t *testing.T) storage.ObjectStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return storage.NewRedisStore(client, "team", events.Discard())
		},
	}
}

func TestObjectStoreContract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("get missing", func(t *testing.T) {
				store := factory(t)
				_, err := store.Get(context.Background(), "jobhunt.db")
				assert.ErrorIs(t, err, storage.ErrObjectNotFound)

				_, err = store.Stat(context.Background(), "jobhunt.db")
				assert.ErrorIs(t, err, storage.ErrObjectNotFound)
			})

			t.Run("put and get", func(t *testing.T) {
				ctx := context.Background()
				store := factory(t)

				attrs, err := store.Put(ctx, "jobhunt.db", []byte("v1"))
				require.NoError(t, err)
				assert.Equal(t, "jobhunt.db", attrs.Key)
				assert.Equal(t, int64(2), attrs.Size)
				assert.NotEmpty(t, attrs.Version)
				assert.False(t, attrs.Updated.IsZero())

				obj, err := store.Get(ctx, "jobhunt.db")
				require.NoError(t, err)
				assert.Equal(t, []byte("v1"), obj.Data)
				assert.Equal(t, attrs.Version, obj.Version)

				attrs2, err := store.Put(ctx, "jobhunt.db", []byte("v2"))
				require.NoError(t, err)
				assert.NotEqual(t, attrs.Version, attrs2.Version)

				stat, err := store.Stat(ctx, "jobhunt.db")
				require.NoError(t, err)
				assert.Equal(t, attrs2.Version, stat.Version)
			})

			t.Run("put if absent", func(t *testing.T) {
				ctx := context.Background()
				store := factory(t)

				_, err := store.PutIfAbsent(ctx, "locks/db.lock", []byte("first"))
				require.NoError(t, err)

				_, err = store.PutIfAbsent(ctx, "locks/db.lock", []byte("second"))
				assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

				obj, err := store.Get(ctx, "locks/db.lock")
				require.NoError(t, err)
				assert.Equal(t, []byte("first"), obj.Data)
			})

			t.Run("concurrent put if absent has one winner", func(t *testing.T) {
				ctx := context.Background()
				store := factory(t)

				var wins int32
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(n int) {
						defer wg.Done()
						_, err := store.PutIfAbsent(ctx, "locks/db.lock", []byte(fmt.Sprintf("holder-%d", n)))
						if err == nil {
							atomic.AddInt32(&wins, 1)
						} else if !errors.Is(err, storage.ErrPreconditionFailed) {
							t.Errorf("unexpected error: %v", err)
						}
					}(i)
				}
				wg.Wait()

				assert.Equal(t, int32(1), wins)
			})

			t.Run("delete", func(t *testing.T) {
				ctx := context.Background()
				store := factory(t)

				// absent is not an error, with or without a version
				require.NoError(t, store.Delete(ctx, "nothing", ""))
				require.NoError(t, store.Delete(ctx, "nothing", "123"))

				first, err := store.Put(ctx, "locks/db.lock", []byte("a"))
				require.NoError(t, err)
				second, err := store.Put(ctx, "locks/db.lock", []byte("b"))
				require.NoError(t, err)

				err = store.Delete(ctx, "locks/db.lock", first.Version)
				assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

				require.NoError(t, store.Delete(ctx, "locks/db.lock", second.Version))
				_, err = store.Get(ctx, "locks/db.lock")
				assert.ErrorIs(t, err, storage.ErrObjectNotFound)

				_, err = store.Put(ctx, "x", []byte("1"))
				require.NoError(t, err)
				require.NoError(t, store.Delete(ctx, "x", ""))
				require.NoError(t, store.Delete(ctx, "x", ""))
			})

			t.Run("list by prefix", func(t *testing.T) {
				ctx := context.Background()
				store := factory(t)

				for _, key := range []string{"strategies/2024-01.md", "strategies/2024-02.md", "jobhunt.db"} {
					_, err := store.Put(ctx, key, []byte(key))
					require.NoError(t, err)
				}

				list, err := store.List(ctx, "strategies/")
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, "strategies/2024-01.md", list[0].Key)
				assert.Equal(t, "strategies/2024-02.md", list[1].Key)
				assert.Equal(t, int64(len("strategies/2024-01.md")), list[0].Size)

				all, err := store.List(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, 3)
			})
		})
	}
}

// hashTag returns the part of a key Redis Cluster hashes on.
func hashTag(key string) string {
	if open := strings.IndexByte(key, '{'); open >= 0 {
		if end := strings.IndexByte(key[open+1:], '}'); end > 0 {
			return key[open+1 : open+1+end]
		}
	}
	return key
}

func TestRedisStoreKeysShareHashSlot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := storage.NewRedisStore(client, "team", events.Discard())

	_, err := store.Put(ctx, "jobhunt.db", []byte("db"))
	require.NoError(t, err)
	_, err = store.PutIfAbsent(ctx, "locks/jobhunt.db.lock", []byte("{}"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "strategies/20240501T093000Z.md", []byte("# plan"))
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 4, "three objects plus the version counter")
	for _, k := range keys {
		assert.Equal(t, "jobhunt", hashTag(k), k)
	}

	list, err := store.List(ctx, "strategies/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "strategies/20240501T093000Z.md", list[0].Key)
}

func TestLocalStorePathSanitization(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), events.Discard())
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"normal key", "strategies/2024.md", false},
		{"dot segments", "strategies/./2024.md", false},
		{"leading slash", "/jobhunt.db", false},
		{"parent traversal", "../etc/passwd", true},
		{"embedded traversal", "a/../../etc/passwd", true},
		{"null bytes", "job\x00.db", true},
		{"empty", "", true},
		{"temp name", "dir/.jobhunt-tmp-123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(context.Background(), tt.key, []byte("x"))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid path")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryStoreCountsCalls(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, _ = store.Put(ctx, "a", []byte("1"))
	_, _ = store.Get(ctx, "a")
	_, _ = store.Get(ctx, "b")

	assert.Equal(t, 1, store.Calls("put"))
	assert.Equal(t, 2, store.Calls("get"))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storage.NewMemoryStore()
	_, err := store.Put(ctx, "a", []byte("1"))
	assert.ErrorIs(t, err, context.Canceled)
}
