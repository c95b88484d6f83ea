package storage_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/storage"
)

// fakeS3 emulates the conditional-write behavior of S3 in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeS3Object
	seq     int
	inputs  []string
}

type fakeS3Object struct {
	data     []byte
	etag     string
	modified time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeS3Object)}
}

func preconditionFailed() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ETag:         aws.String(obj.etag),
		LastModified: aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	f.inputs = append(f.inputs, "put:"+key+":"+aws.ToString(in.IfNoneMatch))

	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, ok := f.objects[key]; ok {
			return nil, preconditionFailed()
		}
	}

	f.seq++
	etag := fmt.Sprintf(`"etag-%d"`, f.seq)
	f.objects[key] = fakeS3Object{data: data, etag: etag, modified: time.Now().UTC()}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	obj, ok := f.objects[key]
	if in.IfMatch != nil {
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
		}
		if obj.etag != aws.ToString(in.IfMatch) {
			return nil, preconditionFailed()
		}
	}

	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		obj := f.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			ETag:         aws.String(obj.etag),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3StorePutIfAbsent(t *testing.T) {
	fake := newFakeS3()
	store := storage.NewS3Store(fake, "bucket", "team", events.Discard())
	ctx := context.Background()

	_, err := store.PutIfAbsent(ctx, "locks/db.lock", []byte("a"))
	require.NoError(t, err)

	_, err = store.PutIfAbsent(ctx, "locks/db.lock", []byte("b"))
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

	obj, err := store.Get(ctx, "locks/db.lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), obj.Data)

	assert.Contains(t, fake.inputs, "put:team/locks/db.lock:*")
}

func TestS3StoreDeleteIfMatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewS3Store(newFakeS3(), "bucket", "", events.Discard())

	first, err := store.Put(ctx, "jobhunt.db", []byte("1"))
	require.NoError(t, err)
	second, err := store.Put(ctx, "jobhunt.db", []byte("2"))
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, "jobhunt.db", first.Version), storage.ErrPreconditionFailed)
	require.NoError(t, store.Delete(ctx, "jobhunt.db", second.Version))

	// absent object with a version guard is not an error
	require.NoError(t, store.Delete(ctx, "jobhunt.db", second.Version))

	_, err = store.Stat(ctx, "jobhunt.db")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestS3StoreListStripsPrefix(t *testing.T) {
	ctx := context.Background()
	store := storage.NewS3Store(newFakeS3(), "bucket", "/team/", events.Discard())

	_, err := store.Put(ctx, "strategies/a.md", []byte("a"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "jobhunt.db", []byte("db"))
	require.NoError(t, err)

	list, err := store.List(ctx, "strategies/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "strategies/a.md", list[0].Key)
	assert.Equal(t, int64(1), list[0].Size)
}
