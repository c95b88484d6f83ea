package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/TheMichaelB/jobhunt/internal/events"
)

// GCSStore implements ObjectStore on a Cloud Storage bucket. Versions are
// object generations, so conditional operations use generation preconditions.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	prefix prefixer
	logger *events.Logger
}

// NewGCSClient builds a client from application default credentials. A
// non-empty endpoint points it at an emulator.
func NewGCSClient(ctx context.Context, endpoint string) (*storage.Client, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return client, nil
}

// NewGCSStore wraps a bucket.
func NewGCSStore(client *storage.Client, bucket, prefix string, logger *events.Logger) *GCSStore {
	return &GCSStore{
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: prefixer(strings.Trim(prefix, "/")),
		logger: logger.WithField("component", "gcs_store"),
	}
}

// Get returns the object body and attributes.
func (s *GCSStore) Get(ctx context.Context, key string) (*Object, error) {
	reader, err := s.bucket.Object(s.prefix.full(key)).NewReader(ctx)
	if err != nil {
		return nil, storeErr("get", key, s.mapError(err))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, storeErr("get", key, fmt.Errorf("read body: %w", err))
	}

	return &Object{
		Attrs: Attrs{
			Key:     key,
			Size:    int64(len(data)),
			Version: strconv.FormatInt(reader.Attrs.Generation, 10),
			Updated: reader.Attrs.LastModified.UTC(),
		},
		Data: data,
	}, nil
}

// Put overwrites the object.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (Attrs, error) {
	return s.write(ctx, "put", key, data, s.bucket.Object(s.prefix.full(key)))
}

// PutIfAbsent creates the object with a DoesNotExist precondition.
func (s *GCSStore) PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error) {
	obj := s.bucket.Object(s.prefix.full(key)).If(storage.Conditions{DoesNotExist: true})
	return s.write(ctx, "put_if_absent", key, data, obj)
}

func (s *GCSStore) write(ctx context.Context, op, key string, data []byte, obj *storage.ObjectHandle) (Attrs, error) {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Attrs{}, storeErr(op, key, s.mapError(err))
	}
	if err := w.Close(); err != nil {
		return Attrs{}, storeErr(op, key, s.mapError(err))
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Wrote object to GCS")

	return s.attrs(key, w.Attrs()), nil
}

// Delete removes the object, guarded by generation when ifVersion is set.
func (s *GCSStore) Delete(ctx context.Context, key string, ifVersion string) error {
	obj := s.bucket.Object(s.prefix.full(key))

	if ifVersion != "" {
		gen, err := strconv.ParseInt(ifVersion, 10, 64)
		if err != nil {
			return storeErr("delete", key, fmt.Errorf("invalid generation %q: %w", ifVersion, err))
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	if err := obj.Delete(ctx); err != nil {
		mapped := s.mapError(err)
		if errors.Is(mapped, ErrObjectNotFound) {
			return nil
		}
		return storeErr("delete", key, mapped)
	}
	return nil
}

// List iterates objects under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix.listPrefix(prefix)})

	var out []Attrs
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storeErr("list", prefix, s.mapError(err))
		}
		out = append(out, s.attrs(s.prefix.rel(attrs.Name), attrs))
	}

	return out, nil
}

// Stat reads object metadata.
func (s *GCSStore) Stat(ctx context.Context, key string) (Attrs, error) {
	attrs, err := s.bucket.Object(s.prefix.full(key)).Attrs(ctx)
	if err != nil {
		return Attrs{}, storeErr("stat", key, s.mapError(err))
	}
	return s.attrs(key, attrs), nil
}

func (s *GCSStore) attrs(key string, a *storage.ObjectAttrs) Attrs {
	if a == nil {
		return Attrs{Key: key}
	}
	return Attrs{
		Key:     key,
		Size:    a.Size,
		Version: strconv.FormatInt(a.Generation, 10),
		Updated: a.Updated.UTC(),
	}
}

func (s *GCSStore) mapError(err error) error {
	return mapGCSError(s.name, err)
}

func mapGCSError(bucket string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("bucket %s does not exist: %w", bucket, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, apiErr.Message)
		case http.StatusNotFound:
			return ErrObjectNotFound
		}
	}

	return err
}
