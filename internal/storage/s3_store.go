package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/TheMichaelB/jobhunt/internal/events"
)

// S3API is the slice of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements ObjectStore on an S3 bucket using conditional writes.
type S3Store struct {
	client S3API
	bucket string
	prefix prefixer
	logger *events.Logger
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region   string
	Endpoint string // S3-compatible endpoint, path-style addressing
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefixer(strings.Trim(prefix, "/")),
		logger: logger.WithField("component", "s3_store"),
	}
}

// Get returns the object body and attributes.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix.full(key)),
	})
	if err != nil {
		return nil, storeErr("get", key, s.mapError(err))
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, storeErr("get", key, fmt.Errorf("read body: %w", err))
	}

	return &Object{
		Attrs: Attrs{
			Key:     key,
			Size:    int64(len(data)),
			Version: aws.ToString(result.ETag),
			Updated: aws.ToTime(result.LastModified).UTC(),
		},
		Data: data,
	}, nil
}

// Put overwrites the object.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (Attrs, error) {
	return s.put(ctx, "put", key, data, nil)
}

// PutIfAbsent creates the object with If-None-Match: *.
func (s *S3Store) PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error) {
	return s.put(ctx, "put_if_absent", key, data, aws.String("*"))
}

func (s *S3Store) put(ctx context.Context, op, key string, data []byte, ifNoneMatch *string) (Attrs, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix.full(key)),
		Body:        bytes.NewReader(data),
		IfNoneMatch: ifNoneMatch,
	})
	if err != nil {
		return Attrs{}, storeErr(op, key, s.mapError(err))
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Wrote object to S3")

	// PutObject does not return LastModified; Stat gives the server's clock.
	attrs, err := s.Stat(ctx, key)
	if err != nil {
		return Attrs{
			Key:     key,
			Size:    int64(len(data)),
			Version: aws.ToString(out.ETag),
			Updated: time.Now().UTC(),
		}, nil
	}
	return attrs, nil
}

// Delete removes the object, with If-Match when ifVersion is set.
func (s *S3Store) Delete(ctx context.Context, key string, ifVersion string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix.full(key)),
	}
	if ifVersion != "" {
		input.IfMatch = aws.String(ifVersion)
	}

	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		mapped := s.mapError(err)
		if errors.Is(mapped, ErrObjectNotFound) {
			return nil
		}
		return storeErr("delete", key, mapped)
	}
	return nil
}

// List pages through ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Attrs, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix.listPrefix(prefix)),
	})

	var out []Attrs
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list", prefix, s.mapError(err))
		}

		for _, obj := range page.Contents {
			out = append(out, Attrs{
				Key:     s.prefix.rel(aws.ToString(obj.Key)),
				Size:    aws.ToInt64(obj.Size),
				Version: aws.ToString(obj.ETag),
				Updated: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}

	return out, nil
}

// Stat issues HeadObject.
func (s *S3Store) Stat(ctx context.Context, key string) (Attrs, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix.full(key)),
	})
	if err != nil {
		return Attrs{}, storeErr("stat", key, s.mapError(err))
	}

	return Attrs{
		Key:     key,
		Size:    aws.ToInt64(head.ContentLength),
		Version: aws.ToString(head.ETag),
		Updated: aws.ToTime(head.LastModified).UTC(),
	}, nil
}

// mapError translates S3 failures into the store sentinels.
func (s *S3Store) mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, apiErr.ErrorMessage())
		case "NoSuchKey", "NotFound":
			return ErrObjectNotFound
		case "NoSuchBucket":
			return fmt.Errorf("bucket %s does not exist: %w", s.bucket, err)
		}
	}

	return err
}
