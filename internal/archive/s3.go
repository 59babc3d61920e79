package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/critdex/critdex/internal/config"
)

// S3Backend implements Backend on an S3 bucket.
type S3Backend struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

// NewS3Backend creates an S3 archive backend from the session configuration.
func NewS3Backend(ctx context.Context, cfg config.S3Config) (*S3Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		client:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:     cfg.Bucket,
		maxRetries: 3,
	}, nil
}

// NewS3BackendWithClient creates an S3 archive backend with a pre-configured
// client.
func NewS3BackendWithClient(client *s3.Client, bucket string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, maxRetries: 3}
}

// Put stores an object under the given key, replacing any existing one.
func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader) error {
	// Buffer the payload so retries can resend it. Snapshots are small
	// relative to the data they index.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	err = b.retryWithBackoff(ctx, func() error {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// Get opens the object stored under the given key.
func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var resp *s3.GetObjectOutput
	err := b.retryWithBackoff(ctx, func() error {
		var getErr error
		resp, getErr = b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return getErr
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return resp.Body, nil
}

// Exists reports whether an object is stored under the given key.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := b.retryWithBackoff(ctx, func() error {
		_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// List returns all object keys under the given prefix.
func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list archive objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (b *S3Backend) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt < b.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
