package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
)

// maxS3Parts is the S3 limit on parts per multipart upload.
const maxS3Parts = 10000

// S3API is the subset of *s3.Client used by S3Backend.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket   string
	Region   string
	KeyID    string
	Secret   string
	Endpoint string // host or URL of an S3-compatible service; empty means AWS
	Prefix   string
	// UsePathStyle selects path-style addressing (required by most
	// S3-compatible services).
	UsePathStyle bool
	ChunkSize    int
	// PartsPerSecond throttles UploadPart calls. Zero means unlimited.
	PartsPerSecond float64
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// S3Backend uploads objects with multipart uploads. A part failure aborts the
// upload; parts are not retried.
type S3Backend struct {
	client    S3API
	bucket    string
	prefix    string
	chunkSize int
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var _ Backend = (*S3Backend)(nil)

// MinS3PartSize is the smallest part S3 accepts for any part but the last.
const MinS3PartSize = 5 << 20

// NewS3Backend creates an S3 client from static credentials. A ChunkSize
// below MinS3PartSize is rejected.
func NewS3Backend(opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, domain.ErrStorage(domain.NotAccessible, "", errors.New("S3 bucket is required"))
	}
	if opts.Region == "" {
		return nil, domain.ErrStorage(domain.NotAccessible, "", errors.New("S3 region is required"))
	}
	if opts.ChunkSize > 0 && opts.ChunkSize < MinS3PartSize {
		return nil, domain.ErrValidation("S3 chunk size must be at least %d bytes, got %d", MinS3PartSize, opts.ChunkSize)
	}

	s3opts := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
		// Parts are sent exactly once; failures abort the upload.
		Retryer: aws.NopRetryer{},
	}
	if opts.KeyID != "" {
		s3opts.Credentials = credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, "")
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3opts.BaseEndpoint = aws.String(endpoint)
	}

	return NewS3BackendWithClient(s3.New(s3opts), opts), nil
}

// NewS3BackendWithClient wraps an existing client. ChunkSize is used as
// given, so services with a smaller part minimum can be targeted.
func NewS3BackendWithClient(client S3API, opts S3Options) *S3Backend {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &S3Backend{
		client:    client,
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		chunkSize: opts.ChunkSize,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "storage", "backend", string(KindS3)),
	}
	if opts.PartsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.PartsPerSecond), 1)
	}
	return b
}

// Kind implements Backend.
func (b *S3Backend) Kind() Kind { return KindS3 }

// Put uploads data in ChunkSize parts. CompleteMultipartUpload is issued only
// once every part has succeeded; any failure aborts the upload so no object
// becomes visible at key.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	parts := chunks(data, b.chunkSize)
	if len(parts) > maxS3Parts {
		return domain.ErrStorage(domain.UploadFailed, key,
			fmt.Errorf("%d bytes need %d parts of %d bytes, limit is %d", len(data), len(parts), b.chunkSize, maxS3Parts))
	}

	fullKey := joinPrefix(b.prefix, key)
	created, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(fullKey),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, fmt.Errorf("create multipart upload: %w", err))
	}
	uploadID := created.UploadId

	completed, err := b.uploadParts(ctx, fullKey, uploadID, parts)
	if err != nil {
		b.abort(ctx, fullKey, uploadID)
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(fullKey),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		b.abort(ctx, fullKey, uploadID)
		return domain.ErrStorage(domain.UploadFailed, key, fmt.Errorf("complete multipart upload: %w", err))
	}

	b.metrics.AddStorageBytes(string(KindS3), len(data))
	b.logger.Debug("object uploaded", "key", fullKey, "bytes", len(data), "parts", len(parts))
	return nil
}

func (b *S3Backend) uploadParts(ctx context.Context, fullKey string, uploadID *string, parts [][]byte) ([]types.CompletedPart, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for i, part := range parts {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("part %d: %w", i+1, err)
			}
		}
		partNumber := aws.Int32(int32(i + 1)) //nolint:gosec // bounded by maxS3Parts
		out, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(fullKey),
			UploadId:      uploadID,
			PartNumber:    partNumber,
			Body:          bytes.NewReader(part),
			ContentLength: aws.Int64(int64(len(part))),
		})
		if err != nil {
			return nil, fmt.Errorf("upload part %d: %w", i+1, err)
		}
		b.metrics.IncStorageParts(string(KindS3))
		completed = append(completed, types.CompletedPart{ETag: out.ETag, PartNumber: partNumber})
	}
	return completed, nil
}

// abort runs even when ctx is already canceled.
func (b *S3Backend) abort(ctx context.Context, fullKey string, uploadID *string) {
	_, err := b.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(fullKey),
		UploadId: uploadID,
	})
	if err != nil {
		b.logger.Warn("abort multipart upload failed", "key", fullKey, "error", err)
	}
}

// DeleteIfExists implements Backend. S3 reports success for absent keys.
func (b *S3Backend) DeleteIfExists(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinPrefix(b.prefix, key)),
	})
	var noSuchKey *types.NoSuchKey
	if err != nil && !errors.As(err, &noSuchKey) {
		return domain.ErrStorage(domain.DeleteFailed, key, err)
	}
	return nil
}

// DeletePrefix lists and batch-deletes every object below prefix.
func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	full := DirPrefix(joinPrefix(b.prefix, strings.Trim(prefix, "/")))

	pager := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(full),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return domain.ErrStorage(domain.DeleteFailed, prefix, fmt.Errorf("list objects: %w", err))
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return domain.ErrStorage(domain.DeleteFailed, prefix, fmt.Errorf("delete objects: %w", err))
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return domain.ErrStorage(domain.DeleteFailed, aws.ToString(first.Key),
				fmt.Errorf("%d objects not deleted: %s", len(out.Errors), aws.ToString(first.Message)))
		}
	}
	return nil
}

// URI implements Backend.
func (b *S3Backend) URI(key string) string {
	return "s3://" + b.bucket + "/" + joinPrefix(b.prefix, key)
}
