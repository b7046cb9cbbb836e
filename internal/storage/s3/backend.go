package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/types"
)

// Backend implements types.Backend on top of an S3 bucket.
type Backend struct {
	client api
	config *Config
	logger *zap.Logger

	metrics types.MetricsCollector

	mu    sync.RWMutex
	stats BackendMetrics
}

var _ types.Backend = (*Backend)(nil)

// BackendMetrics tracks S3 backend performance metrics
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`
}

// NewBackend creates a new S3 backend instance
func NewBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backend := newBackend(client, cfg)
	if !cfg.SkipHealthCheck {
		if err := backend.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("S3 backend health check failed: %w", err)
		}
	}
	backend.logger.Info("S3 backend ready",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("prefix", cfg.Prefix),
		zap.Bool("path_style", cfg.ForcePathStyle))
	return backend, nil
}

func newBackend(client api, cfg *Config) *Backend {
	return &Backend{
		client: client,
		config: cfg,
		logger: logging.Named("s3").With(zap.String("bucket", cfg.Bucket)),
	}
}

// SetMetrics attaches a collector that receives one operation per request.
func (b *Backend) SetMetrics(metrics types.MetricsCollector) {
	b.metrics = metrics
}

// GetObject retrieves an object or a byte range of it. A size of zero reads
// to the end of the object.
func (b *Backend) GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.config.key(key)),
	}
	if offset > 0 || size > 0 {
		if size > 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
		} else {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
		}
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		b.record("s3_get", start, 0, err)
		return nil, b.translateError(err, "GetObject", key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.record("s3_get", start, 0, err)
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.mu.Lock()
	b.stats.BytesDownloaded += int64(len(data))
	b.mu.Unlock()
	b.record("s3_get", start, int64(len(data)), nil)
	return data, nil
}

// PutObject stores an object.
func (b *Backend) PutObject(ctx context.Context, key string, data []byte) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.config.Bucket),
		Key:           aws.String(b.config.key(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		b.record("s3_put", start, 0, err)
		return b.translateError(err, "PutObject", key)
	}

	b.mu.Lock()
	b.stats.BytesUploaded += int64(len(data))
	b.mu.Unlock()
	b.record("s3_put", start, int64(len(data)), nil)
	b.logger.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// HeadObject retrieves metadata about an object
func (b *Backend) HeadObject(ctx context.Context, key string) (*types.ObjectInfo, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.config.key(key)),
	})
	if err != nil {
		b.record("s3_head", start, 0, err)
		return nil, b.translateError(err, "HeadObject", key)
	}
	b.record("s3_head", start, 0, nil)

	return &types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
	}, nil
}

// ListObjects lists objects below prefix, following continuation tokens.
// A limit of zero lists everything.
func (b *Backend) ListObjects(ctx context.Context, prefix string, limit int) ([]types.ObjectInfo, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(b.config.key(prefix)),
	}
	if limit > 0 && limit < 1000 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	var objects []types.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			b.record("s3_list", start, 0, err)
			return nil, b.translateError(err, "ListObjects", prefix)
		}
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectInfo{
				Key:          b.config.trim(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
			if limit > 0 && len(objects) >= limit {
				b.record("s3_list", start, 0, nil)
				return objects, nil
			}
		}
	}

	b.record("s3_list", start, 0, nil)
	return objects, nil
}

// HealthCheck verifies the bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// GetMetrics returns current backend metrics
func (b *Backend) GetMetrics() BackendMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.config.RequestTimeout)
}

func (b *Backend) record(operation string, start time.Time, size int64, err error) {
	duration := time.Since(start)

	b.mu.Lock()
	b.stats.Requests++
	if err != nil && !isNotFound(err) {
		b.stats.Errors++
		b.stats.LastError = err.Error()
		b.stats.LastErrorTime = time.Now()
	}
	if b.stats.Requests == 1 {
		b.stats.AverageLatency = duration
	} else {
		b.stats.AverageLatency = time.Duration((int64(b.stats.AverageLatency)*9 + int64(duration)) / 10)
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordOperation(operation, duration, size, err == nil)
	}
}

func (b *Backend) translateError(err error, operation, key string) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	case isErrorType[*s3types.NoSuchBucket](err):
		return fmt.Errorf("bucket not found: %s", b.config.Bucket)
	default:
		return fmt.Errorf("%s failed for %s: %w", operation, key, err)
	}
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	var responseErr *awshttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
