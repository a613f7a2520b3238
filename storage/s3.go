package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/utils"
)

// DeleteOutcome reports a single object deletion attempt. Deletion errors are
// never surfaced as Go errors to callers: every failure mode collapses into
// Deleted=false with diagnostic fields for logging.
type DeleteOutcome struct {
	Deleted    bool
	ErrName    string
	ErrMessage string
	StatusCode int
}

// Err renders the outcome's diagnostics as a single message.
func (o DeleteOutcome) Err() string {
	if o.Deleted {
		return ""
	}
	if o.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", o.ErrName, o.StatusCode, o.ErrMessage)
	}
	return fmt.Sprintf("%s: %s", o.ErrName, o.ErrMessage)
}

// Deleter removes single objects. Idempotent: deleting an absent key succeeds.
type Deleter interface {
	DeleteObject(ctx context.Context, key string) DeleteOutcome
}

// ErrObjectNotFound is returned by HeadObject for keys absent from the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo carries the headline metadata HeadObject fetches without the body.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Store is the full object-store surface the rest of the service depends on.
type Store interface {
	Deleter
	// PutObject uploads body under key with the given content type.
	PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// HeadObject fetches object metadata. Absent keys return ErrObjectNotFound.
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)
}

// S3Store talks to an S3-compatible bucket (R2, minio) using static credentials
// and an explicit endpoint override.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds the client from application configuration.
func NewS3Store(cfg config.AppConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

// DeleteObject removes one object from the bucket. An empty key fails fast
// without a network call. S3 DeleteObject succeeds for absent keys, which
// keeps retries of already-deleted objects harmless.
func (s *S3Store) DeleteObject(ctx context.Context, key string) DeleteOutcome {
	if key == "" {
		return DeleteOutcome{ErrName: "InvalidKey", ErrMessage: "empty storage key"}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		out := DeleteOutcome{ErrName: "DeleteError", ErrMessage: err.Error()}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			out.ErrName = apiErr.ErrorCode()
			out.ErrMessage = apiErr.ErrorMessage()
		}
		var respErr interface{ HTTPStatusCode() int }
		if errors.As(err, &respErr) {
			out.StatusCode = respErr.HTTPStatusCode()
		}
		utils.Sugar.Errorw("object delete failed",
			"key", key, "error", out.ErrName, "message", out.ErrMessage, "status", out.StatusCode)
		return out
	}

	utils.Sugar.Debugw("object deleted", "key", key)
	return DeleteOutcome{Deleted: true}
}

// PutObject uploads an object with immutable cache headers suitable for
// content-addressed public URLs.
func (s *S3Store) PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// HeadObject fetches an object's size and content type without its body.
func (s *S3Store) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var respErr interface{ HTTPStatusCode() int }
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return ObjectInfo{}, ErrObjectNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head object %s: %w", key, err)
	}

	return ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// deleteManyConcurrency bounds simultaneous in-flight deletions per chunk.
const deleteManyConcurrency = 5

// DeleteMany deletes keys in chunks, issuing each chunk's deletions
// concurrently and waiting for the whole chunk before starting the next.
// Returns the keys that could not be deleted.
func DeleteMany(ctx context.Context, store Deleter, keys []string) []string {
	var mu sync.Mutex
	var failed []string

	for start := 0; start < len(keys); start += deleteManyConcurrency {
		end := start + deleteManyConcurrency
		if end > len(keys) {
			end = len(keys)
		}

		var wg sync.WaitGroup
		for _, key := range keys[start:end] {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				if out := store.DeleteObject(ctx, k); !out.Deleted {
					mu.Lock()
					failed = append(failed, k)
					mu.Unlock()
				}
			}(key)
		}
		wg.Wait()
	}
	return failed
}

// NewStorageKey generates a collision-resistant object key under the
// configured prefix, partitioned by date for easier bucket browsing.
func NewStorageKey(prefix, fileName string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s-%s", prefix, d.Year(), int(d.Month()), d.Day(), uuid.NewString(), fileName)
}
