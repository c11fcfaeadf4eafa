// Package artifactstore uploads finished CSV artifacts to object storage
// at their deterministic path, and computes that path. Uploads happen
// outside any database transaction and stream from the caller's
// io.Reader rather than buffering the whole object in memory.
package artifactstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"batchexport/internal/config"
)

// Uploader writes a finished object to storage and returns its path. body
// is read to completion and never assumed to be seekable or fully
// buffered by the caller.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// DeterministicPath computes
// "<basePath>/YYYY/MM/DD/<jobID>/<key>_<YYYYMMDD>_<asof>.csv" from a
// unit's natural key and its generating job id. Date segments derive
// from effectiveDate, not the current date.
func DeterministicPath(basePath, indexKey string, effectiveDate int, asofIndicator, jobID string) string {
	year := effectiveDate / 10000
	month := (effectiveDate / 100) % 100
	day := effectiveDate % 100
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s/%s_%d_%s.csv",
		basePath, year, month, day, jobID, indexKey, effectiveDate, asofIndicator)
}

// S3Uploader uploads to an S3-compatible bucket using the multipart
// manager.Uploader so a large CSV stream is never materialized whole
// before the PUT.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
}

// NewS3Client builds an S3 client honoring custom endpoints (e.g. MinIO)
// and path-style addressing.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

// NewS3Uploader builds an Uploader against the configured bucket.
func NewS3Uploader(client *s3.Client, bucket string) *S3Uploader {
	return &S3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// Upload streams body to the bucket at key, letting manager.Uploader pick
// single-PUT vs multipart based on how much it has buffered so far. The
// second write for the same deterministic key is idempotent at the
// storage layer: both writes put the same bytes under the same object.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
