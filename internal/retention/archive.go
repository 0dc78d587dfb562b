package retention

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Destination is the interface for an archive target. Key is a relative
// path like "2026-08-28/errors-archived.json".
type Destination interface {
	// Write stores one archive document under the given key.
	Write(ctx context.Context, key string, data []byte) error
}

// S3Destination writes archive documents to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Destination, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Write uploads the document as <prefix>/<key>.
func (d *S3Destination) Write(ctx context.Context, key string, data []byte) error {
	objectKey := key
	if d.prefix != "" {
		objectKey = d.prefix + "/" + key
	}

	contentType := "application/json"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", objectKey, err)
	}
	return nil
}

// DirDestination writes archive documents as files under a base directory.
type DirDestination struct {
	base string
}

// NewDirDestination creates a directory destination rooted at base.
func NewDirDestination(base string) *DirDestination {
	return &DirDestination{base: base}
}

// Write stores the document at <base>/<key>, creating directories as needed.
func (d *DirDestination) Write(_ context.Context, key string, data []byte) error {
	path := filepath.Join(d.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive file %s: %w", path, err)
	}
	return nil
}
