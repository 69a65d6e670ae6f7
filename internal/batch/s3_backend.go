package batch

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Backend writes partitions and manifests to an S3 bucket under a fixed
// prefix.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
	ctx    context.Context
}

// NewS3Backend constructs a backend rooted at s3://bucket/prefix.
func NewS3Backend(ctx context.Context, bucket, prefix, region string) (*S3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Backend{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix, ctx: ctx}, nil
}

func (b *S3Backend) WritePartition(relPath string, data []byte) error {
	return b.put(path.Join(b.prefix, relPath), data, "application/octet-stream")
}

func (b *S3Backend) WriteManifest(relPath string, data []byte) error {
	return b.put(path.Join(b.prefix, "processing_statistics", relPath), data, "application/json")
}

func (b *S3Backend) put(key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(b.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}
