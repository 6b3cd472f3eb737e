// Package s3archive archives raw marker feed bodies to an S3-compatible bucket.
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const keyPrefix = "feeds/"

// Config holds bucket and endpoint settings. Credentials come from the
// default AWS chain.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool
}

// Archiver implements pipeline.Archiver.
type Archiver struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// New creates an Archiver from Config.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Archiver{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Archive uploads body under a key derived from the fetch time.
func (a *Archiver) Archive(ctx context.Context, body []byte, fetchedAt time.Time) error {
	key := objectKey(fetchedAt, uuid.New())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("raw feed archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return nil
}

// objectKey partitions archives by UTC day, e.g.
// feeds/2025/01/02/150405-<uuid>.json.
func objectKey(fetchedAt time.Time, id uuid.UUID) string {
	return keyPrefix + fetchedAt.UTC().Format("2006/01/02/150405") + "-" + id.String() + ".json"
}
