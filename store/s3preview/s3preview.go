// Package s3preview stores biometric preview artifacts in an S3-compatible
// bucket (AWS S3, MinIO). Previews are display-only; templates never leave
// the template store.
package s3preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of *s3.Client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config describes the bucket. Endpoint is only needed for non-AWS
// backends; AccessKey and SecretKey fall back to the default AWS chain.
type Config struct {
	Bucket      string
	Prefix      string
	Region      string
	Endpoint    string
	AccessKey   string
	SecretKey   string
	ContentType string
}

var ErrNoBucket = errors.New("s3preview: bucket is required")

// Store implements the engine's PreviewStore.
type Store struct {
	api         ObjectAPI
	bucket      string
	prefix      string
	contentType string
}

var loadDefaultConfig = config.LoadDefaultConfig

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3preview: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api ObjectAPI, cfg Config) *Store {
	ct := cfg.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Store{api: api, bucket: cfg.Bucket, prefix: cfg.Prefix, contentType: ct}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) PutPreview(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(s.contentType),
	})
	if err != nil {
		return fmt.Errorf("s3preview: put %s: %w", key, err)
	}
	return nil
}

// DeletePreview removes the object. S3 reports success for missing keys.
func (s *Store) DeletePreview(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3preview: delete %s: %w", key, err)
	}
	return nil
}
