// Package storage issues download URLs for packages held in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultExpiry = 15 * time.Minute

// S3Config holds bucket coordinates and static credentials.
type S3Config struct {
	Endpoint  string // empty for AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PathStyle is needed by MinIO and most self-hosted stores.
	PathStyle bool
	Expiry    time.Duration
}

// S3Presigner signs GET requests for package keys.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	expiry time.Duration
}

// NewS3Presigner builds a presign client. Signing is local; no request is made.
func NewS3Presigner(ctx context.Context, cfg S3Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &S3Presigner{client: s3.NewPresignClient(client), bucket: cfg.Bucket, expiry: expiry}, nil
}

// PresignGet returns a time-limited GET URL for key.
func (p *S3Presigner) PresignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("storage: empty package key")
	}
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
