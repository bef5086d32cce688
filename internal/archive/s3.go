package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures S3 and S3-compatible object storage.
type S3Config struct {
	// Endpoint is a host or URL for S3-compatible stores. Empty uses AWS.
	Endpoint string `koanf:"endpoint"`
	Region   string `koanf:"region"`
	KeyID    string `koanf:"key_id"`
	Secret   string `koanf:"secret"`
	// PathStyle forces path-style addressing, which most S3-compatible
	// stores require.
	PathStyle bool `koanf:"path_style"`
}

var _ Uploader = (*S3Uploader)(nil)

// S3Uploader uploads objects with the AWS SDK v2.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader creates an uploader with static credentials.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.KeyID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("S3 config is incomplete: key_id and secret are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.Secret, ""),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Uploader{client: s3.New(opts)}, nil
}

// Upload puts body at bucket/key.
func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %q/%q: %w", bucket, key, err)
	}
	return nil
}
