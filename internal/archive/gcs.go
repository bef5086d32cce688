package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures Google Cloud Storage.
type GCSConfig struct {
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `koanf:"credentials_file"`
}

var _ Uploader = (*GCSUploader)(nil)

// GCSUploader uploads objects to Google Cloud Storage.
type GCSUploader struct {
	client *storage.Client
}

// NewGCSUploader creates a GCS client.
func NewGCSUploader(ctx context.Context, cfg GCSConfig) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSUploader{client: client}, nil
}

// Upload writes body to bucket/key.
func (u *GCSUploader) Upload(ctx context.Context, bucket, key string, body []byte) error {
	w := u.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %q/%q: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %q/%q: %w", bucket, key, err)
	}
	return nil
}
