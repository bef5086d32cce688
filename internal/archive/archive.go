// Package archive writes run exports to a local file or to object storage.
// Destinations are addressed by URL: a plain path, s3://bucket/key,
// gs://bucket/key or azblob://container/key.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Scheme identifies a destination backend.
type Scheme string

// Supported schemes.
const (
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "azblob"
)

// Config holds credentials for the object storage backends.
type Config struct {
	S3    S3Config    `koanf:"s3"`
	GCS   GCSConfig   `koanf:"gcs"`
	Azure AzureConfig `koanf:"azure"`
}

// Destination is a parsed archive target.
type Destination struct {
	Scheme Scheme
	// Bucket is the bucket or container. Empty for files.
	Bucket string
	// Key is the object key, or the file path for SchemeFile.
	Key string
}

func (d Destination) String() string {
	if d.Scheme == SchemeFile {
		return d.Key
	}
	return string(d.Scheme) + "://" + d.Bucket + "/" + d.Key
}

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body []byte) error
}

// ParseDestination parses dest. Anything without a recognized scheme is a
// local file path.
func ParseDestination(dest string) (Destination, error) {
	if dest == "" {
		return Destination{}, fmt.Errorf("empty archive destination")
	}

	if !strings.Contains(dest, "://") {
		return Destination{Scheme: SchemeFile, Key: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return Destination{}, fmt.Errorf("parse archive destination %q: %w", dest, err)
	}

	var scheme Scheme
	switch u.Scheme {
	case "file":
		return Destination{Scheme: SchemeFile, Key: u.Path}, nil
	case "s3":
		scheme = SchemeS3
	case "gs", "gcs":
		scheme = SchemeGCS
	case "azblob", "az":
		scheme = SchemeAzure
	default:
		return Destination{}, fmt.Errorf("unsupported archive scheme %q in %q", u.Scheme, dest)
	}

	if u.Host == "" {
		return Destination{}, fmt.Errorf("empty bucket in %q", dest)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Destination{}, fmt.Errorf("empty key in %q", dest)
	}
	return Destination{Scheme: scheme, Bucket: u.Host, Key: key}, nil
}

// NewUploader creates the uploader for scheme.
func NewUploader(ctx context.Context, scheme Scheme, cfg Config) (Uploader, error) {
	switch scheme {
	case SchemeFile:
		return FileUploader{}, nil
	case SchemeS3:
		return NewS3Uploader(cfg.S3)
	case SchemeGCS:
		return NewGCSUploader(ctx, cfg.GCS)
	case SchemeAzure:
		return NewAzureUploader(cfg.Azure)
	default:
		return nil, fmt.Errorf("unsupported archive scheme %q", scheme)
	}
}

// Write stores body at dest.
func Write(ctx context.Context, dest string, body []byte, cfg Config) error {
	d, err := ParseDestination(dest)
	if err != nil {
		return err
	}
	up, err := NewUploader(ctx, d.Scheme, cfg)
	if err != nil {
		return err
	}
	if err := up.Upload(ctx, d.Bucket, d.Key, body); err != nil {
		return fmt.Errorf("write %s: %w", d, err)
	}
	return nil
}
