package archive

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig configures Azure Blob Storage. Either ConnectionString or
// AccountName and AccountKey must be set.
type AzureConfig struct {
	ConnectionString string `koanf:"connection_string"`
	AccountName      string `koanf:"account_name"`
	AccountKey       string `koanf:"account_key"`
	// Endpoint overrides the service URL derived from AccountName.
	Endpoint string `koanf:"endpoint"`
}

var _ Uploader = (*AzureUploader)(nil)

// AzureUploader uploads blobs to Azure Blob Storage.
type AzureUploader struct {
	client *azblob.Client
}

// NewAzureUploader creates a blob client from cfg.
func NewAzureUploader(cfg AzureConfig) (*AzureUploader, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure blob client: %w", err)
		}
		return &AzureUploader{client: client}, nil
	}

	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("Azure config is incomplete: connection_string or account_name and account_key are required")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureUploader{client: client}, nil
}

// Upload writes body to container/key as a block blob.
func (u *AzureUploader) Upload(ctx context.Context, container, key string, body []byte) error {
	if _, err := u.client.UploadBuffer(ctx, container, key, body, nil); err != nil {
		return fmt.Errorf("upload blob %q/%q: %w", container, key, err)
	}
	return nil
}
