package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileUploader writes objects to the local filesystem. The bucket is ignored
// and the key is the file path.
type FileUploader struct{}

// Upload writes body to key, creating parent directories.
func (FileUploader) Upload(_ context.Context, _, key string, body []byte) error {
	if dir := filepath.Dir(key); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(key, body, 0o600); err != nil {
		return fmt.Errorf("write file %s: %w", key, err)
	}
	return nil
}
