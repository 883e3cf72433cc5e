package authflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirBlobStore writes blobs under a root directory on local disk. It backs
// the profile-picture flow in development; hosts with object storage provide
// their own BlobStore.
type DirBlobStore struct {
	root string
}

var _ BlobStore = (*DirBlobStore)(nil)

// NewDirBlobStore builds a store rooted at dir.
func NewDirBlobStore(dir string) *DirBlobStore {
	return &DirBlobStore{root: dir}
}

// Put implements BlobStore.
func (s *DirBlobStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clean := filepath.Clean(path)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid blob path: %q", path)
	}

	target := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}

	return nil
}
