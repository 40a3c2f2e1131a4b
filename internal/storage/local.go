package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
)

// LocalBackend stores objects as files below a root directory.
type LocalBackend struct {
	root    string
	metrics *metrics.Metrics
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates the root directory if needed.
func NewLocalBackend(root string, m *metrics.Metrics) (*LocalBackend, error) {
	if root == "" {
		return nil, domain.ErrStorage(domain.NotAccessible, "", errors.New("local root is required"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.ErrStorage(domain.NotAccessible, root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, domain.ErrStorage(domain.NotAccessible, root, err)
	}
	return &LocalBackend{root: abs, metrics: m}, nil
}

// Root returns the absolute root directory.
func (b *LocalBackend) Root() string { return b.root }

// Kind implements Backend.
func (b *LocalBackend) Kind() Kind { return KindLocal }

// Put writes data to a temporary file next to the target and renames it into
// place, so readers never observe a partial object.
func (b *LocalBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}

	target := b.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, err)
	}
	committed = true

	b.metrics.IncStorageParts(string(KindLocal))
	b.metrics.AddStorageBytes(string(KindLocal), len(data))
	return nil
}

// DeleteIfExists implements Backend.
func (b *LocalBackend) DeleteIfExists(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.ErrStorage(domain.DeleteFailed, key, err)
	}
	return nil
}

// DeletePrefix implements Backend.
func (b *LocalBackend) DeletePrefix(_ context.Context, prefix string) error {
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	dir := b.path(strings.Trim(prefix, "/"))
	if dir == b.root {
		return domain.ErrValidation("refusing to delete the storage root")
	}
	if err := os.RemoveAll(dir); err != nil {
		return domain.ErrStorage(domain.DeleteFailed, prefix, err)
	}
	return nil
}

// URI implements Backend.
func (b *LocalBackend) URI(key string) string {
	return fmt.Sprintf("file://%s", filepath.ToSlash(b.path(key)))
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}
