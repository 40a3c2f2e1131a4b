package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/google/uuid"

	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
)

// AzureBlobAPI is the container-level surface used by AzureBackend.
type AzureBlobAPI interface {
	StageBlock(ctx context.Context, blobName, blockID string, data []byte) error
	CommitBlockList(ctx context.Context, blobName string, blockIDs []string) error
	DeleteBlob(ctx context.Context, blobName string) error
	ListBlobs(ctx context.Context, prefix string) ([]string, error)
}

// AzureOptions configures an AzureBackend.
type AzureOptions struct {
	AccountName string
	AccountKey  string
	Container   string
	// Endpoint overrides the service URL (https://<account>.blob.core.windows.net).
	Endpoint  string
	Prefix    string
	ChunkSize int
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// AzureBackend uploads objects as block blobs. Blocks are staged one per chunk
// and the block list is committed only after every block was staged; staged
// but uncommitted blocks are never visible to readers.
type AzureBackend struct {
	blobs     AzureBlobAPI
	account   string
	container string
	prefix    string
	chunkSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var _ Backend = (*AzureBackend)(nil)

// NewAzureBackend creates a container client from a shared key.
func NewAzureBackend(opts AzureOptions) (*AzureBackend, error) {
	if opts.AccountName == "" || opts.AccountKey == "" || opts.Container == "" {
		return nil, domain.ErrStorage(domain.NotAccessible, "", errors.New("Azure account name, key and container are required"))
	}

	cred, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
	if err != nil {
		return nil, domain.ErrStorage(domain.NotAccessible, "", fmt.Errorf("create shared key credential: %w", err))
	}

	serviceURL := opts.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", opts.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, domain.ErrStorage(domain.NotAccessible, "", fmt.Errorf("create Azure blob client: %w", err))
	}

	blobs := &azureContainer{client: client.ServiceClient().NewContainerClient(opts.Container)}
	return NewAzureBackendWithClient(blobs, opts), nil
}

// NewAzureBackendWithClient wraps an existing container surface.
func NewAzureBackendWithClient(blobs AzureBlobAPI, opts AzureOptions) *AzureBackend {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AzureBackend{
		blobs:     blobs,
		account:   opts.AccountName,
		container: opts.Container,
		prefix:    strings.Trim(opts.Prefix, "/"),
		chunkSize: opts.ChunkSize,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "storage", "backend", string(KindAzure)),
	}
}

// Kind implements Backend.
func (b *AzureBackend) Kind() Kind { return KindAzure }

// Put implements Backend.
func (b *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	fullKey := joinPrefix(b.prefix, key)

	// Block ids within a blob must all have the same length.
	upload := uuid.NewString()
	parts := chunks(data, b.chunkSize)
	ids := make([]string, 0, len(parts))
	for i, part := range parts {
		id := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s-%06d", upload, i)))
		if err := b.blobs.StageBlock(ctx, fullKey, id, part); err != nil {
			return domain.ErrStorage(domain.UploadFailed, key, fmt.Errorf("stage block %d: %w", i+1, err))
		}
		b.metrics.IncStorageParts(string(KindAzure))
		ids = append(ids, id)
	}
	if err := b.blobs.CommitBlockList(ctx, fullKey, ids); err != nil {
		return domain.ErrStorage(domain.UploadFailed, key, fmt.Errorf("commit block list: %w", err))
	}

	b.metrics.AddStorageBytes(string(KindAzure), len(data))
	b.logger.Debug("object uploaded", "key", fullKey, "bytes", len(data), "blocks", len(ids))
	return nil
}

// DeleteIfExists implements Backend.
func (b *AzureBackend) DeleteIfExists(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := b.blobs.DeleteBlob(ctx, joinPrefix(b.prefix, key)); err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return domain.ErrStorage(domain.DeleteFailed, key, err)
	}
	return nil
}

// DeletePrefix implements Backend.
func (b *AzureBackend) DeletePrefix(ctx context.Context, prefix string) error {
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	full := DirPrefix(joinPrefix(b.prefix, strings.Trim(prefix, "/")))

	names, err := b.blobs.ListBlobs(ctx, full)
	if err != nil {
		return domain.ErrStorage(domain.DeleteFailed, prefix, fmt.Errorf("list blobs: %w", err))
	}
	for _, name := range names {
		if err := b.blobs.DeleteBlob(ctx, name); err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
			return domain.ErrStorage(domain.DeleteFailed, name, err)
		}
	}
	return nil
}

// URI implements Backend.
func (b *AzureBackend) URI(key string) string {
	return fmt.Sprintf("az://%s/%s", b.container, joinPrefix(b.prefix, key))
}

// azureContainer adapts *container.Client to AzureBlobAPI.
type azureContainer struct {
	client *container.Client
}

func (c *azureContainer) StageBlock(ctx context.Context, blobName, blockID string, data []byte) error {
	_, err := c.client.NewBlockBlobClient(blobName).StageBlock(ctx, blockID, streaming.NopCloser(bytes.NewReader(data)), nil)
	return err
}

func (c *azureContainer) CommitBlockList(ctx context.Context, blobName string, blockIDs []string) error {
	_, err := c.client.NewBlockBlobClient(blobName).CommitBlockList(ctx, blockIDs, &blockblob.CommitBlockListOptions{})
	return err
}

func (c *azureContainer) DeleteBlob(ctx context.Context, blobName string) error {
	_, err := c.client.NewBlobClient(blobName).Delete(ctx, nil)
	return err
}

func (c *azureContainer) ListBlobs(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pager := c.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}
