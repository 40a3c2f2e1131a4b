package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// === S3 Client Mock ===

// MockS3Client is an in-memory S3 multipart surface. Objects become visible
// only on CompleteMultipartUpload.
type MockS3Client struct {
	// UploadPartFn, when set, runs before a part is stored; a non-nil error
	// fails the call.
	UploadPartFn func(ctx context.Context, in *s3.UploadPartInput) error
	CompleteFn   func(ctx context.Context, in *s3.CompleteMultipartUploadInput) error

	mu        sync.Mutex
	nextID    int
	Objects   map[string][]byte
	uploads   map[string]map[int32][]byte
	Created   int
	Completed int
	Aborted   []string // upload ids
	Parts     int
}

// NewMockS3Client returns an empty store.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		Objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

// CreateMultipartUpload implements the interface method for testing.
func (m *MockS3Client) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = make(map[int32][]byte)
	m.Created++
	return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
}

// UploadPart implements the interface method for testing.
func (m *MockS3Client) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if m.UploadPartFn != nil {
		if err := m.UploadPartFn(ctx, in); err != nil {
			return nil, err
		}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, errors.New("NoSuchUpload")
	}
	parts[aws.ToInt32(in.PartNumber)] = body
	m.Parts++
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"etag-%d"`, aws.ToInt32(in.PartNumber)))}, nil
}

// CompleteMultipartUpload implements the interface method for testing.
func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if m.CompleteFn != nil {
		if err := m.CompleteFn(ctx, in); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := aws.ToString(in.UploadId)
	parts, ok := m.uploads[id]
	if !ok {
		return nil, errors.New("NoSuchUpload")
	}
	var buf bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		data, ok := parts[aws.ToInt32(p.PartNumber)]
		if !ok {
			return nil, fmt.Errorf("InvalidPart %d", aws.ToInt32(p.PartNumber))
		}
		buf.Write(data)
	}
	m.Objects[aws.ToString(in.Key)] = buf.Bytes()
	delete(m.uploads, id)
	m.Completed++
	return &s3.CompleteMultipartUploadOutput{Key: in.Key}, nil
}

// AbortMultipartUpload implements the interface method for testing.
func (m *MockS3Client) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := aws.ToString(in.UploadId)
	delete(m.uploads, id)
	m.Aborted = append(m.Aborted, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

// DeleteObject implements the interface method for testing.
func (m *MockS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// DeleteObjects implements the interface method for testing.
func (m *MockS3Client) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(m.Objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2 implements the interface method for testing. All matches are
// returned in one page.
func (m *MockS3Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var contents []types.Object
	for _, k := range sortedKeys(m.Objects) {
		if strings.HasPrefix(k, prefix) {
			contents = append(contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(m.Objects[k])))})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false), KeyCount: aws.Int32(int32(len(contents)))}, nil //nolint:gosec // test sizes
}

// Keys returns the stored object keys in order.
func (m *MockS3Client) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.Objects)
}

// PendingUploads returns the number of uploads neither completed nor aborted.
func (m *MockS3Client) PendingUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// === Azure Container Mock ===

// MockAzureBlobs is an in-memory block blob container. Blobs become visible
// only on CommitBlockList.
type MockAzureBlobs struct {
	StageBlockFn func(ctx context.Context, blobName, blockID string) error

	mu      sync.Mutex
	Blobs   map[string][]byte
	staged  map[string]map[string][]byte
	Commits int
}

// NewMockAzureBlobs returns an empty container.
func NewMockAzureBlobs() *MockAzureBlobs {
	return &MockAzureBlobs{
		Blobs:  make(map[string][]byte),
		staged: make(map[string]map[string][]byte),
	}
}

// StageBlock implements the interface method for testing.
func (m *MockAzureBlobs) StageBlock(ctx context.Context, blobName, blockID string, data []byte) error {
	if m.StageBlockFn != nil {
		if err := m.StageBlockFn(ctx, blobName, blockID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staged[blobName] == nil {
		m.staged[blobName] = make(map[string][]byte)
	}
	m.staged[blobName][blockID] = append([]byte(nil), data...)
	return nil
}

// CommitBlockList implements the interface method for testing.
func (m *MockAzureBlobs) CommitBlockList(_ context.Context, blobName string, blockIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, id := range blockIDs {
		data, ok := m.staged[blobName][id]
		if !ok {
			return &azcore.ResponseError{ErrorCode: string(bloberror.InvalidBlockList), StatusCode: 400}
		}
		buf.Write(data)
	}
	m.Blobs[blobName] = buf.Bytes()
	delete(m.staged, blobName)
	m.Commits++
	return nil
}

// DeleteBlob implements the interface method for testing.
func (m *MockAzureBlobs) DeleteBlob(_ context.Context, blobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Blobs[blobName]; !ok {
		return &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: 404}
	}
	delete(m.Blobs, blobName)
	return nil
}

// ListBlobs implements the interface method for testing.
func (m *MockAzureBlobs) ListBlobs(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, k := range sortedKeys(m.Blobs) {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// StagedBlobs returns the number of blobs with uncommitted blocks.
func (m *MockAzureBlobs) StagedBlobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
