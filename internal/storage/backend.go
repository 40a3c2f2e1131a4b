// Package storage provides the object storage backends that hold table data:
// a local filesystem tree and the S3, GCS and Azure Blob object stores.
package storage

import (
	"context"
)

// Kind identifies a backend variant.
type Kind string

// Backend kinds.
const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
	KindAzure Kind = "azure"
)

// DefaultChunkSize is the upload chunk size used when none is configured.
const DefaultChunkSize = 10 << 20 // 10 MiB

// Backend stores immutable objects under slash-separated keys.
//
// Put either makes the complete object visible or leaves no object at key.
// Failures are reported as *domain.StorageError.
type Backend interface {
	Kind() Kind
	Put(ctx context.Context, key string, data []byte) error
	// DeleteIfExists succeeds when the object is already absent.
	DeleteIfExists(ctx context.Context, key string) error
	// DeletePrefix removes every object below the directory prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// URI returns the backend-qualified location of key.
	URI(key string) string
}

// chunks splits data into pieces of at most size bytes. Empty data yields one
// empty chunk so that every upload produces exactly one object.
func chunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(data) == 0 {
		return [][]byte{data}
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		out = append(out, data[off:min(off+size, len(data))])
	}
	return out
}
