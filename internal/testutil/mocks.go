// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"lakehouse/internal/domain"
)

// === Catalogue Repository Mock ===

// MockCatalogueRepo implements domain.CatalogueRepository for testing.
type MockCatalogueRepo struct {
	InsertFn          func(ctx context.Context, rec *domain.TableRecord) (int64, error)
	DeleteFn          func(ctx context.Context, id int64) error
	GetFn             func(ctx context.Context, id int64) (*domain.TableRecord, error)
	GetSchemaBytesFn  func(ctx context.Context, id int64) ([]byte, error)
	ListSchemaBytesFn func(ctx context.Context) ([][]byte, error)
	ListEntriesFn     func(ctx context.Context) ([]domain.TableEntry, error)
	CloseFn           func() error
}

// Insert implements the interface method for testing.
func (m *MockCatalogueRepo) Insert(ctx context.Context, rec *domain.TableRecord) (int64, error) {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, rec)
	}
	panic("unexpected call to MockCatalogueRepo.Insert")
}

// Delete implements the interface method for testing.
func (m *MockCatalogueRepo) Delete(ctx context.Context, id int64) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	panic("unexpected call to MockCatalogueRepo.Delete")
}

// Get implements the interface method for testing.
func (m *MockCatalogueRepo) Get(ctx context.Context, id int64) (*domain.TableRecord, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	panic("unexpected call to MockCatalogueRepo.Get")
}

// GetSchemaBytes implements the interface method for testing.
func (m *MockCatalogueRepo) GetSchemaBytes(ctx context.Context, id int64) ([]byte, error) {
	if m.GetSchemaBytesFn != nil {
		return m.GetSchemaBytesFn(ctx, id)
	}
	panic("unexpected call to MockCatalogueRepo.GetSchemaBytes")
}

// ListSchemaBytes implements the interface method for testing.
func (m *MockCatalogueRepo) ListSchemaBytes(ctx context.Context) ([][]byte, error) {
	if m.ListSchemaBytesFn != nil {
		return m.ListSchemaBytesFn(ctx)
	}
	panic("unexpected call to MockCatalogueRepo.ListSchemaBytes")
}

// ListEntries implements the interface method for testing.
func (m *MockCatalogueRepo) ListEntries(ctx context.Context) ([]domain.TableEntry, error) {
	if m.ListEntriesFn != nil {
		return m.ListEntriesFn(ctx)
	}
	return nil, nil
}

// Close implements the interface method for testing.
func (m *MockCatalogueRepo) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// === Partitioner Mock ===

// PartitionCall records one Partition invocation.
type PartitionCall struct {
	SrcGlob string
	DstDir  string
	Columns []string
}

// MockPartitioner implements domain.Partitioner for testing.
type MockPartitioner struct {
	PartitionFn func(ctx context.Context, srcGlob, dstDir string, columns []string) error

	mu    sync.Mutex
	Calls []PartitionCall
}

// Partition implements the interface method for testing.
func (m *MockPartitioner) Partition(ctx context.Context, srcGlob, dstDir string, columns []string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, PartitionCall{SrcGlob: srcGlob, DstDir: dstDir, Columns: columns})
	m.mu.Unlock()
	if m.PartitionFn != nil {
		return m.PartitionFn(ctx, srcGlob, dstDir, columns)
	}
	panic("unexpected call to MockPartitioner.Partition")
}
