package domain

import "context"

// CatalogueRepository is the durable store behind the catalogue.
// Implemented by repository.SysTableRepo.
type CatalogueRepository interface {
	// Insert writes the schema row and the table row in one transaction and
	// returns the assigned table id after commit.
	Insert(ctx context.Context, rec *TableRecord) (int64, error)
	// Delete removes the table row then its schema row in one transaction.
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*TableRecord, error)
	GetSchemaBytes(ctx context.Context, id int64) ([]byte, error)
	// ListSchemaBytes returns every schema blob in durable-store order.
	ListSchemaBytes(ctx context.Context) ([][]byte, error)
	ListEntries(ctx context.Context) ([]TableEntry, error)
	Close() error
}

// Partitioner is the external query engine used to split a staged columnar
// object into one output per distinct partition-key combination.
// Implemented by engine.DuckDBPartitioner.
type Partitioner interface {
	// Partition reads every Parquet file matching srcGlob and writes a
	// hive-style partitioned tree under dstDir.
	Partition(ctx context.Context, srcGlob, dstDir string, columns []string) error
}
