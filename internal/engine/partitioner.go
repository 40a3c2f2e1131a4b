// Package engine wraps the embedded DuckDB query engine used to split staged
// Parquet data into hive-style partitions.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register "duckdb" driver

	"lakehouse/internal/ddl"
	"lakehouse/internal/domain"
)

// DuckDBPartitioner runs partitioned COPY statements on an in-memory DuckDB
// instance. It is safe for concurrent use.
type DuckDBPartitioner struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Partitioner = (*DuckDBPartitioner)(nil)

// NewDuckDBPartitioner opens an in-memory DuckDB database.
func NewDuckDBPartitioner(logger *slog.Logger) (*DuckDBPartitioner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &DuckDBPartitioner{db: db, logger: logger.With("component", "engine")}, nil
}

// Partition implements domain.Partitioner. dstDir must not exist yet.
func (p *DuckDBPartitioner) Partition(ctx context.Context, srcGlob, dstDir string, columns []string) error {
	stmt, err := ddl.CopyPartitioned(srcGlob, dstDir, columns)
	if err != nil {
		return domain.ErrValidation("%v", err)
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	start := time.Now()
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("partitioned copy: %w", err)
	}
	p.logger.Debug("partitioned copy finished", "src", srcGlob, "dst", dstDir, "columns", columns, "elapsed", time.Since(start))
	return nil
}

// CountRows returns the number of rows in the Parquet files matching glob.
func (p *DuckDBPartitioner) CountRows(ctx context.Context, glob string, hivePartitioning bool) (int64, error) {
	stmt, err := ddl.CountRowsSQL(glob, hivePartitioning)
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}
	var n int64
	if err := p.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Close releases the DuckDB instance.
func (p *DuckDBPartitioner) Close() error {
	return p.db.Close()
}
