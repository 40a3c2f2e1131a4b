package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"lakehouse/internal/domain"
	"lakehouse/internal/schema"
)

// CreatedBy is written into the footer of every Parquet file.
const CreatedBy = "lakehouse"

func writerProperties() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy(CreatedBy),
	)
}

// Convert streams the source rows into a Parquet file written to w using s
// as the column layout, and returns the number of rows written.
//
// The Parquet footer is written only after the whole source was consumed. On
// any error the output is incomplete and must be discarded. Convert never
// closes w.
func Convert(ctx context.Context, opts domain.IngestionOptions, s domain.Schema, w io.Writer) (int64, error) {
	opts = opts.WithDefaults()

	f, err := os.Open(opts.Source)
	if err != nil {
		return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("open source: %w", err))
	}
	defer f.Close() //nolint:errcheck

	as := schema.ToArrow(s)
	reader := csv.NewReader(f, as,
		csv.WithComma(opts.Delimiter),
		csv.WithHeader(opts.HasHeader),
		csv.WithChunk(opts.BatchSize),
		csv.WithNullReader(true, ""),
	)
	defer reader.Release()

	// FileWriter.Close closes a sink that implements io.Closer.
	fw, err := pqarrow.NewFileWriter(as, struct{ io.Writer }{w}, writerProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("create parquet writer: %w", err))
	}

	var rows int64
	for reader.Next() {
		// A batch that hit a parse error is still returned; it must not be written.
		if err := reader.Err(); err != nil {
			return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("after row %d: %w", rows, err))
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		// With a header the reader renames its fields to the raw header text,
		// so every batch is rebound to the cleaned schema before writing.
		rec := reader.RecordBatch()
		out := array.NewRecordBatch(as, rec.Columns(), rec.NumRows())
		err := fw.Write(out)
		out.Release()
		if err != nil {
			return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("write batch: %w", err))
		}
		rows += rec.NumRows()
	}
	if err := reader.Err(); err != nil {
		return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("after row %d: %w", rows, err))
	}

	if err := fw.Close(); err != nil {
		return 0, domain.ErrIngestion(domain.RowConversionFailed, fmt.Errorf("finalize parquet: %w", err))
	}
	return rows, nil
}
