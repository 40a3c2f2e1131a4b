package ddl

import (
	"fmt"
	"strings"
)

// CopyPartitioned generates a COPY statement that splits every row of the
// Parquet files matching srcGlob into a hive-style tree under dstDir, one
// directory level per partition column:
//
//	COPY (SELECT * FROM read_parquet('src/*.parquet')) TO 'dst'
//	  (FORMAT PARQUET, COMPRESSION SNAPPY, PARTITION_BY ("year", "month"))
func CopyPartitioned(srcGlob, dstDir string, columns []string) (string, error) {
	if srcGlob == "" {
		return "", fmt.Errorf("source glob is required")
	}
	if dstDir == "" {
		return "", fmt.Errorf("destination directory is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one partition column is required")
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		if c == "" {
			return "", fmt.Errorf("partition column %d is empty", i)
		}
		quoted[i] = QuoteIdentifier(c)
	}

	return fmt.Sprintf("COPY (SELECT * FROM read_parquet(%s)) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY, PARTITION_BY (%s))",
		QuoteLiteral(srcGlob),
		QuoteLiteral(dstDir),
		strings.Join(quoted, ", "),
	), nil
}

// CountRowsSQL generates a row count over the Parquet files matching glob.
// With hivePartitioning the partition directories are read back as columns.
func CountRowsSQL(glob string, hivePartitioning bool) (string, error) {
	if glob == "" {
		return "", fmt.Errorf("glob is required")
	}
	if hivePartitioning {
		return fmt.Sprintf("SELECT COUNT(*) FROM read_parquet(%s, hive_partitioning = true)", QuoteLiteral(glob)), nil
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM read_parquet(%s)", QuoteLiteral(glob)), nil
}
