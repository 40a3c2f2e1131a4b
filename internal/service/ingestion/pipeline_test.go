package ingestion

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
	"lakehouse/internal/engine"
	"lakehouse/internal/storage"
	"lakehouse/internal/testutil"
)

// recordingBackend counts mutating calls on top of a local backend.
type recordingBackend struct {
	storage.Backend

	mu      sync.Mutex
	puts    []string
	deletes int
}

func (b *recordingBackend) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	b.puts = append(b.puts, key)
	b.mu.Unlock()
	return b.Backend.Put(ctx, key, data)
}

func (b *recordingBackend) DeleteIfExists(ctx context.Context, key string) error {
	b.mu.Lock()
	b.deletes++
	b.mu.Unlock()
	return b.Backend.DeleteIfExists(ctx, key)
}

func (b *recordingBackend) DeletePrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	b.deletes++
	b.mu.Unlock()
	return b.Backend.DeletePrefix(ctx, prefix)
}

func (b *recordingBackend) writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts) + b.deletes
}

type pipelineFixture struct {
	pipeline *Pipeline
	backend  *recordingBackend
	root     string
	staging  string
	src      string
}

func setupPipeline(t *testing.T, partitioner domain.Partitioner) *pipelineFixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "lake")
	local, err := storage.NewLocalBackend(root, nil)
	require.NoError(t, err)
	rb := &recordingBackend{Backend: local}
	return &pipelineFixture{
		pipeline: NewPipeline(rb, partitioner, slog.New(slog.DiscardHandler)),
		backend:  rb,
		root:     local.Root(),
		staging:  t.TempDir(),
		src:      t.TempDir(),
	}
}

func (f *pipelineFixture) options(path string, partitionBy ...string) domain.IngestionOptions {
	opts := domain.DefaultIngestionOptions(path)
	opts.PartitionBy = partitionBy
	opts.StagingDir = f.staging
	return opts
}

func newDuckDB(t *testing.T) *engine.DuckDBPartitioner {
	t.Helper()
	p, err := engine.NewDuckDBPartitioner(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readParquetRows(t *testing.T, path string) (int64, []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer tbl.Release()

	names := make([]string, 0, tbl.Schema().NumFields())
	for _, f := range tbl.Schema().Fields() {
		names = append(names, f.Name)
	}
	return tbl.NumRows(), names
}

func walkRel(t *testing.T, root string) []string {
	t.Helper()
	files, err := listFiles(root)
	require.NoError(t, err)
	return files
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "directory %s should be empty", dir)
}

func TestPipeline_DuplicateColumnNames(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "events.csv", "id,name,id\n1,a,10\n2,b,20\n3,c,30\n")

	res, err := f.pipeline.Run(context.Background(), f.options(path))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "id_1"}, res.Schema.Names())
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, []string{"events/events.parquet"}, res.Objects)
	assert.Equal(t, f.pipeline.Backend().URI("events/events.parquet"), res.Location)
	assert.Empty(t, res.Warnings)

	rows, names := readParquetRows(t, filepath.Join(f.root, "events", "events.parquet"))
	assert.Equal(t, int64(3), rows)
	assert.Equal(t, []string{"id", "name", "id_1"}, names)
	assert.Positive(t, res.Bytes)
}

func TestPipeline_SmallBatches(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "nums.csv", "n,label\n1,a\n2,\n3,c\n4,d\n5,e\n")

	opts := f.options(path)
	opts.BatchSize = 2
	res, err := f.pipeline.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Rows)

	rows, _ := readParquetRows(t, filepath.Join(f.root, "nums", "nums.parquet"))
	assert.Equal(t, int64(5), rows)
}

func TestPipeline_ReingestReplacesObject(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "data.csv", "v\n1\n2\n3\n")

	_, err := f.pipeline.Run(context.Background(), f.options(path))
	require.NoError(t, err)

	writeCSV(t, f.src, "data.csv", "v\n9\n")
	res, err := f.pipeline.Run(context.Background(), f.options(path))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)

	assert.Equal(t, []string{"data/data.parquet"}, walkRel(t, f.root))
	rows, _ := readParquetRows(t, filepath.Join(f.root, "data", "data.parquet"))
	assert.Equal(t, int64(1), rows)
}

func TestPipeline_Partitioned(t *testing.T) {
	f := setupPipeline(t, newDuckDB(t))
	path := writeCSV(t, f.src, "sales.csv", "year,region,amount\n2024,eu,1.5\n2024,us,2\n2025,eu,3\n")

	res, err := f.pipeline.Run(context.Background(), f.options(path, "year"))
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, f.pipeline.Backend().URI("sales/"), res.Location)
	require.Len(t, res.Objects, 2)

	files := walkRel(t, f.root)
	require.Len(t, files, 2)
	assert.Equal(t, "sales/year=2024", filepath.ToSlash(filepath.Dir(files[0])))
	assert.Equal(t, "sales/year=2025", filepath.ToSlash(filepath.Dir(files[1])))
	assert.ElementsMatch(t, files, res.Objects)

	assertDirEmpty(t, f.staging)
}

func TestPipeline_PartitionedReingestReplacesTree(t *testing.T) {
	f := setupPipeline(t, newDuckDB(t))
	path := writeCSV(t, f.src, "sales.csv", "year,amount\n2024,1\n2025,2\n")

	_, err := f.pipeline.Run(context.Background(), f.options(path, "year"))
	require.NoError(t, err)

	writeCSV(t, f.src, "sales.csv", "year,amount\n2026,5\n")
	_, err = f.pipeline.Run(context.Background(), f.options(path, "year"))
	require.NoError(t, err)

	files := walkRel(t, f.root)
	require.Len(t, files, 1)
	assert.Equal(t, "sales/year=2026", filepath.ToSlash(filepath.Dir(files[0])))
}

func TestPipeline_UnknownPartitionColumnWritesNothing(t *testing.T) {
	// The mock panics if the query engine is reached.
	f := setupPipeline(t, &testutil.MockPartitioner{})
	path := writeCSV(t, f.src, "sales.csv", "year,amount\n2024,1\n")

	_, err := f.pipeline.Run(context.Background(), f.options(path, "month"))
	var upc *domain.UnknownPartitionColumnError
	require.ErrorAs(t, err, &upc)
	assert.Equal(t, "month", upc.Column)

	assert.Zero(t, f.backend.writes())
	assertDirEmpty(t, f.staging)
	assert.Empty(t, walkRel(t, f.root))
}

func TestPipeline_PartitionFailureCleansStaging(t *testing.T) {
	mock := &testutil.MockPartitioner{
		PartitionFn: func(_ context.Context, srcGlob, _ string, _ []string) error {
			matches, err := filepath.Glob(srcGlob)
			if err != nil || len(matches) != 1 {
				return errors.New("staged file missing")
			}
			return errors.New("engine exploded")
		},
	}
	f := setupPipeline(t, mock)
	path := writeCSV(t, f.src, "sales.csv", "year,amount\n2024,1\n")

	_, err := f.pipeline.Run(context.Background(), f.options(path, "year"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine exploded")

	require.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{"year"}, mock.Calls[0].Columns)
	assert.Zero(t, f.backend.writes())
	assertDirEmpty(t, f.staging)
}

func TestPipeline_RowConversionFailure(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "bad.csv", "n\n1\n2\nthree\n")

	opts := f.options(path)
	opts.SamplingSize = 2
	_, err := f.pipeline.Run(context.Background(), opts)

	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.RowConversionFailed, ie.Kind)
	assert.Zero(t, f.backend.writes())
}

func TestPipeline_RowConversionFailurePartitionedCleansStaging(t *testing.T) {
	f := setupPipeline(t, &testutil.MockPartitioner{})
	path := writeCSV(t, f.src, "bad.csv", "n,p\n1,a\n2,b\n3\n")

	opts := f.options(path, "p")
	opts.SamplingSize = 2
	_, err := f.pipeline.Run(context.Background(), opts)

	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.RowConversionFailed, ie.Kind)
	assertDirEmpty(t, f.staging)
	assert.Zero(t, f.backend.writes())
}

func TestPipeline_InferenceFailureWritesNothing(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "empty.csv", "")

	_, err := f.pipeline.Run(context.Background(), f.options(path))
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.SchemaInferenceFailed, ie.Kind)
	assert.Zero(t, f.backend.writes())
}

func TestPipeline_InvalidOptions(t *testing.T) {
	f := setupPipeline(t, nil)

	_, err := f.pipeline.Run(context.Background(), domain.IngestionOptions{})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestPipeline_PartitioningWithoutEngine(t *testing.T) {
	f := setupPipeline(t, nil)
	path := writeCSV(t, f.src, "sales.csv", "year\n2024\n")

	_, err := f.pipeline.Run(context.Background(), f.options(path, "year"))
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Zero(t, f.backend.writes())
}

func TestPipeline_CanceledContext(t *testing.T) {
	f := setupPipeline(t, &testutil.MockPartitioner{})
	path := writeCSV(t, f.src, "sales.csv", "year\n2024\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, f.options(path, "year"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.backend.writes())
	assertDirEmpty(t, f.staging)
}

func TestPipeline_PrepareWritesNothing(t *testing.T) {
	f := setupPipeline(t, newDuckDB(t))
	ctx := context.Background()
	path := writeCSV(t, f.src, "sales.csv", "year,Amount ($)\n2024,1\n2025,2\n")

	single, err := f.pipeline.Prepare(ctx, f.options(path))
	require.NoError(t, err)
	assert.Equal(t, "sales", single.Stem)
	assert.Equal(t, []string{"year", "Amount "}, single.Schema.Names())
	assert.Equal(t, f.pipeline.Backend().URI("sales/sales.parquet"), single.Location)

	partitioned, err := f.pipeline.Prepare(ctx, f.options(path, "year"))
	require.NoError(t, err)
	assert.Equal(t, f.pipeline.Backend().URI("sales/"), partitioned.Location)
	assert.Zero(t, f.backend.writes())

	res, err := f.pipeline.Execute(ctx, partitioned)
	require.NoError(t, err)
	assert.Equal(t, partitioned.Location, res.Location)
	assert.Len(t, res.Objects, 2)
}
