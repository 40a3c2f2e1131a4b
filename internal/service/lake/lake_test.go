package lake

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
	"lakehouse/internal/engine"
	"lakehouse/internal/service/catalogue"
	"lakehouse/internal/service/ingestion"
	"lakehouse/internal/storage"
)

type fixture struct {
	engine        *Engine
	root          string
	src           string
	cataloguePath string
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()

	cataloguePath := filepath.Join(dir, "catalogue.sqlite")
	cat, err := catalogue.Start(context.Background(), catalogue.Options{
		Path:   cataloguePath,
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	local, err := storage.NewLocalBackend(filepath.Join(dir, "lake"), nil)
	require.NoError(t, err)

	duck, err := engine.NewDuckDBPartitioner(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })

	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))

	return &fixture{
		engine:        New(cat, ingestion.NewPipeline(local, duck, logger), logger),
		root:          local.Root(),
		src:           src,
		cataloguePath: cataloguePath,
	}
}

func (f *fixture) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.src, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func optionsFor(t *testing.T, path string, partitionBy ...string) domain.IngestionOptions {
	opts := domain.DefaultIngestionOptions(path)
	opts.PartitionBy = partitionBy
	opts.StagingDir = t.TempDir()
	return opts
}

func TestEngine_IngestRegistersTable(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "events.csv", "id,name,id\n1,a,10\n2,b,20\n3,c,30\n")

	res, err := f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path)})
	require.NoError(t, err)

	assert.Equal(t, "events", res.Table.Name)
	assert.Equal(t, int64(3), res.Ingestion.Rows)
	assert.Equal(t, res.Ingestion.Location, res.Table.Location)

	got, err := f.engine.Catalogue().GetSchema(ctx, res.Table.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "id_1"}, got.Names())

	assert.Equal(t, []domain.TableEntry{{ID: res.Table.ID, Name: "events"}}, f.engine.Catalogue().ListTables())
	assert.FileExists(t, filepath.Join(f.root, "events", "events.parquet"))
}

func TestEngine_IngestNamedTableUsesNameForStorage(t *testing.T) {
	f := setupEngine(t)
	path := f.writeSource(t, "raw export.csv", "v\n1\n")

	res, err := f.engine.Ingest(context.Background(), IngestRequest{Table: "clean", Options: optionsFor(t, path)})
	require.NoError(t, err)

	assert.Equal(t, "clean", res.Table.Name)
	assert.FileExists(t, filepath.Join(f.root, "clean", "clean.parquet"))
}

func TestEngine_IngestDuplicateFailsBeforeWrite(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "events.csv", "v\n1\n2\n")

	_, err := f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path)})
	require.NoError(t, err)
	target := filepath.Join(f.root, "events", "events.parquet")
	before, err := os.ReadFile(target)
	require.NoError(t, err)

	f.writeSource(t, "events.csv", "v\n7\n8\n9\n")
	_, err = f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path)})
	var dup *domain.DuplicateTableError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "events", dup.Name)

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_IngestConcurrentSameName(t *testing.T) {
	f := setupEngine(t)
	path := f.writeSource(t, "race.csv", "v\n1\n")

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Ingest(context.Background(), IngestRequest{Options: optionsFor(t, path)})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var dup *domain.DuplicateTableError
		assert.ErrorAs(t, err, &dup)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.engine.Catalogue().ListTables(), 1)
}

func TestEngine_IngestPartitioned(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "sales.csv", "year,amount\n2024,1\n2025,2\n")

	res, err := f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path, "year")})
	require.NoError(t, err)
	assert.Len(t, res.Ingestion.Objects, 2)

	table, err := f.engine.Catalogue().GetTable(ctx, res.Table.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"year"}, table.PartitionBy)
	assert.DirExists(t, filepath.Join(f.root, "sales", "year=2024"))
}

func TestEngine_IngestFailureRegistersNothing(t *testing.T) {
	f := setupEngine(t)
	path := f.writeSource(t, "sales.csv", "year,amount\n2024,1\n")

	_, err := f.engine.Ingest(context.Background(), IngestRequest{Options: optionsFor(t, path, "month")})
	var upc *domain.UnknownPartitionColumnError
	require.ErrorAs(t, err, &upc)
	assert.Empty(t, f.engine.Catalogue().ListTables())
}

func TestEngine_IngestRejectsUnsafeTableName(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "events.csv", "v\n1\n")

	_, err := f.engine.Ingest(ctx, IngestRequest{Table: "my table", Options: optionsFor(t, path)})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "my_table")
	assert.Empty(t, f.engine.Catalogue().ListTables())
	assert.NoDirExists(t, filepath.Join(f.root, "my_table"))

	res, err := f.engine.Ingest(ctx, IngestRequest{Table: "my_table", Options: optionsFor(t, path)})
	require.NoError(t, err)
	assert.Equal(t, "my_table", res.Table.Name)
	assert.FileExists(t, filepath.Join(f.root, "my_table", "my_table.parquet"))
}

func TestEngine_IngestNameRegisteredByAnotherHandle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// A second handle on the same store registers the name without this
	// engine's cache knowing about it.
	other, err := catalogue.Start(ctx, catalogue.Options{Path: f.cataloguePath, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	_, err = other.CreateTable(ctx, domain.CreateTableRequest{
		Name:   "events",
		Schema: domain.Schema{{Name: "v", DataType: domain.TypeInt64, Nullable: true}},
	})
	require.NoError(t, err)

	target := filepath.Join(f.root, "events", "events.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	path := f.writeSource(t, "events.csv", "v\n1\n2\n")
	_, err = f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path)})
	var dup *domain.DuplicateTableError
	require.ErrorAs(t, err, &dup)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestEngine_IngestWriteFailureUnregisters(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "bad.csv", "n\n1\n2\nabc\n")

	opts := optionsFor(t, path)
	opts.SamplingSize = 2
	_, err := f.engine.Ingest(ctx, IngestRequest{Options: opts})
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.RowConversionFailed, ie.Kind)

	assert.Empty(t, f.engine.Catalogue().ListTables())
	_, ok := f.engine.Catalogue().LookupID("bad")
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(f.root, "bad", "bad.parquet"))

	f.writeSource(t, "bad.csv", "n\n1\n2\n3\n")
	res, err := f.engine.Ingest(ctx, IngestRequest{Options: opts})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Ingestion.Rows)
}

func TestEngine_IngestAll(t *testing.T) {
	f := setupEngine(t)
	f.writeSource(t, "a.csv", "v\n1\n")
	f.writeSource(t, "b.CSV", "v\n2\n")
	f.writeSource(t, "c.csv", "v\n3\n")
	f.writeSource(t, "notes.txt", "ignored")

	results, err := f.engine.IngestAll(context.Background(), filepath.Join(f.src, "*"), optionsFor(t, ""), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	names := make([]string, 0, 3)
	for _, e := range f.engine.Catalogue().ListTables() {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

func TestEngine_IngestAllNoMatches(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.IngestAll(context.Background(), filepath.Join(f.src, "*.csv"), optionsFor(t, ""), 0)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestEngine_IngestAllStopsOnFailure(t *testing.T) {
	f := setupEngine(t)
	f.writeSource(t, "good.csv", "v\n1\n")
	f.writeSource(t, "empty.csv", "")

	_, err := f.engine.IngestAll(context.Background(), filepath.Join(f.src, "*.csv"), optionsFor(t, ""), 1)
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.SchemaInferenceFailed, ie.Kind)
}

func TestEngine_Drop(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	path := f.writeSource(t, "sales.csv", "year,amount\n2024,1\n2025,2\n")

	res, err := f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path, "year")})
	require.NoError(t, err)

	require.NoError(t, f.engine.Drop(ctx, res.Table.ID))
	assert.Empty(t, f.engine.Catalogue().ListTables())
	assert.NoDirExists(t, filepath.Join(f.root, "sales"))

	_, err = f.engine.Catalogue().GetSchema(ctx, res.Table.ID)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)

	// The name can be ingested again.
	_, err = f.engine.Ingest(ctx, IngestRequest{Options: optionsFor(t, path)})
	require.NoError(t, err)
}

func TestEngine_DropNotFound(t *testing.T) {
	f := setupEngine(t)

	err := f.engine.Drop(context.Background(), 99)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
