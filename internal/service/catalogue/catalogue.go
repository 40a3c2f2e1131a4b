// Package catalogue tracks table identity, schema and storage location in a
// durable store, with an in-memory id to name cache for listing.
package catalogue

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"lakehouse/internal/db"
	"lakehouse/internal/db/repository"
	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
	"lakehouse/internal/schema"
)

// Options configures Start.
type Options struct {
	// Path is the SQLite catalogue file. Created if absent.
	Path string
	// ReadPoolSize bounds concurrent readers. Zero means db.DefaultReadPoolSize.
	ReadPoolSize int
	Logger       *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Catalogue is safe for concurrent use.
type Catalogue struct {
	repo    domain.CatalogueRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
	path    string

	byID   sync.Map // int64 -> string
	byName sync.Map // string -> int64
}

// Start opens the durable store at opts.Path, creates the catalogue tables if
// they are absent and loads every table into the cache.
func Start(ctx context.Context, opts Options) (*Catalogue, error) {
	if opts.Path == "" {
		return nil, domain.ErrValidation("catalogue path is required")
	}

	writeDB, readDB, err := db.OpenSQLitePair(opts.Path, opts.ReadPoolSize)
	if err != nil {
		return nil, &domain.TransactionError{Op: "open", Err: err}
	}
	if err := db.RunMigrations(ctx, writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, &domain.TransactionError{Op: "migrate", Err: err}
	}

	c := New(repository.NewSysTableRepo(writeDB, readDB), opts.Logger)
	c.path = opts.Path
	c.metrics = opts.Metrics
	if err := c.Load(ctx); err != nil {
		_ = c.repo.Close()
		return nil, err
	}

	c.logger.Info("catalogue started", "path", opts.Path, "tables", c.count())
	return c, nil
}

// New creates a Catalogue over an already-open repository. The cache is empty
// until Load is called.
func New(repo domain.CatalogueRepository, logger *slog.Logger) *Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalogue{
		repo:   repo,
		logger: logger.With("component", "catalogue"),
	}
}

// WithMetrics attaches collectors and returns c.
func (c *Catalogue) WithMetrics(m *metrics.Metrics) *Catalogue {
	c.metrics = m
	c.metrics.SetCatalogueTables(c.count())
	return c
}

// Load replaces the cache with the tables in the durable store.
func (c *Catalogue) Load(ctx context.Context) error {
	entries, err := c.repo.ListEntries(ctx)
	if err != nil {
		return err
	}
	c.byID.Clear()
	c.byName.Clear()
	for _, e := range entries {
		c.cache(e.ID, e.Name)
	}
	c.metrics.SetCatalogueTables(len(entries))
	return nil
}

// CreateTable registers a table. The schema row and the table row are written
// in one transaction; the cache is updated only after commit.
func (c *Catalogue) CreateTable(ctx context.Context, req domain.CreateTableRequest) (*domain.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bin, err := schema.Encode(req.Schema)
	if err != nil {
		return nil, err
	}

	rec := &domain.TableRecord{
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Name:        req.Name,
		SchemaBytes: bin,
		Location:    req.Location,
		PartitionBy: req.PartitionBy,
		Version:     domain.SchemaVersionV1,
	}
	id, err := c.repo.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	c.cache(id, req.Name)
	c.metrics.SetCatalogueTables(c.count())
	c.logger.Info("table created", "table_id", id, "table", req.Name, "columns", len(req.Schema))

	return &domain.Table{
		ID:          id,
		Name:        req.Name,
		Schema:      req.Schema,
		Location:    req.Location,
		PartitionBy: req.PartitionBy,
		Version:     domain.SchemaVersionV1,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// DeleteTable removes a table and its schema in one transaction.
func (c *Catalogue) DeleteTable(ctx context.Context, id int64) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}

	if name, ok := c.byID.LoadAndDelete(id); ok {
		c.byName.CompareAndDelete(name, id)
	}
	c.metrics.SetCatalogueTables(c.count())
	c.logger.Info("table deleted", "table_id", id)
	return nil
}

// GetSchema returns the decoded schema of a table.
func (c *Catalogue) GetSchema(ctx context.Context, id int64) (domain.Schema, error) {
	bin, err := c.repo.GetSchemaBytes(ctx, id)
	if err != nil {
		return nil, err
	}
	return schema.Decode(bin)
}

// GetTable returns the full catalogue entry for a table.
func (c *Catalogue) GetTable(ctx context.Context, id int64) (*domain.Table, error) {
	rec, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := schema.Decode(rec.SchemaBytes)
	if err != nil {
		return nil, err
	}
	return &domain.Table{
		ID:          rec.ID,
		Name:        rec.Name,
		Schema:      s,
		Location:    rec.Location,
		PartitionBy: rec.PartitionBy,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// ListSchemas returns every stored schema in durable-store order. The first
// undecodable row fails the whole call.
func (c *Catalogue) ListSchemas(ctx context.Context) ([]domain.Schema, error) {
	bins, err := c.repo.ListSchemaBytes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Schema, 0, len(bins))
	for i, bin := range bins {
		s, err := schema.Decode(bin)
		if err != nil {
			var corrupt *domain.CorruptSchemaError
			if errors.As(err, &corrupt) {
				return nil, domain.ErrCorruptSchema(err, "schema row %d", i)
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListTables returns the cached tables sorted by id without touching the
// durable store.
func (c *Catalogue) ListTables() []domain.TableEntry {
	var out []domain.TableEntry
	c.byID.Range(func(k, v any) bool {
		out = append(out, domain.TableEntry{ID: k.(int64), Name: v.(string)})
		return true
	})
	slices.SortFunc(out, func(a, b domain.TableEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// LookupID returns the id of a cached table name.
func (c *Catalogue) LookupID(name string) (int64, bool) {
	v, ok := c.byName.Load(name)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// Close releases the pools. The durable store is left intact.
func (c *Catalogue) Close() error {
	return c.repo.Close()
}

// Destroy closes the catalogue and removes its SQLite file. Only catalogues
// opened with Start own a file.
func (c *Catalogue) Destroy() error {
	closeErr := c.Close()
	if c.path == "" {
		return closeErr
	}
	return errors.Join(closeErr, db.RemoveSQLite(c.path))
}

func (c *Catalogue) cache(id int64, name string) {
	c.byID.Store(id, name)
	c.byName.Store(name, id)
}

func (c *Catalogue) count() int {
	n := 0
	c.byID.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
